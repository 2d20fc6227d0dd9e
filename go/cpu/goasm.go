package cpu

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"

	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/models"
)

// goIns is a decoded instruction produced by the pure-Go backends.
type goIns struct {
	addr     uint64
	bytes    []byte
	mnemonic string
	opstr    string
}

func (i *goIns) Addr() uint64     { return i.addr }
func (i *goIns) Bytes() []byte    { return i.bytes }
func (i *goIns) Mnemonic() string { return i.mnemonic }
func (i *goIns) OpStr() string    { return i.opstr }

func splitSyntax(text string) (string, string) {
	if i := strings.IndexByte(text, ' '); i >= 0 {
		return text[:i], strings.TrimSpace(text[i+1:])
	}
	return text, ""
}

// X86Asm decodes x86 with golang.org/x/arch. No cgo required.
type X86Asm struct {
	Mode int // 16, 32 or 64
}

func (x *X86Asm) Dis(mem []byte, addr uint64) ([]models.Ins, error) {
	var ret []models.Ins
	for off := 0; off < len(mem); {
		inst, err := x86asm.Decode(mem[off:], x.Mode)
		if err != nil {
			if len(ret) == 0 {
				return nil, errors.Wrapf(err, "x86asm failed at %#x", addr+uint64(off))
			}
			// leave the undecodable tail to the caller
			break
		}
		size := inst.Len
		if size == 0 {
			size = 1
		}
		mn, ops := splitSyntax(x86asm.IntelSyntax(inst, addr+uint64(off), nil))
		ret = append(ret, &goIns{
			addr:     addr + uint64(off),
			bytes:    mem[off : off+size],
			mnemonic: mn,
			opstr:    ops,
		})
		off += size
	}
	return ret, nil
}

// ARM64Asm decodes fixed-width A64 words with golang.org/x/arch.
type ARM64Asm struct{}

func (a *ARM64Asm) Dis(mem []byte, addr uint64) ([]models.Ins, error) {
	var ret []models.Ins
	for off := 0; off+4 <= len(mem); off += 4 {
		inst, err := arm64asm.Decode(mem[off : off+4])
		if err != nil {
			if len(ret) == 0 {
				return nil, errors.Wrapf(err, "arm64asm failed at %#x", addr+uint64(off))
			}
			break
		}
		mn, ops := splitSyntax(arm64asm.GNUSyntax(inst))
		ret = append(ret, &goIns{
			addr:     addr + uint64(off),
			bytes:    mem[off : off+4],
			mnemonic: mn,
			opstr:    ops,
		})
	}
	return ret, nil
}
