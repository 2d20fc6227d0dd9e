package broker

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/models"
)

// TranslationBlock mirrors one of the emulator's translation blocks. It is
// born untranslated, carrying only raw instruction bytes; the first
// execution event records the entry PC and decodes it, after which the
// block never changes again.
type TranslationBlock struct {
	RawInsts [][]byte

	// Decoded form; non-empty once the block is translated. Instructions
	// are individually allocated, so pointers handed out stay valid for
	// the process lifetime.
	MCInsts []models.Ins

	// Raw index -> MCInsts index, for raw instructions that expanded to
	// more than one decoded instruction (e.g. ARM ldm).
	Skew map[int]int

	// Base virtual address, set on first execution. On ARM the Thumb LSB
	// is already cleared.
	VAddr uint64

	// Byte offset from VAddr of each decoded instruction.
	VAddrOffsets []uint32
}

func (tb *TranslationBlock) Translated() bool {
	return len(tb.MCInsts) > 0
}

// disassemble decodes every raw instruction of the block. A raw that fails
// to decode is logged and skipped; the emulator already committed to
// executing those bytes, so losing one instruction beats losing the rest of
// the trace.
func (tb *TranslationBlock) disassemble(dis models.Dis, logger *log.Logger) {
	start := tb.VAddr
	vaddr := start
	skew := 0
	for rawIdx, raw := range tb.RawInsts {
		if skew > 0 {
			tb.Skew[rawIdx] = rawIdx + skew
		}
		decoded, err := dis.Dis(raw, vaddr)
		consumed := uint64(0)
		for _, ins := range decoded {
			tb.MCInsts = append(tb.MCInsts, ins)
			tb.VAddrOffsets = append(tb.VAddrOffsets, uint32(ins.Addr()-start))
			consumed = ins.Addr() + uint64(len(ins.Bytes())) - vaddr
		}
		if err != nil || consumed < uint64(len(raw)) {
			logger.Error("failed to disassemble instruction",
				"raw", fmt.Sprintf("[% x]", raw),
				"index", rawIdx,
				"vaddr", fmt.Sprintf("%#x", vaddr+consumed),
				"err", err)
		}
		if n := len(decoded); n > 1 {
			skew += n - 1
		}
		vaddr += uint64(len(raw))
	}
}

// TBCache stores TranslationBlocks indexed by the emulator-assigned block
// index. A slot transitions empty -> untranslated -> translated exactly
// once, always on the receiver side; the consumer only ever observes
// translated, immutable blocks, so holding the mutex across slot vector
// growth is the only synchronization needed.
type TBCache struct {
	mu  sync.Mutex
	tbs []*TranslationBlock
}

// Insert registers an untranslated block, growing the cache as needed.
// Re-registering an index replaces the old block.
func (c *TBCache) Insert(index uint32, rawInsts [][]byte) {
	tb := &TranslationBlock{
		RawInsts: rawInsts,
		Skew:     make(map[int]int),
	}
	c.mu.Lock()
	if n := int(index) + 1; n > len(c.tbs) {
		c.tbs = append(c.tbs, make([]*TranslationBlock, n-len(c.tbs))...)
	}
	c.tbs[index] = tb
	c.mu.Unlock()
}

// Get returns the block at index, or nil if it was never registered.
func (c *TBCache) Get(index uint32) *TranslationBlock {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(index) >= len(c.tbs) {
		return nil
	}
	return c.tbs[index]
}

// EnsureTranslated returns the block at index, disassembling it first if
// this is its first execution. pc selects ARM vs Thumb decoding and becomes
// the block's base address. Returns nil for an unknown index.
func (c *TBCache) EnsureTranslated(index uint32, pc uint64, a *models.Arch, logger *log.Logger) *TranslationBlock {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(index) >= len(c.tbs) || c.tbs[index] == nil {
		return nil
	}
	tb := c.tbs[index]
	if tb.Translated() {
		return tb
	}
	tb.VAddr = pc
	if a.ClearPCLSB {
		tb.VAddr &^= 1
	}
	tb.disassemble(a.PickDis(pc), logger)
	return tb
}
