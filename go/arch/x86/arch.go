package x86

import (
	cs "github.com/lunixbochs/capstr"

	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/cpu"
	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/models"
)

var Arch = &models.Arch{
	Name: "x86",
	Bits: 32,
	Dis:  &cpu.Capstr{Arch: cs.ARCH_X86, Mode: cs.MODE_32},
}
