package x86_64

import (
	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/cpu"
	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/models"
)

var Arch = &models.Arch{
	Name: "x86_64",
	Bits: 64,
	Dis:  &cpu.X86Asm{Mode: 64},
}
