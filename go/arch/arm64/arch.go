package arm64

import (
	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/cpu"
	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/models"
)

var Arch = &models.Arch{
	Name: "arm64",
	Bits: 64,
	Dis:  &cpu.ARM64Asm{},
}
