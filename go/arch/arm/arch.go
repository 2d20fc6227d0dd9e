package arm

import (
	cs "github.com/lunixbochs/capstr"

	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/cpu"
	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/models"
)

var Arch = &models.Arch{
	Name:       "arm",
	Bits:       32,
	Dis:        &cpu.Capstr{Arch: cs.ARCH_ARM, Mode: cs.MODE_ARM},
	ThumbDis:   &cpu.Capstr{Arch: cs.ARCH_ARM, Mode: cs.MODE_THUMB},
	ClearPCLSB: true,
}
