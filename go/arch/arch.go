package arch

import (
	"github.com/pkg/errors"

	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/arch/arm"
	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/arch/arm64"
	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/arch/x86"
	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/arch/x86_64"
	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/models"
)

var archMap = map[string]*models.Arch{
	"arm":    arm.Arch,
	"arm64":  arm64.Arch,
	"x86":    x86.Arch,
	"x86_64": x86_64.Arch,
	// Thumb entry points are a per-block property of the arm target, not
	// a separate registry entry.
	"thumb": arm.Arch,
}

func GetArch(name string) (*models.Arch, error) {
	a, ok := archMap[name]
	if !ok {
		return nil, errors.Errorf("arch '%s' not found", name)
	}
	return a, nil
}

// Names lists registered architectures, for usage text.
func Names() []string {
	names := make([]string, 0, len(archMap))
	for name := range archMap {
		names = append(names, name)
	}
	return names
}
