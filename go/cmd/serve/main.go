package serve

import (
	"fmt"
	"os"

	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/arch"
	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/broker"
	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/cmd"
	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/models"
)

// Main runs the trace-ingestion daemon: listen for the emulator, drain the
// instruction stream, and print a per-region summary when it ends.
func Main(args []string) {
	c := cmd.NewMCADCmd("serve")
	config, archName := c.ParseConfig(args)

	a, err := arch.GetArch(archName)
	if err != nil {
		c.PrintError(err)
		os.Exit(1)
	}

	b, err := broker.NewQemuBroker(config, a)
	if err != nil {
		c.PrintError(err)
		os.Exit(1)
	}
	defer b.Close()

	report(b)
}

type regionStat struct {
	name  string
	count int
}

func report(b broker.Broker) {
	buf := make([]models.Ins, 512)
	mde := models.NewMDExchanger()

	var regions []regionStat
	total, current := 0, 0
	for {
		n, rd := b.FetchRegion(buf, -1, mde)
		if n < 0 {
			break
		}
		total += n
		current += n
		if rd.IsEnd && rd.Description != "" {
			regions = append(regions, regionStat{rd.Description, current})
			current = 0
		}
	}

	fmt.Printf("Total instructions: %d\n", total)
	fmt.Printf("Memory accesses:    %d\n",
		len(mde.Registry.Category(models.MDLSUnitMemAccess)))
	for _, r := range regions {
		fmt.Printf("  region %-24s %8d instructions\n", r.name, r.count)
	}
}

func init() { cmd.Register("serve", "run the trace-ingestion daemon", Main) }
