package cmd

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/arch"
	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/logging"
	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/models"
)

// MCADCmd is the scaffold shared by the daemon subcommands: a flag set, the
// broker config it builds, and error reporting.
type MCADCmd struct {
	Config *models.Config
	Flags  *flag.FlagSet
}

func NewMCADCmd(name string) *MCADCmd {
	return &MCADCmd{Flags: flag.NewFlagSet(name, flag.ExitOnError)}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// PrintError prints an error, and a stacktrace if available.
func (c *MCADCmd) PrintError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	if err, ok := err.(stackTracer); ok {
		// parse full path and method name for each stack frame
		var frames [][]string
		for _, f := range err.StackTrace() {
			fullpath := ""
			fileline := fmt.Sprintf("%s:%d", f, f)
			method := fmt.Sprintf("%n", f)

			frame := fmt.Sprintf("%+s", f)
			tmp := strings.SplitN(frame, "\n", 3)
			if len(tmp) == 2 {
				pathsplit := strings.Split(tmp[0], "/")
				method = pathsplit[len(pathsplit)-1]
				fullpath = strings.TrimSpace(tmp[1])
			}
			frames = append(frames, []string{fullpath, fileline, method})
			if method == "main.main" {
				break
			}
		}
		// calculate column widths
		widths := make([]int, 3)
		for _, f := range frames {
			for i, s := range f {
				if len(s) > widths[i] {
					widths[i] = len(s)
				}
			}
		}
		// print pretty stacktrace
		for _, f := range frames {
			method := f[2]
			for i := 0; i < 2; i++ {
				if widths[i] > 0 {
					pad := strings.Repeat(" ", widths[i]-len(f[i]))
					fmt.Fprintf(os.Stderr, "%s%s | ", f[i], pad)
				}
			}
			fmt.Fprintf(os.Stderr, "%s()\n", method)
		}
	}
}

// ParseConfig registers the shared daemon flags, parses argv, and builds
// the broker config. Returns the config and the selected arch name.
func (c *MCADCmd) ParseConfig(argv []string) (*models.Config, string) {
	fs := c.Flags
	archName := fs.String("arch", "x86_64",
		"guest architecture ("+strings.Join(arch.Names(), ", ")+")")
	host := fs.String("host", "localhost:9487", "listen address (HOST:PORT)")
	maxConn := fs.Uint("max-accepted-connection", 1,
		"number of connections to accept before shutting down, 0 for unbounded")
	regions := fs.String("binary-regions", "", "path to the binary regions manifest")
	record := fs.String("record", "", "record received frames to this file")
	mclass := fs.Bool("mclass", false, "M-class profile (no ARM/Thumb switching)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\nOptions:\n", fs.Name())
		fs.PrintDefaults()
	}
	fs.Parse(argv[1:])

	listenHost, listenPort := *host, "9487"
	if h, p, ok := strings.Cut(*host, ":"); ok {
		listenHost, listenPort = h, p
	}

	config := &models.Config{
		Host:            listenHost,
		Port:            listenPort,
		MaxConns:        *maxConn,
		RegionsManifest: *regions,
		Recordfile:      *record,
		MClass:          *mclass,
		Logger:          logging.NewLogger(),
	}
	c.Config = config
	return config, *archName
}
