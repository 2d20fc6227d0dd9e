package broker

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/models"
)

// PluginAPIVersion is bumped whenever the plugin contract changes
// incompatibly.
const PluginAPIVersion = 1

// PluginInfo is what a broker plugin exposes to the host: identity plus a
// registration callback that parses its own arguments and installs a
// broker on the facade.
type PluginInfo struct {
	APIVersion uint32
	Name       string
	Version    string
	Register   func(args []string, facade *Facade) error
}

// GetPluginInfo is the plugin entry point.
//
// Recognized arguments:
//
//	-host=HOST:PORT             listen address (default localhost:9487)
//	-max-accepted-connection=N  serial connection cap, 0 for unbounded
//	-binary-regions=PATH        binary-regions manifest
//	-record=PATH                record received frames to PATH
//	-mclass                     M-class profile, primary decoder only
func GetPluginInfo() PluginInfo {
	return PluginInfo{
		APIVersion: PluginAPIVersion,
		Name:       "QemuBroker",
		Version:    "v0.1",
		Register: func(args []string, facade *Facade) error {
			config, err := ParseArgs(args)
			if err != nil {
				return err
			}
			config.Logger = facade.Logger
			b, err := NewQemuBroker(config, facade.Arch)
			if err != nil {
				return err
			}
			facade.SetBroker(b)
			return nil
		},
	}
}

// ParseArgs parses the plugin argument grammar into a broker config.
func ParseArgs(args []string) (*models.Config, error) {
	config := &models.Config{
		Host:     "localhost",
		Port:     "9487",
		MaxConns: 1,
	}
	for _, arg := range args {
		key, val := arg, ""
		if i := strings.IndexByte(arg, '='); i >= 0 {
			key, val = arg[:i], arg[i+1:]
		}
		switch key {
		case "-host":
			host, port, ok := strings.Cut(val, ":")
			if !ok {
				return nil, errors.Errorf("invalid host '%s', expected HOST:PORT", val)
			}
			config.Host, config.Port = host, port
		case "-max-accepted-connection":
			n, err := strconv.ParseUint(strings.TrimSpace(val), 0, 32)
			if err != nil {
				return nil, errors.Errorf("invalid number '%s'", val)
			}
			config.MaxConns = uint(n)
		case "-binary-regions":
			config.RegionsManifest = val
		case "-record":
			config.Recordfile = val
		case "-mclass":
			config.MClass = true
		default:
			return nil, errors.Errorf("unknown broker argument '%s'", arg)
		}
	}
	return config, nil
}
