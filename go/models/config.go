package models

import (
	"net"

	"github.com/charmbracelet/log"
)

// Config controls a single broker instance.
type Config struct {
	// Address the receiver listens on for the emulator connection.
	Host string
	Port string

	// Number of connections to accept (serially) before the receiver
	// shuts down. 0 means no limit.
	MaxConns uint

	// Path to the binary-regions manifest. Empty disables region slicing.
	RegionsManifest string

	// Path of the frame record file. Empty disables recording.
	Recordfile string

	// M-class cores never leave Thumb, so the secondary decoder is
	// disabled and the Thumb decoder becomes the only one.
	MClass bool

	Logger *log.Logger
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}
