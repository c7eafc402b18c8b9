// Package settings is the reactor's configuration layer: the settings
// struct, cli.Flag definitions, and validation, grounded on
// server/main.go's Config/cli.App pattern — one struct populated field by
// field from a *cli.Context, validated once in the cli.App's Action.
package settings

import (
	"fmt"
	"net"

	"github.com/denbykov/jkreactor/internal/core"
	"github.com/denbykov/jkreactor/internal/logx"
	"github.com/urfave/cli"
)

// Settings is the process-wide configuration described in §6.
type Settings struct {
	LogFile      string
	LogLevel     logx.Level
	Port         uint16
	Proxy        bool
	RemoteIP     string
	RemotePort   uint16
	RemoteUseUDP bool
}

// Flags returns the cli.App flag set for §6's CLI table.
func Flags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "log-file",
			Usage: "write logs to this file in append mode; otherwise stdout",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "INFO",
			Usage: "one of TRACE, DEBUG, INFO, NOTICE, WARN, ERROR, CRIT",
		},
		cli.IntFlag{
			Name:  "port",
			Usage: "bind TCP listener and UDP socket on this port",
		},
		cli.BoolFlag{
			Name:  "proxy",
			Usage: "enable proxy mode",
		},
		cli.StringFlag{
			Name:  "remote-ip",
			Usage: "upstream IPv4/IPv6 address, required iff --proxy",
		},
		cli.IntFlag{
			Name:  "remote-port",
			Usage: "upstream port, required iff --proxy",
		},
		cli.BoolFlag{
			Name:  "remote-use-udp",
			Usage: "accepted; behaviour reserved",
		},
	}
}

// FromContext populates a Settings from a parsed cli.Context and validates
// it, per §6's required/conditionally-required rules.
func FromContext(c *cli.Context) (*Settings, error) {
	s := &Settings{
		LogFile:      c.String("log-file"),
		Port:         uint16(c.Int("port")),
		Proxy:        c.Bool("proxy"),
		RemoteIP:     c.String("remote-ip"),
		RemotePort:   uint16(c.Int("remote-port")),
		RemoteUseUDP: c.Bool("remote-use-udp"),
	}

	lvl, ok := logx.ParseLevel(c.String("log-level"))
	if !ok {
		return nil, fmt.Errorf("invalid --log-level %q", c.String("log-level"))
	}
	s.LogLevel = lvl

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	if s.Port == 0 {
		return fmt.Errorf("--port is required and must be > 0")
	}
	if s.Proxy {
		if s.RemoteIP == "" {
			return fmt.Errorf("--remote-ip is required when --proxy is set")
		}
		if net.ParseIP(s.RemoteIP) == nil {
			return fmt.Errorf("--remote-ip %q is not a valid IPv4/IPv6 literal", s.RemoteIP)
		}
		if s.RemotePort == 0 {
			return fmt.Errorf("--remote-port is required and must be > 0 when --proxy is set")
		}
	}
	return nil
}

// RemoteAddr builds the core.Address dialed for each new proxy session.
func (s *Settings) RemoteAddr() core.Address {
	return core.NewAddressFromTCP(net.ParseIP(s.RemoteIP), s.RemotePort)
}

// Dump logs every setting at NOTICE, mirroring server/main.go's startup
// log.Println dump of the resolved config.
func (s *Settings) Dump(log *logx.Logger) {
	log.Noticef("port: %d", s.Port)
	log.Noticef("proxy: %v", s.Proxy)
	if s.Proxy {
		log.Noticef("remote: %s:%d", s.RemoteIP, s.RemotePort)
		log.Noticef("remote-use-udp: %v", s.RemoteUseUDP)
	}
	log.Noticef("log-level: %s", s.LogLevel)
	if s.LogFile != "" {
		log.Noticef("log-file: %s", s.LogFile)
	}
}
