// Package config loads the capscan runtime configuration.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"capscan/internal/scan"
)

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", value.Value)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the full runtime configuration. Every field has a working
// default so an empty file (or no file at all) yields a usable engine.
type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Scan struct {
		TCPPorts     []uint16 `yaml:"tcp_ports"`
		UDPPorts     []uint16 `yaml:"udp_ports"`
		DialTimeout  Duration `yaml:"dial_timeout"`
		ProbeTimeout Duration `yaml:"probe_timeout"`
		Deadline     Duration `yaml:"deadline"`
		Workers      int      `yaml:"workers"`
	} `yaml:"scan"`

	Backends scan.Backends `yaml:"backends"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8087"
	cfg.Scan.DialTimeout = Duration(time.Second)
	cfg.Scan.ProbeTimeout = Duration(1500 * time.Millisecond)
	cfg.Scan.Deadline = Duration(15 * time.Second)
	cfg.Scan.Workers = 16
	cfg.Backends = scan.Backends{Scanner: true}
	cfg.LogLevel = "info"
	return cfg
}

// Load reads a YAML file over the defaults. A missing path is not an error;
// the defaults stand.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	return cfg, nil
}

// EngineOptions maps the scan section onto engine options.
func (c *Config) EngineOptions() scan.Options {
	return scan.Options{
		TCPPorts:     c.Scan.TCPPorts,
		UDPPorts:     c.Scan.UDPPorts,
		DialTimeout:  time.Duration(c.Scan.DialTimeout),
		ProbeTimeout: time.Duration(c.Scan.ProbeTimeout),
		Deadline:     time.Duration(c.Scan.Deadline),
		Workers:      c.Scan.Workers,
		Backends:     c.Backends,
	}
}
