// Package config loads the session configuration described by §6's CLI
// surface: baked-in defaults (whose network port comes from the
// NWCLIENT_SERVER_PORT environment variable when set), overridden by an
// optional YAML file, overridden in turn by command-line flags. Grounded on the teacher's
// load-with-defaults idiom, adapted to a layered source instead of
// environment-only.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"swotrace/internal/common"
)

// ChannelFormat is one registered -c N,FMT software-channel format
// string (§6).
type ChannelFormat struct {
	Channel int    `yaml:"channel"`
	Format  string `yaml:"format"`
}

// Config is the fully resolved session configuration.
type Config struct {
	InputFile    string          `yaml:"inputFile"`
	Source       string          `yaml:"source"`
	EndAtEOF     bool            `yaml:"endAtEOF"`
	TPIUChannel  int             `yaml:"tpiuChannel"`
	TPIUEnabled  bool            `yaml:"tpiuEnabled"`
	RelaxITMSync bool            `yaml:"relaxItmSync"`
	Channels     []ChannelFormat `yaml:"channels"`
	Verbosity    common.Severity `yaml:"-"`
	PMRingKiB    int             `yaml:"pmRingKiB"`
	PostMortem   bool            `yaml:"postMortem"`
	ChanPath     string          `yaml:"chanPath"`
	NetworkPort  int             `yaml:"networkPort"`
}

// Default returns the configuration's baked-in defaults, applied before
// any file or flag override.
func Default() Config {
	return Config{
		Source:      "localhost",
		TPIUChannel: 2,
		PMRingKiB:   32,
		ChanPath:    "/tmp/swotrace/",
		NetworkPort: networkPortDefault(),
		Verbosity:   common.SeverityInfo,
	}
}

// networkPortDefault mirrors §6: the reserved NWCLIENT_SERVER_PORT
// environment variable, or a hardcoded fallback.
func networkPortDefault() int {
	if v := os.Getenv("NWCLIENT_SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			return p
		}
	}
	return 2332
}

// LoadFile merges a YAML config file's contents onto cfg. A missing file
// is not an error; a malformed one is (*common.Error, KindConfigError).
func LoadFile(cfg Config, path string) (Config, error) {
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, common.New(common.SeverityError, common.KindConfigError, "config", err.Error())
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, common.New(common.SeverityError, common.KindConfigError, "config", fmt.Sprintf("parsing %s: %v", path, err))
	}
	return cfg, nil
}

// Validate reports a ConfigError for combinations §6/§7 treat as fatal.
func (c Config) Validate() error {
	if c.InputFile == "" && c.Source == "" {
		return common.New(common.SeverityError, common.KindConfigError, "config", "no input file or network source configured")
	}
	if c.PMRingKiB*1024 < 1024 {
		return common.New(common.SeverityError, common.KindConfigError, "config", "PM ring size below 1 KiB minimum")
	}
	return nil
}
