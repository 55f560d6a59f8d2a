package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"swotrace/internal/common"
)

// BindFlags registers the §6 command-line surface onto fs, defaulting
// every flag to cfg's current value so callers can layer flags on top
// of file/environment defaults before calling ApplyFlags.
func BindFlags(fs *pflag.FlagSet, cfg Config) *FlagValues {
	v := &FlagValues{fs: fs}
	fs.BoolVarP(&v.EndAtEOF, "end-at-eof", "e", cfg.EndAtEOF, "stop when the input file reaches EOF")
	fs.StringVarP(&v.InputFile, "file", "f", cfg.InputFile, "read raw trace bytes from FILE instead of the network")
	fs.StringVarP(&v.Source, "source", "s", cfg.Source, "network source as HOST:PORT")
	fs.IntVarP(&v.TPIUChannel, "tpiu-channel", "t", cfg.TPIUChannel, "enable TPIU framing and demultiplex this stream ID")
	fs.BoolVarP(&v.RelaxITMSync, "relax-itm-sync", "n", cfg.RelaxITMSync, "do not require ITM sync before decoding packets")
	fs.StringArrayVarP(&v.Channels, "channel", "c", nil, "register a software channel format as N,FMT (repeatable)")
	fs.StringVarP(&v.Verbosity, "verbosity", "v", cfg.Verbosity.String(), "diagnostic verbosity: debug, info, warn, error")
	fs.IntVarP(&v.PMRingKiB, "pm-ring-kib", "b", cfg.PMRingKiB, "post-mortem ring size in KiB")
	fs.BoolVarP(&v.PostMortem, "post-mortem", "E", cfg.PostMortem, "terminate at EOF for post-mortem capture")
	return v
}

// FlagValues holds the raw pflag-bound values before they are folded
// back onto a Config by ApplyFlags.
type FlagValues struct {
	fs *pflag.FlagSet

	EndAtEOF     bool
	InputFile    string
	Source       string
	TPIUChannel  int
	RelaxITMSync bool
	Channels     []string
	Verbosity    string
	PMRingKiB    int
	PostMortem   bool
}

// ApplyFlags overlays v onto cfg and parses the -c N,FMT channel
// registrations, returning a *common.Error (KindConfigError) for a
// malformed entry.
func ApplyFlags(cfg Config, v *FlagValues) (Config, error) {
	cfg.EndAtEOF = v.EndAtEOF
	cfg.InputFile = v.InputFile
	cfg.Source = v.Source
	cfg.TPIUChannel = v.TPIUChannel
	if v.fs != nil && v.fs.Changed("tpiu-channel") {
		cfg.TPIUEnabled = true
	}
	cfg.RelaxITMSync = v.RelaxITMSync
	cfg.PMRingKiB = v.PMRingKiB
	cfg.PostMortem = v.PostMortem

	sev, err := parseSeverity(v.Verbosity)
	if err != nil {
		return cfg, err
	}
	cfg.Verbosity = sev

	for _, raw := range v.Channels {
		cf, err := parseChannelFormat(raw)
		if err != nil {
			return cfg, err
		}
		cfg.Channels = append(cfg.Channels, cf)
	}
	return cfg, nil
}

func parseSeverity(s string) (common.Severity, error) {
	switch strings.ToLower(s) {
	case "debug":
		return common.SeverityDebug, nil
	case "info", "":
		return common.SeverityInfo, nil
	case "warn", "warning":
		return common.SeverityWarning, nil
	case "error":
		return common.SeverityError, nil
	default:
		return 0, common.New(common.SeverityError, common.KindConfigError, "config", fmt.Sprintf("unknown verbosity %q", s))
	}
}

func parseChannelFormat(raw string) (ChannelFormat, error) {
	n, fmtStr, ok := strings.Cut(raw, ",")
	if !ok {
		return ChannelFormat{}, common.New(common.SeverityError, common.KindConfigError, "config", fmt.Sprintf("malformed channel spec %q, want N,FMT", raw))
	}
	ch, err := strconv.Atoi(n)
	if err != nil {
		return ChannelFormat{}, common.New(common.SeverityError, common.KindConfigError, "config", fmt.Sprintf("malformed channel number in %q", raw))
	}
	return ChannelFormat{Channel: ch, Format: fmtStr}, nil
}
