package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"swotrace/config"
	"swotrace/internal/common"
	"swotrace/logging"
	"swotrace/metrics"
	"swotrace/session"
)

// newRootCommand builds the swotrace CLI described by §6: a file or
// network byte source feeding one Session's pump loop. Connection
// management, file tailing and FIFO/pipe republishing are the host
// application's concern and are not implemented here (§1 Non-goals) —
// openSource below is deliberately the thinnest possible collaborator.
func newRootCommand(version string) *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:               "swotrace",
		Version:           version,
		SilenceErrors:     true,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
	}
	cmd.Flags().StringVar(&configFile, "config", "", "optional YAML config file, overridden by flags")
	v := config.BindFlags(cmd.Flags(), config.Default())
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return runRoot(cmd, configFile, v)
	}
	return cmd
}

func runRoot(cmd *cobra.Command, configFile string, v *config.FlagValues) error {
	cfg, err := config.LoadFile(config.Default(), configFile)
	if err != nil {
		return err
	}
	cfg, err = config.ApplyFlags(cfg, v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.NewSlogLogger(os.Stderr, cfg.Verbosity)
	reg := metrics.NewRegistry()
	sess := session.New(log, cfg)
	metrics.Wire(reg, sess)

	src, closeSrc, err := openSource(cfg)
	if err != nil {
		return fmt.Errorf("opening trace source: %w", err)
	}
	defer closeSrc()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Log(common.SeverityInfo, "swotrace", "shutting down on signal")
		cancel()
	}()

	go metrics.Serve(ctx, reg, log)

	return pump(ctx, sess, src, cfg.TPIUEnabled)
}

// openSource resolves the §6 -f/-s surface to a byte stream: a plain
// file read, or a bare TCP dial (a source without a port uses
// cfg.NetworkPort). Reconnection policy, FIFO/pipe
// publication and the terminal UI are out of scope (§1).
func openSource(cfg config.Config) (io.Reader, func(), error) {
	if cfg.InputFile != "" {
		f, err := os.Open(cfg.InputFile)
		if err != nil {
			return nil, nil, err
		}
		return bufio.NewReader(f), func() { f.Close() }, nil
	}
	addr := cfg.Source
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, fmt.Sprint(cfg.NetworkPort))
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	return bufio.NewReader(conn), func() { conn.Close() }, nil
}

// pump is the §5 pump thread: it owns sess exclusively and feeds it one
// byte at a time until the source is exhausted or ctx is cancelled.
// Reconnection on EOF is the host application's concern (§1 Non-goals);
// this loop simply stops. With TPIU framing disabled (-t not given) the
// source is assumed to already be a bare ITM byte stream.
func pump(ctx context.Context, sess *session.Session, src io.Reader, tpiuEnabled bool) error {
	feed := sess.PumpTPIU
	if !tpiuEnabled {
		feed = sess.PumpITM
	}

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := src.Read(buf)
		for i := 0; i < n; i++ {
			feed(buf[i])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
