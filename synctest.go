// ABOUTME: sync-test subcommand for checking clock sync against a server
// ABOUTME: Connects without an audio device and reports round trip and offset over time
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sendspin/sendspin-companion/internal/config"
	"github.com/Sendspin/sendspin-companion/internal/logging"
	"github.com/Sendspin/sendspin-companion/internal/session"
	"github.com/Sendspin/sendspin-companion/pkg/audio/output"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncTest struct {
	duration time.Duration
	interval time.Duration
}

var syncTestCmd = &cobra.Command{
	Use:   "sync-test",
	Short: "Connect without audio output and report clock sync",
	Long: `Joins the server as a player that discards audio and prints the
measured round trip, offset and sync quality once per second.`,
	Args: cobra.NoArgs,
	RunE: runSyncTest,
}

func init() {
	f := syncTestCmd.Flags()
	f.StringVarP(&flags.server, "server", "s", "", "Server websocket URL or host:port (default: mDNS discovery)")
	f.StringVar(&flags.token, "token", "", "Server auth token")
	f.StringVar(&flags.logLevel, "log-level", "warn", "Log level")
	f.DurationVar(&syncTest.duration, "duration", 15*time.Second, "How long to measure")
	f.DurationVar(&syncTest.interval, "interval", time.Second, "Time between client/time requests")

	rootCmd.AddCommand(syncTestCmd)
}

// silentEngine accepts output calls without opening a device
type silentEngine struct {
	volume int
	muted  bool
}

func (e *silentEngine) Start(output.Source) {}
func (e *silentEngine) Stop()               {}
func (e *silentEngine) SetVolume(v int)     { e.volume = v }
func (e *silentEngine) SetMuted(m bool)     { e.muted = m }
func (e *silentEngine) Volume() int         { return e.volume }
func (e *silentEngine) Muted() bool         { return e.muted }

func runSyncTest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.PlayerName = "sync-test"
	if _, set := os.LookupEnv(config.EnvLogLevel); !set && !cmd.Flags().Changed("log-level") {
		cfg.LogLevel = "warn"
	}

	logger, flush, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.ServerURL == "" {
		if cfg.ServerURL, err = discoverServer(ctx, logger); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sess := session.New(cfg,
		session.WithLogger(logger),
		session.WithEngine(&silentEngine{volume: 100}),
		session.WithSyncInterval(syncTest.interval))

	ctx, cancel := context.WithTimeout(ctx, syncTest.duration)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx) }()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "measuring clock sync with %s for %s\n", cfg.ServerURL, syncTest.duration)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case err := <-runErr:
			report(out, sess)
			if err != nil {
				logger.Error("session failed", zap.Error(err))
			}
			return err
		case <-ticker.C:
			report(out, sess)
		}
	}
}

func report(w io.Writer, sess *session.Session) {
	st := sess.Stats().Clock
	fmt.Fprintf(w, "%-12s samples=%-3d rtt=%-8s offset=%-10s quality=%s\n",
		sess.Status(),
		st.Samples,
		time.Duration(st.RTT)*time.Microsecond,
		time.Duration(st.Offset)*time.Microsecond,
		st.Quality)
}
