// ABOUTME: Entry point for the Sendspin Companion player
// ABOUTME: Builds config from .env, environment and flags, then runs the player until interrupted
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Sendspin/sendspin-companion/internal/artwork"
	"github.com/Sendspin/sendspin-companion/internal/config"
	"github.com/Sendspin/sendspin-companion/internal/discovery"
	"github.com/Sendspin/sendspin-companion/internal/lifecycle"
	"github.com/Sendspin/sendspin-companion/internal/logging"
	"github.com/Sendspin/sendspin-companion/internal/nowplaying"
	"github.com/Sendspin/sendspin-companion/internal/session"
	"github.com/Sendspin/sendspin-companion/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	discoveryTimeout = 10 * time.Second
	reconnectDelay   = 2 * time.Second
	artworkTimeout   = 15 * time.Second
)

var flags struct {
	server    string
	name      string
	id        string
	device    string
	syncDelay int
	token     string
	backend   string
	bufferMs  int
	logLevel  string
	logFile   string
}

var rootCmd = &cobra.Command{
	Use:   "sendspin-companion",
	Short: "Synchronized Sendspin audio player",
	Long: `Plays audio streamed by a Sendspin server in sync with the rest of its group.

Settings are read from a .env file, then SENDSPIN_* environment variables,
then flags. Without --server the first server found over mDNS is used.

While running, type commands on stdin:
  play | pause | stop | next | previous
  vol <0-100> | mute [on|off] | unmute
  status | quit`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runPlayer,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&flags.server, "server", "s", "", "Server websocket URL or host:port (default: mDNS discovery)")
	f.StringVarP(&flags.name, "name", "n", "", "Player name shown by the server (default: hostname)")
	f.StringVar(&flags.id, "id", "", "Stable player id (default: random)")
	f.StringVarP(&flags.device, "device", "d", "", "Output device id, see the devices command")
	f.IntVar(&flags.syncDelay, "sync-delay", 0, "Static output delay compensation in ms (-5000 to 5000)")
	f.StringVar(&flags.token, "token", "", "Server auth token")
	f.StringVar(&flags.backend, "backend", config.BackendMalgo, "Audio backend: malgo or oto")
	f.IntVar(&flags.bufferMs, "buffer-ms", 500, "Start buffer in ms before the first chunk plays")
	f.StringVar(&flags.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	f.StringVar(&flags.logFile, "log-file", "", "Also write JSON logs to this file")

	rootCmd.AddCommand(devicesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig layers flags that were set explicitly over .env and environment values
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	f := cmd.Flags()
	if f.Changed("server") {
		cfg.ServerURL = normalizeServer(flags.server)
	}
	if f.Changed("name") {
		cfg.PlayerName = flags.name
	}
	if f.Changed("id") {
		cfg.PlayerID = flags.id
	}
	if f.Changed("device") {
		cfg.DeviceID = flags.device
	}
	if f.Changed("sync-delay") {
		cfg.SyncDelayMs = flags.syncDelay
	}
	if f.Changed("token") {
		cfg.AuthToken = flags.token
	}
	if f.Changed("backend") {
		cfg.Backend = flags.backend
	}
	if f.Changed("buffer-ms") {
		cfg.StartBufferMs = flags.bufferMs
	}
	if f.Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if f.Changed("log-file") {
		cfg.LogFile = flags.logFile
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// normalizeServer accepts a bare host:port as shorthand for the default websocket path
func normalizeServer(server string) string {
	server = strings.TrimSpace(server)
	if server == "" || strings.Contains(server, "://") {
		return server
	}
	return "ws://" + strings.TrimSuffix(server, "/") + "/sendspin"
}

func runPlayer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, flush, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer flush()

	logger.Info("starting",
		zap.String("version", version.String()),
		zap.String("player_name", cfg.PlayerName),
		zap.String("player_id", cfg.PlayerID),
		zap.String("backend", cfg.Backend))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.ServerURL == "" {
		cfg.ServerURL, err = discoverServer(ctx, logger)
		if err != nil {
			return err
		}
	}

	art, cleanupArt := newArtworkCache(logger)
	defer cleanupArt()

	store := nowplaying.NewStore()
	defer store.Subscribe(printSnapshot(ctx, cmd.OutOrStdout(), art))()

	backend, closeBackend := session.NewBackend(cfg, logger)
	factory := func(c config.Config) lifecycle.Runner {
		return session.New(c,
			session.WithLogger(logger),
			session.WithSink(store),
			session.WithBackend(backend))
	}

	manager := lifecycle.NewManager(factory, lifecycle.WithLogger(logger))
	defer shutdown(manager, closeBackend, logger)

	if _, err := manager.Start(cfg); err != nil {
		return err
	}

	quit := make(chan struct{})
	go readCommands(cmd.InOrStdin(), cmd.OutOrStdout(), manager, store, logger, quit)

	superviseSession(ctx, manager, cfg, quit, logger)
	logger.Info("shutting down")
	return nil
}

// superviseSession restarts the session after it ends until ctx is done or quit closes
func superviseSession(ctx context.Context, manager *lifecycle.Manager, cfg config.Config, quit <-chan struct{}, logger *zap.Logger) {
	for {
		var done <-chan struct{}
		if h := manager.Current(); h != nil {
			done = h.Done()
		}

		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case <-done:
		}

		logger.Info("session ended, reconnecting", zap.Duration("delay", reconnectDelay))

		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case <-time.After(reconnectDelay):
		}

		if _, err := manager.Start(cfg); err != nil {
			logger.Error("restart failed", zap.Error(err))
			return
		}
	}
}

func discoverServer(ctx context.Context, logger *zap.Logger) (string, error) {
	logger.Info("searching for server", zap.String("service", discovery.ServiceType))

	ctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	srv, err := discovery.NewBrowser(discovery.WithLogger(logger)).First(ctx)
	if err != nil {
		return "", fmt.Errorf("%w after %s, use --server", err, discoveryTimeout)
	}
	return config.ServerURLFromHost(srv.Host, srv.Port, srv.Path), nil
}

// shutdown stops the session, then releases the audio backend. A session
// abandoned after the stop timeout may still hold the device, so the backend
// is left open for process exit to reclaim.
func shutdown(m interface{ Shutdown() error }, release func(), logger *zap.Logger) {
	if err := m.Shutdown(); err != nil {
		logger.Warn("leaving audio backend open", zap.Error(err))
		return
	}
	release()
}

// newArtworkCache returns the artwork cache and a func removing its files.
// Artwork is disabled when the cache directory cannot be created.
func newArtworkCache(logger *zap.Logger, opts ...artwork.Option) (*artwork.Downloader, func()) {
	dl, err := artwork.NewDownloader(append([]artwork.Option{artwork.WithLogger(logger)}, opts...)...)
	if err != nil {
		logger.Warn("artwork cache disabled", zap.Error(err))
		return nil, func() {}
	}
	return dl, func() {
		if err := dl.Cleanup(); err != nil {
			logger.Warn("artwork cleanup failed", zap.Error(err))
		}
	}
}

// printSnapshot prints each now-playing change and caches new artwork
func printSnapshot(ctx context.Context, w io.Writer, art *artwork.Downloader) func(nowplaying.Snapshot) {
	var (
		mu      sync.Mutex
		lastURL string
	)

	return func(s nowplaying.Snapshot) {
		fmt.Fprintf(w, "♪ %s\n", s)

		if art == nil {
			return
		}
		mu.Lock()
		changed := s.ImageURL != lastURL
		lastURL = s.ImageURL
		mu.Unlock()
		if !changed || s.ImageURL == "" {
			return
		}

		go func(url string) {
			dctx, cancel := context.WithTimeout(ctx, artworkTimeout)
			defer cancel()
			if path, err := art.Download(dctx, url); err == nil {
				fmt.Fprintf(w, "  artwork: %s\n", path)
			}
		}(s.ImageURL)
	}
}

// readCommands forwards stdin lines to the running session. quit is closed on
// "quit" or "exit". End of input only stops reading.
func readCommands(r io.Reader, w io.Writer, manager *lifecycle.Manager, store *nowplaying.Store, logger *zap.Logger, quit chan<- struct{}) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			close(quit)
			return
		case "status":
			fmt.Fprintf(w, "%s | %s\n", manager.Status(), store.Get())
			continue
		}

		cmd, err := session.ParseCommand(line)
		if err == nil {
			err = manager.SendCommand(cmd)
		}
		if err != nil {
			fmt.Fprintf(w, "! %v\n", err)
			if !errors.Is(err, session.ErrCommandRejected) {
				logger.Warn("command failed", zap.String("input", line), zap.Error(err))
			}
		}
	}
}
