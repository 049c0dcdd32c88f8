// wirecli connects to a message stream endpoint and bridges it to the
// terminal: stdin lines go out as messages, inbound messages and client
// events print to stdout. Useful for poking at an endpoint and for
// watching the reconnect/queue machinery work.
//
// Usage:
//
//	wirecli --addr ws://localhost:8765/stream
//	wirecli --config configs/wirecli.yaml
//
// Lines starting with "/" are commands: /ping, /json <object>, /stats,
// /quit. Everything else is sent as a text message.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/viaduct-io/wireline/internal/config"
	"github.com/viaduct-io/wireline/internal/persist"
	"github.com/viaduct-io/wireline/internal/version"
	"github.com/viaduct-io/wireline/pkg/client"
	"github.com/viaduct-io/wireline/pkg/wire"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	addr := flag.String("addr", "", "stream endpoint (overrides config)")
	verbose := flag.Bool("verbose", false, "print full message envelopes")
	flag.Parse()

	cfg, logger, err := loadConfig(*configPath, *addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	logger.Info("starting wirecli",
		"version", version.Version,
		"commit", version.Commit,
		"addr", cfg.Stream.Addr,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	mgr := client.New(cfg.ClientConfig(), nil, logger)
	defer mgr.Close()

	// Optional queue journal: restore pending messages from the last
	// run, snapshot them again on shutdown.
	var journal *persist.Journal
	if cfg.Journal.Enabled() {
		pool, err := persist.Connect(ctx, cfg.Journal.Postgres)
		if err != nil {
			logger.Error("failed to connect journal database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		journal = persist.NewJournal(pool, cfg.Instance.ID)
		if err := journal.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure journal schema", "error", err)
			os.Exit(1)
		}
		mgr.AttachJournal(journal)

		restored, err := mgr.RestorePending(ctx)
		if err != nil {
			logger.Error("failed to restore pending messages", "error", err)
			os.Exit(1)
		}
		if restored > 0 {
			logger.Info("restored pending messages", "count", restored)
		}
	}

	if err := mgr.Connect(ctx); err != nil {
		// The manager keeps retrying on its own; report and carry on.
		logger.Warn("initial connect failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return printMessages(gctx, mgr, *verbose) })
	g.Go(func() error { return printEvents(gctx, mgr, logger) })
	g.Go(func() error { return readInput(gctx, cancel, mgr, logger) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("session ended", "error", err)
	}

	if journal != nil {
		persistCtx, persistCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer persistCancel()
		if n, err := mgr.PersistPending(persistCtx); err != nil {
			logger.Error("failed to persist pending messages", "error", err)
		} else if n > 0 {
			logger.Info("persisted pending messages", "count", n)
		}
	}

	mgr.Disconnect()
	logger.Info("wirecli stopped")
}

// loadConfig builds the app config from a file, a bare --addr, or both,
// and a logger from its logging section.
func loadConfig(path, addr string) (*config.AppConfig, *slog.Logger, error) {
	var cfg *config.AppConfig
	if path != "" {
		loaded, err := config.LoadAndValidate(path)
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = &config.AppConfig{}
		cfg.Logging.Level = config.DefaultLogLevel
		cfg.Logging.Format = config.DefaultLogFormat
	}
	if addr != "" {
		cfg.Stream.Addr = addr
	}
	if cfg.Stream.Addr == "" {
		return nil, nil, fmt.Errorf("no endpoint: pass --addr or set stream.addr in the config")
	}
	return cfg, newLogger(cfg.Logging), nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// printMessages prints inbound messages until the stream or context
// ends.
func printMessages(ctx context.Context, mgr *client.Manager, verbose bool) error {
	msgs, cancel := mgr.Messages()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if verbose {
				envelope, err := wire.Encode(msg)
				if err != nil {
					fmt.Printf("<< [%s] %s (encode: %v)\n", msg.Payload.Kind(), msg.ID, err)
					continue
				}
				fmt.Printf("<< %s\n", envelope)
				continue
			}
			body, _ := wire.Body(msg.Payload)
			fmt.Printf("<< [%s] %s\n", msg.Payload.Kind(), body)
		}
	}
}

// printEvents logs lifecycle events.
func printEvents(ctx context.Context, mgr *client.Manager, logger *slog.Logger) error {
	events, cancel := mgr.Events()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case client.EventError, client.EventConnectionFailed, client.EventReconnectionFailed, client.EventMessageDropped:
				logger.Warn("client event", "type", ev.Type, "error", ev.Err, "message_id", ev.MessageID)
			case client.EventReconnecting:
				logger.Info("client event", "type", ev.Type, "attempt", ev.Attempt)
			default:
				logger.Info("client event", "type", ev.Type)
			}
		}
	}
}

// readInput turns stdin lines into outbound messages. EOF or /quit
// cancels the whole session. The scanner runs in its own goroutine so
// a shutdown signal is not stuck behind a blocking read.
func readInput(ctx context.Context, cancel context.CancelFunc, mgr *client.Manager, logger *slog.Logger) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				cancel()
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		var err error
		switch {
		case line == "/quit":
			cancel()
			return nil
		case line == "/ping":
			err = mgr.Ping()
		case line == "/stats":
			printStats(mgr)
		case strings.HasPrefix(line, "/json "):
			err = sendJSON(mgr, strings.TrimPrefix(line, "/json "))
		default:
			err = mgr.SendText(line)
		}

		if err != nil {
			logger.Warn("send failed", "error", err)
		}
	}
}

func sendJSON(mgr *client.Manager, raw string) error {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return mgr.SendJSON(v)
}

func printStats(mgr *client.Manager) {
	s := mgr.Statistics()
	fmt.Printf("state=%s reconnect_attempt=%d queue=%d/%d sent=%d received=%d errors=%d latency=%s\n",
		s.State,
		s.ReconnectAttempt,
		s.Queue.Size, s.Queue.Capacity,
		s.Connection.Sent, s.Connection.Received, s.Connection.Errors,
		s.Connection.Latency,
	)
}
