// rtclient connects to a realtime server and prints what it receives.
// Lines typed on stdin are sent as JSON frames; each must be an object with
// a "type" field.
//
// Usage: go run ./cmd/rtclient --config configs/client.example.yaml --subscribe news,prices
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/realtime-client/internal/auth"
	"github.com/rickgao/realtime-client/internal/config"
	"github.com/rickgao/realtime-client/internal/connection"
	"github.com/rickgao/realtime-client/internal/logging"
	"github.com/rickgao/realtime-client/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/client.example.yaml", "path to config file")
	subscribe := flag.String("subscribe", "", "comma-separated channels to subscribe to")
	raw := flag.Bool("raw", false, "log reserved protocol frames")
	statsEvery := flag.Duration("stats", 0, "print connection stats at this interval (0 disables)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("rtclient", version.String())
		return
	}

	opts := options{
		configPath: *configPath,
		subscribe:  *subscribe,
		raw:        *raw,
		statsEvery: *statsEvery,
	}
	if err := run(opts); err != nil {
		slog.Error("rtclient failed", "error", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	subscribe  string
	raw        bool
	statsEvery time.Duration
}

func run(opts options) error {
	cfg, err := config.LoadAndValidate(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.FromConfig(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	logger.Info("starting rtclient", "version", version.Version, "url", cfg.Server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	mcfg := connection.ManagerConfigFrom(*cfg)
	if opts.raw {
		mcfg.RawFrameHook = func(dir connection.Direction, kind string, data []byte) {
			logger.Debug("frame", "direction", dir, "type", kind, "data", string(data))
		}
	}

	if cfg.Auth.TokenURL != "" {
		provider := auth.NewHTTPProvider(auth.HTTPConfigFrom(cfg.Auth), nil, logger)
		if err := provider.Start(ctx); err != nil {
			return fmt.Errorf("start token provider: %w", err)
		}
		defer func() {
			if err := stopWithTimeout(provider.Stop); err != nil {
				logger.Warn("token provider stop", "error", err)
			}
		}()
		mcfg.Credentials = provider
	}

	mgr := connection.NewManager(mcfg, nil, logger)
	watcher := mgr.Watch(cfg.Connection.EventBufferSize)

	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start connection manager: %w", err)
	}

	for _, ch := range splitChannels(opts.subscribe) {
		if err := mgr.Subscribe(ch); err != nil {
			logger.Error("subscribe failed", "channel", ch, "error", err)
		}
	}

	go printEvents(os.Stdout, watcher)
	go readFrames(ctx, os.Stdin, mgr, logger)

	if opts.statsEvery > 0 {
		go func() {
			ticker := time.NewTicker(opts.statsEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s := mgr.Stats()
					logger.Info("stats",
						"state", s.State,
						"connection_id", s.ConnectionID,
						"subscriptions", s.Subscriptions,
						"queued", s.QueueLen,
						"received", s.FramesReceived,
						"sent", s.FramesSent,
						"dropped", s.QueueDropped,
					)
				}
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down...")

	if err := stopWithTimeout(mgr.Stop); err != nil {
		logger.Warn("connection manager stop", "error", err)
	}
	logger.Info("rtclient stopped")
	return nil
}

func stopWithTimeout(stop func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return stop(ctx)
}

func splitChannels(s string) []string {
	var out []string
	for _, ch := range strings.Split(s, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			out = append(out, ch)
		}
	}
	return out
}

// printEvents writes one line per event until the watcher closes.
func printEvents(w io.Writer, watcher *connection.Watcher) {
	for ev := range watcher.C {
		fmt.Fprintln(w, formatEvent(ev))
	}
}

func formatEvent(ev connection.Event) string {
	ts := ev.Time.Format("15:04:05.000")
	switch ev.Type {
	case connection.EventMessage:
		return fmt.Sprintf("%s < %s", ts, ev.Message.Payload)
	case connection.EventStateChanged:
		return fmt.Sprintf("%s * %s -> %s", ts, ev.PrevState, ev.State)
	case connection.EventReconnecting:
		return fmt.Sprintf("%s * reconnecting attempt=%d delay=%s", ts, ev.Attempt, ev.Delay)
	case connection.EventSubscribed, connection.EventUnsubscribed:
		return fmt.Sprintf("%s * %s %s", ts, ev.Type, ev.Channel)
	case connection.EventSystem:
		return fmt.Sprintf("%s * connection id %s", ts, ev.ConnectionID)
	}
	if ev.Err != nil {
		return fmt.Sprintf("%s ! %s: %v", ts, ev.Type, ev.Err)
	}
	return fmt.Sprintf("%s * %s", ts, ev.Type)
}

// readFrames sends each stdin line as a frame.
func readFrames(ctx context.Context, r io.Reader, mgr connection.Manager, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		kind, fields, err := parseFrame(line)
		if err != nil {
			logger.Warn("invalid frame", "error", err)
			continue
		}
		if err := mgr.Send(kind, fields); err != nil {
			logger.Warn("send failed", "type", kind, "error", err)
		}
	}
}

func parseFrame(line string) (string, map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return "", nil, fmt.Errorf("not a JSON object: %w", err)
	}
	var kind string
	if raw, ok := fields["type"]; ok {
		if err := json.Unmarshal(raw, &kind); err != nil {
			return "", nil, fmt.Errorf("type must be a string")
		}
	}
	if kind == "" {
		return "", nil, fmt.Errorf("missing type")
	}
	return kind, fields, nil
}
