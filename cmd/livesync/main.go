// Command livesync runs the real-time sync layer against a push endpoint
// and inspects protocol captures.
//
// Usage:
//
//	livesync [run] [flags]
//	livesync log view [flags] <file.lslog>
//	livesync log stats <file.lslog>
//
// Examples:
//
//	# Connect with settings from livesync.yaml and LIVESYNC_* variables
//	livesync run -c livesync.yaml
//
//	# Interactive console over an event-stream endpoint
//	livesync run -i --transport eventstream --push-url https://push.example.com/events
//
//	# Record a protocol capture and view it afterwards
//	livesync run --protocol-log session.lslog
//	livesync log view --layer envelope session.lslog
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/sensorwatch/livesync/cmd/livesync/console"
	"github.com/sensorwatch/livesync/cmd/livesync/logcmd"
	"github.com/sensorwatch/livesync/internal/config"
	"github.com/sensorwatch/livesync/internal/status"
	"github.com/sensorwatch/livesync/pkg/bridge"
	"github.com/sensorwatch/livesync/pkg/cache"
	"github.com/sensorwatch/livesync/pkg/credential"
	"github.com/sensorwatch/livesync/pkg/event"
	"github.com/sensorwatch/livesync/pkg/fetch"
	"github.com/sensorwatch/livesync/pkg/log"
	"github.com/sensorwatch/livesync/pkg/service"
	"github.com/sensorwatch/livesync/pkg/transport"
)

const usage = `livesync - real-time event sync client

Usage:
  livesync [run] [flags]
  livesync log view [flags] <file>
  livesync log stats <file>

Use "livesync <command> --help" for more information about a command.
`

func main() {
	args := os.Args[1:]
	cmd := "run"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "run":
		err = runSync(args)
	case "log":
		err = runLog(args)
	case "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runSync(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.StringP("config", "c", "", "YAML configuration file")
	envFile := fs.String("env-file", "", "dotenv file (default .env)")
	interactive := fs.BoolP("interactive", "i", false, "start the interactive console")
	pushURL := fs.String("push-url", "", "push endpoint (overrides config)")
	transportName := fs.String("transport", "", "websocket or eventstream (overrides config)")
	apiURL := fs.String("api-url", "", "REST API root (overrides config)")
	protocolLog := fs.String("protocol-log", "", "write a CBOR protocol capture to this file")
	statusAddr := fs.String("status-addr", "", "serve the status endpoint on this address")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, *envFile, func(c *config.Config) {
		override(&c.Push.URL, *pushURL)
		override(&c.Push.Transport, *transportName)
		override(&c.API.URL, *apiURL)
		override(&c.Log.Protocol, *protocolLog)
		override(&c.Status.Addr, *statusAddr)
		override(&c.Log.Level, *logLevel)
	})
	if err != nil {
		return err
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var plog log.Logger
	if cfg.Log.Protocol != "" {
		fileLogger, err := log.NewFileLogger(cfg.Log.Protocol)
		if err != nil {
			return fmt.Errorf("protocol log: %w", err)
		}
		defer func() {
			if n := fileLogger.Dropped(); n > 0 {
				logger.Warn("protocol log dropped events", "count", n)
			}
			fileLogger.Close()
		}()
		plog = log.NewMultiLogger(fileLogger, log.NewSlogAdapter(logger))
		logger.Info("protocol logging enabled", "file", cfg.Log.Protocol)
	}

	tlsConfig, err := transport.NewClientTLSConfig(cfg.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	creds := credential.NewCached(staticMinter(cfg.Push.Token), 0, nil)

	svcCfg := service.DefaultConfig()
	svcCfg.Transport = newTransport(cfg.Push, tlsConfig, plog)
	svcCfg.Credentials = creds
	svcCfg.Backoff = cfg.Backoff
	svcCfg.Linger = cfg.Session.Linger
	svcCfg.AnalyticsRefresh = cfg.Analytics.Refresh
	svcCfg.Logger = logger
	svcCfg.ProtocolLogger = plog
	if cfg.API.URL != "" {
		client := transport.NewHTTPClient(tlsConfig)
		client.Timeout = cfg.API.Timeout
		fetcher, err := fetch.New(fetch.Config{
			BaseURL:     cfg.API.URL,
			Client:      client,
			Credentials: creds,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		svcCfg.Fetcher = fetcher
	}

	svc, err := service.New(svcCfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Close()

	release, err := svc.Hold(ctx)
	if err != nil {
		return err
	}
	defer release()

	if cfg.Status.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Status.Addr,
			Handler:           status.NewRouter(svc, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("status endpoint listening", "addr", cfg.Status.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status endpoint failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.API.URL != "" {
		prime(ctx, svc, logger)
	}

	if *interactive {
		c, err := console.New(svc)
		if err != nil {
			return err
		}
		go waitForSignal(cancel)
		c.Run(ctx, cancel)
		return nil
	}

	for _, t := range event.Types() {
		unsubscribe := svc.Subscribe(t, func(env event.Envelope) {
			logger.Info("event", "type", env.Type, "entity", event.EntityID(env.Data))
		})
		defer unsubscribe()
	}

	waitForSignal(cancel)
	logger.Info("shutting down")
	return nil
}

// prime loads the default views so push events have entries to merge into.
func prime(ctx context.Context, svc *service.Service, logger *slog.Logger) {
	keys := []cache.Key{
		bridge.AlertListKey(bridge.AlertFilter{}),
		bridge.DeviceListKey(bridge.DeviceFilter{}),
		bridge.SummaryKey(""),
	}
	for _, key := range keys {
		if _, err := svc.Cache().Refetch(ctx, key); err != nil {
			logger.Warn("initial fetch failed", "key", key.String(), "error", err)
		}
	}
}

func newTransport(cfg config.PushConfig, tlsConfig *tls.Config, plog log.Logger) transport.Transport {
	if cfg.Transport == transport.NameEventStream {
		return transport.NewEventStream(transport.EventStreamConfig{
			URL:    cfg.URL,
			Client: transport.NewHTTPClient(tlsConfig),
			Logger: plog,
		})
	}
	return transport.NewWebSocket(transport.WebSocketConfig{URL: cfg.URL, TLS: tlsConfig, Logger: plog})
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func waitForSignal(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	<-sigCh
	cancel()
}

func runLog(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: livesync log view|stats <file>")
	}
	switch args[0] {
	case "view":
		return runLogView(args[1:])
	case "stats":
		fs := flag.NewFlagSet("stats", flag.ExitOnError)
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return errors.New("usage: livesync log stats <file>")
		}
		return logcmd.RunStats(fs.Arg(0), os.Stdout)
	default:
		return fmt.Errorf("unknown log command: %s", args[0])
	}
}

func runLogView(args []string) error {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	connID := fs.String("conn-id", "", "filter by connection ID")
	layer := fs.String("layer", "", "filter by layer (transport, envelope, session)")
	direction := fs.String("direction", "", "filter by direction (in, out)")
	category := fs.String("category", "", "filter by category (message, control, state, error)")
	eventType := fs.String("type", "", "filter by envelope type, e.g. alert.created")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: livesync log view [flags] <file>")
	}

	filter := log.Filter{ConnectionID: *connID, EventType: *eventType}
	if *layer != "" {
		l, err := logcmd.ParseLayer(*layer)
		if err != nil {
			return err
		}
		filter.Layer = &l
	}
	if *direction != "" {
		d, err := logcmd.ParseDirection(*direction)
		if err != nil {
			return err
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := logcmd.ParseCategory(*category)
		if err != nil {
			return err
		}
		filter.Category = &c
	}
	return logcmd.RunView(fs.Arg(0), filter, os.Stdout)
}

// staticMinter serves the configured token with a rolling one-hour
// lifetime. A token the server rejects is dropped and minted again.
func staticMinter(token string) credential.Minter {
	return func(context.Context) (string, time.Time, error) {
		if token == "" {
			return "", time.Time{}, credential.ErrNoPrincipal
		}
		return token, time.Now().Add(time.Hour), nil
	}
}
