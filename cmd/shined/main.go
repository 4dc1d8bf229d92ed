// Command shined is the Shine live meeting-equity server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/shinelabs/shine/internal/config"
	"github.com/shinelabs/shine/internal/health"
	"github.com/shinelabs/shine/internal/notify"
	"github.com/shinelabs/shine/internal/observe"
	"github.com/shinelabs/shine/internal/resilience"
	"github.com/shinelabs/shine/internal/server"
	"github.com/shinelabs/shine/internal/session"
	"github.com/shinelabs/shine/pkg/eventstore"
	"github.com/shinelabs/shine/pkg/eventstore/memstore"
	"github.com/shinelabs/shine/pkg/eventstore/postgres"
	"github.com/shinelabs/shine/pkg/provider/analyzer"
	"github.com/shinelabs/shine/pkg/provider/analyzer/anyllm"
	analyzermock "github.com/shinelabs/shine/pkg/provider/analyzer/mock"
	oaisdk "github.com/shinelabs/shine/pkg/provider/analyzer/openai"
)

const defaultListenAddr = ":8080"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "shined: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "shined: %v\n", err)
		}
		return 1
	}

	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}

	slog.Info("shine starting",
		"config", *configPath,
		"listen_addr", listenAddr,
		"store", storeName(cfg.Store.Backend),
		"analyzer", cfg.Analyzer.Name,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	provider, err := buildAnalyzer(cfg, reg)
	if err != nil {
		slog.Error("failed to create analyzer provider", "err", err)
		return 1
	}

	store, storePing, closeStore, err := buildStore(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open event store", "err", err)
		return 1
	}
	defer closeStore()

	mgr := session.NewManager(session.ManagerConfig{
		Store:     store,
		Registry:  store,
		Provider:  provider,
		Detector:  cfg.Detector,
		Analysis:  cfg.Analysis,
		ViewLimit: cfg.Store.ViewLimit,
		Logger:    logger,
	})
	defer mgr.Shutdown()

	notifier := notify.New(store, cfg.Notify.PollInterval, logger)

	h := health.New(
		health.StoreCheck(storePing),
		health.AnalyzerCheck(provider != nil),
	)

	srv := server.New(mgr, notifier, observe.DefaultMetrics(), h, logger)

	// Hot-reload log level and session tuning on config file changes.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.DetectorChanged || d.AnalysisChanged {
			mgr.ApplyConfig(new.Detector, new.Analysis)
			slog.Info("session tuning reloaded; applies to sessions started from now on")
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	httpSrv := &http.Server{
		Addr:              listenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		slog.Info("shutdown signal received, stopping…")
		return httpSrv.Shutdown(shutdownCtx)
	})

	slog.Info("server ready — press Ctrl+C to shut down", "addr", listenAddr)

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// storeBackend is what the session manager needs from a store: events plus
// the session registry. Both built-in backends provide both.
type storeBackend interface {
	eventstore.Store
	eventstore.SessionRegistry
}

// buildStore opens the configured event store backend. It returns the store,
// a connectivity probe for the readiness endpoint, and a close function.
func buildStore(ctx context.Context, cfg config.StoreConfig) (storeBackend, func(context.Context) error, func(), error) {
	switch cfg.Backend {
	case config.StorePostgres:
		st, err := postgres.Connect(ctx, cfg.PostgresDSN, slog.Default())
		if err != nil {
			return nil, nil, nil, err
		}
		return st, st.Ping, st.Close, nil
	case config.StoreMemory, "":
		st := memstore.NewStore()
		healthy := func(context.Context) error { return nil }
		return st, healthy, func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// buildAnalyzer creates the configured analyzer provider. With fallbacks
// configured, the primary is wrapped in a circuit-breaking failover group.
func buildAnalyzer(cfg *config.Config, reg *config.Registry) (analyzer.Provider, error) {
	if cfg.Analyzer.Name == "" {
		return nil, nil
	}

	primary, err := reg.Create(cfg.Analyzer)
	if err != nil {
		return nil, fmt.Errorf("analyzer %q: %w", cfg.Analyzer.Name, err)
	}
	slog.Info("analyzer provider created", "name", cfg.Analyzer.Name, "model", cfg.Analyzer.Model)
	if len(cfg.AnalyzerFallbacks) == 0 {
		return primary, nil
	}

	fb := resilience.NewAnalyzerFallback(primary, cfg.Analyzer.Name, resilience.FallbackConfig{})
	for _, entry := range cfg.AnalyzerFallbacks {
		p, err := reg.Create(entry)
		if err != nil {
			return nil, fmt.Errorf("analyzer fallback %q: %w", entry.Name, err)
		}
		fb.AddFallback(entry.Name, p)
		slog.Info("analyzer fallback registered", "name", entry.Name, "model", entry.Model)
	}
	return fb, nil
}

// registerBuiltinProviders wires the analyzer factories that ship with Shine.
func registerBuiltinProviders(reg *config.Registry) {
	// The any-llm-go backends all share the same pattern: optional APIKey
	// plus optional BaseURL. ollama is a local server and only needs the URL,
	// which the same pattern covers.
	for _, name := range []string{
		"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq",
	} {
		reg.Register(name, func(entry config.ProviderEntry) (analyzer.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// Direct OpenAI SDK backend, for features any-llm-go does not expose.
	reg.Register("openai-sdk", func(entry config.ProviderEntry) (analyzer.Provider, error) {
		var opts []oaisdk.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaisdk.WithBaseURL(entry.BaseURL))
		}
		return oaisdk.New(entry.APIKey, entry.Model, opts...)
	})

	// Canned responses for local development without API keys.
	reg.Register("mock", func(entry config.ProviderEntry) (analyzer.Provider, error) {
		return &analyzermock.Provider{}, nil
	})

	for _, name := range reg.Names() {
		slog.Debug("registered analyzer provider", "name", name)
	}
}

func storeName(b config.StoreBackend) string {
	if b == "" {
		return string(config.StoreMemory)
	}
	return string(b)
}

func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := &slog.LevelVar{}
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
