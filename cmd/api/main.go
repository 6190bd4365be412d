package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quietriver/reframe/backend/internal/analysis/crisis"
	"github.com/quietriver/reframe/backend/internal/analysis/memory"
	"github.com/quietriver/reframe/backend/internal/config"
	"github.com/quietriver/reframe/backend/internal/handler"
	"github.com/quietriver/reframe/backend/internal/service/provider"
	reflectionService "github.com/quietriver/reframe/backend/internal/service/reflection"
	"github.com/quietriver/reframe/backend/internal/service/session"
	"github.com/quietriver/reframe/backend/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	store, err := newStore(cfg.Store)
	if err != nil {
		zlog.Fatal("failed to initialize session store", "error", err)
	}
	defer store.Close()

	providers := buildProviders(ctx, cfg.Providers, zlog)
	if len(providers) == 0 {
		zlog.Warn("no generation providers configured, reflect turns will fail until credentials are set")
	}
	chain := provider.NewChain(providers, cfg.Providers.AttemptTimeout, zlog)

	engine := reflectionService.NewEngine(chain, reflectionService.Options{
		GroundingExitAfter: cfg.Engine.GroundingExitTurns,
		Detector:           crisis.NewDetector(cfg.Engine.AcuteIndicators, cfg.Engine.ElevatedIndicators),
		Caps: memory.Caps{
			AssistantScan: cfg.Engine.AssistantScan,
			Window:        cfg.Engine.ContextWindow,
			History:       cfg.Engine.HistoryCap,
			Distortions:   cfg.Engine.DistortionCap,
		},
	}, zlog)
	runner := reflectionService.NewRunner(store, engine, zlog)

	router := handler.NewRouter(store, runner, cfg.Auth.JWTSecret, zlog)

	startServer(ctx, cfg.Server, router, zlog)
}

// newStore selects SQLite or in-memory persistence.
func newStore(cfg config.StoreConfig) (session.Store, error) {
	if cfg.SQLitePath == "" {
		return session.NewMemoryStore(), nil
	}
	return session.NewSQLite(cfg.SQLitePath)
}

// buildProviders assembles the failover chain in configured priority order,
// skipping providers without credentials.
func buildProviders(ctx context.Context, cfg config.ProvidersConfig, zlog *logger.Logger) []provider.Provider {
	providers := make([]provider.Provider, 0, len(cfg.Order))
	for _, name := range cfg.Order {
		switch name {
		case "ark":
			if !cfg.Ark.Enabled() {
				zlog.Info("ark credentials not configured, skipping provider")
				continue
			}
			chatModel, err := cfg.Ark.NewChatModel(ctx)
			if err != nil {
				zlog.Warn("failed to initialize ark chat model", "error", err)
				continue
			}
			p, err := provider.NewArk(ctx, chatModel, cfg.Ark.Model)
			if err != nil {
				zlog.Warn("failed to initialize ark provider", "error", err)
				continue
			}
			providers = append(providers, p)
			zlog.Info("provider registered", "provider", "ark", "model", cfg.Ark.Model)
		case "gemini":
			if !cfg.Gemini.Enabled() {
				zlog.Info("gemini credentials not configured, skipping provider")
				continue
			}
			p, err := provider.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
			if err != nil {
				zlog.Warn("failed to initialize gemini provider", "error", err)
				continue
			}
			providers = append(providers, p)
			zlog.Info("provider registered", "provider", "gemini", "model", cfg.Gemini.Model)
		default:
			zlog.Warn("unknown provider in PROVIDER_CHAIN", "provider", name)
		}
	}
	return providers
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, zlog *logger.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	zlog.Info("reframe backend listening", "addr", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		zlog.Fatal("server error", "error", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
