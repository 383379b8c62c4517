package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quizhub/quizhub/internal/api"
	"github.com/quizhub/quizhub/internal/app/progression"
	"github.com/quizhub/quizhub/internal/health"
	"github.com/quizhub/quizhub/internal/infra/sqlite"
)

// Daemon is the core QuizHub runtime. It wires together all services.
type Daemon struct {
	Config   Config
	DB       *sqlite.DB
	Service  *progression.Service
	Server   *api.Server
	Health   *health.Checker
	Location *time.Location
	Logger   *zap.Logger
	cancel   context.CancelFunc
}

// New creates and initializes a Daemon from the on-disk config.
func New(logger *zap.Logger) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg, logger)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config, logger *zap.Logger) (*Daemon, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	ladder, err := cfg.Ladder()
	if err != nil {
		return nil, err
	}

	dir := cfg.Storage.Dir
	if dir == "" {
		dir = quizhubHome()
	}
	db, err := sqlite.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	tracker := progression.NewTracker(cfg.Policy(), logger.Named("streak"))
	svc := progression.NewService(db, tracker, ladder, logger.Named("progression"), cfg.Progression.MaxRetries)

	checker := health.NewChecker(logger.Named("health"), health.StorageChecks(db, dir)...)

	srv := api.NewServer(svc, loc, logger.Named("http"))
	srv.SetHealth(checker)
	if len(cfg.API.CORSOrigins) > 0 {
		srv.SetCORSOrigins(cfg.API.CORSOrigins)
	}

	// Enable Prometheus /metrics if configured
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	return &Daemon{
		Config:   cfg,
		DB:       db,
		Service:  svc,
		Server:   srv,
		Health:   checker,
		Location: loc,
		Logger:   logger,
	}, nil
}

// Serve starts the HTTP server and the health loop, and blocks until ctx is
// cancelled, SIGINT/SIGTERM arrives or the listener fails.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	// Graceful shutdown on signal
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d.Health.Run(gctx)
		return nil
	})

	g.Go(func() error {
		d.Logger.Info("quizhub serving",
			zap.String("addr", "http://"+addr),
			zap.String("timezone", d.Location.String()),
			zap.Bool("metrics", d.Config.Telemetry.Prometheus))

		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		d.Logger.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
	_ = d.Logger.Sync()
}
