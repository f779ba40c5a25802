package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/yanqian/qa-trainer/internal/domain/training"
	"github.com/yanqian/qa-trainer/internal/infra/config"
	"github.com/yanqian/qa-trainer/internal/infra/queue"
)

// App encapsulates the HTTP server lifecycle and the training worker.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	server  *http.Server
	service *training.Service
	queue   queue.HandlerQueue
}

// NewApp is used by Wire to build the runnable app.
func NewApp(cfg *config.Config, logger *slog.Logger, server *http.Server, service *training.Service, jobs queue.HandlerQueue) *App {
	return &App{
		cfg:     cfg,
		logger:  logger.With("component", "bootstrap"),
		server:  server,
		service: service,
		queue:   jobs,
	}
}

// Service exposes the training service to the CLI.
func (a *App) Service() *training.Service { return a.service }

// Config returns the loaded service configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Run starts the job worker and the HTTP server, and blocks until ctx is
// cancelled or the server fails. Closing the queue on the way out cancels
// in-flight runs, which are then recorded as failed.
func (a *App) Run(ctx context.Context) error {
	a.queue.SetHandler(JobHandler(a.service, a.logger))
	defer func() {
		if err := a.queue.Close(); err != nil {
			a.logger.Error("queue close failed", "error", err)
		}
	}()

	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("http server starting", "address", a.cfg.HTTP.Address)
		if err := a.server.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.logger.Info("shutdown signal received")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
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

// JobHandler routes queued jobs to the training service.
func JobHandler(svc *training.Service, logger *slog.Logger) queue.Handler {
	return func(ctx context.Context, name string, payload map[string]any) error {
		if name != training.JobTrainRun {
			logger.Warn("unknown job", "name", name)
			return fmt.Errorf("unknown job %q", name)
		}
		raw, _ := payload["run_id"].(string)
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("job %s: invalid run_id %q: %w", name, raw, err)
		}
		return svc.ProcessRun(ctx, id)
	}
}
