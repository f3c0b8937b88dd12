package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/familiaschurch/receipt-validator/internal/api"
	"github.com/familiaschurch/receipt-validator/internal/api/handlers"
	"github.com/familiaschurch/receipt-validator/internal/jobs"
	"github.com/familiaschurch/receipt-validator/internal/jobs/inmemory"
	"github.com/familiaschurch/receipt-validator/internal/logger"
)

const shutdownTimeout = 30 * time.Second

// Handler builds the HTTP handler and the async validation queue. The caller
// starts the queue with jobs.ValidationHandler and stops it on shutdown.
func (a *App) Handler() (http.Handler, *inmemory.Queue) {
	jobStore := inmemory.NewStore()
	queue := inmemory.NewQueue(a.Config.JobBuffer, a.Config.JobWorkers, jobStore, a.Log)

	handler := api.NewRouter(api.RouterConfig{
		Validation:     handlers.NewValidationHandler(a.Orchestrator, queue),
		Jobs:           handlers.NewJobsHandler(jobStore),
		AllowedOrigins: a.Config.AllowedOrigins,
		Gatherer:       a.Registry,
		Log:            a.Log,
	})
	return handler, queue
}

// Serve runs the API until ctx is cancelled, then drains the server and the
// job queue.
func (a *App) Serve(ctx context.Context) error {
	handler, queue := a.Handler()

	workerCtx, cancelWorkers := context.WithCancel(logger.WithContext(context.Background(), a.Log))
	defer cancelWorkers()

	if err := queue.Start(workerCtx, jobs.ValidationHandler(a.Orchestrator)); err != nil {
		return fmt.Errorf("Serve: starting job queue: %w", err)
	}

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(a.Config.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: a.Config.WriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.Log.Info().Int("port", a.Config.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("Serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.Log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.Log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := queue.Stop(shutdownCtx); err != nil {
		a.Log.Error().Err(err).Msg("Error stopping job queue")
	}

	a.Log.Info().Msg("Server exited")
	return nil
}
