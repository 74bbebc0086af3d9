// Команда sidecar-api — HTTP API сайдкаров.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/x-research-team/dtx-sync/internal/config"
	"github.com/x-research-team/dtx-sync/internal/telemetry"
	"github.com/x-research-team/dtx-sync/sidecar/api"
	"github.com/x-research-team/dtx-sync/sidecar/storage"
	"github.com/x-research-team/dtx-sync/sidecar/storage/postgres"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		config.Exitf("%v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.Level(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		stop()
		config.Exitf("%v", err)
	}
}

func run(ctx context.Context, cfg config.Server, logger *slog.Logger) error {
	tp, shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, "sidecar-api")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("не удалось завершить экспорт трассировок", slog.Any("error", err))
		}
	}()

	st, closeStorage, err := openStorage(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer closeStorage()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServer(st, api.WithLogger(logger), api.WithTracerProvider(tp)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API сайдкаров запущен", slog.String("addr", cfg.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("остановка API сайдкаров")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStorage выбирает PostgreSQL, если задан адрес базы, иначе хранилище в
// памяти.
func openStorage(ctx context.Context, databaseURL string, logger *slog.Logger) (storage.Storage, func(), error) {
	if databaseURL == "" {
		logger.Warn("SIDECAR_DATABASE_URL не задан, данные хранятся в памяти")
		return storage.NewMemoryStorage(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	st, err := postgres.NewPostgresStorage(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return st, pool.Close, nil
}
