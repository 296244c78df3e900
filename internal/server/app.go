// Package server composes the sync server: configuration, database,
// migrations, optional object storage, services, and the HTTP API, with
// graceful shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/passkeyvault/internal/logging"
	"github.com/dmitrijs2005/passkeyvault/internal/server/config"
	"github.com/dmitrijs2005/passkeyvault/internal/server/httpapi"
	"github.com/dmitrijs2005/passkeyvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/passkeyvault/internal/server/services"
	"github.com/dmitrijs2005/passkeyvault/internal/server/storage"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config *config.Config
	log    logging.Logger
	db     *sql.DB
	server *http.Server
}

// NewApp opens the database, runs migrations, and wires the services into an
// HTTP server. The returned App owns the database handle.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.NewJSON(os.Stdout).With("component", "server")

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	manager := repomanager.NewPostgresRepositoryManager()
	if err := manager.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	var blobs storage.BlobStore
	if cfg.S3BaseEndpoint != "" {
		s3store, err := storage.NewS3Store(ctx, storage.S3Options{
			RootUser:     cfg.S3RootUser,
			RootPassword: cfg.S3RootPassword,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("s3 init error: %w", err)
		}
		blobs = s3store
	}

	userService := services.NewUserService(db, manager, cfg)
	vaultService := services.NewVaultService(db, manager, blobs)
	api := httpapi.New(userService, vaultService, log)

	return &App{
		config: cfg,
		log:    log,
		db:     db,
		server: &http.Server{
			Addr:    cfg.EndpointAddr,
			Handler: api.Routes(),
		},
	}, nil
}

// Run serves the API until ctx is cancelled or a termination signal arrives,
// then shuts down gracefully.
func (app *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigs)

	go func() {
		select {
		case <-sigs:
			cancel()
		case <-ctx.Done():
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		app.log.Info(ctx, "listening", "addr", app.config.EndpointAddr)
		errCh <- app.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		app.db.Close()
		return err
	case <-ctx.Done():
	}

	app.log.Info(context.Background(), "shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	err := app.server.Shutdown(shutdownCtx)
	if dbErr := app.db.Close(); err == nil {
		err = dbErr
	}
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return err
}
