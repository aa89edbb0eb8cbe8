package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"sheetlocator/internal/config"
	_ "sheetlocator/internal/dbclient"
	"sheetlocator/internal/domain"
	"sheetlocator/internal/httpapi"
	"sheetlocator/internal/index"
	mcpserver "sheetlocator/internal/mcp"
	"sheetlocator/internal/registry"
	"sheetlocator/internal/secret"
	"sheetlocator/internal/service"
	"sheetlocator/internal/storage"
	"sheetlocator/internal/tabular"
	_ "sheetlocator/internal/tabular/codecs"
)

// App owns every long-lived component and their start/stop order.
type App struct {
	cfg config.Config

	reg     *registry.Registry
	db      *storage.DB
	crud    *service.CrudService
	reloads *service.ReloadService
}

// New wires the application from cfg. Nothing is loaded until Startup.
func New(cfg config.Config) (*App, error) {
	reg, err := registry.New(cfg.DataDir, cfg.Datasets)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	a := &App{cfg: cfg, reg: reg}

	var oplog domain.OperationLog
	if cfg.Oplog.Path != "" {
		db, err := storage.New(cfg.Oplog.Path)
		if err != nil {
			return nil, fmt.Errorf("open operation log: %w", err)
		}
		a.db = db
		oplog = storage.NewOperationStore(db)
	}

	secrets := secret.NewEnvStore()
	open := func(ctx context.Context, ds registry.Dataset) (tabular.Store, error) {
		return tabular.Open(ctx, ds, secrets)
	}

	a.crud = service.NewCrudService(reg, open, index.New(), service.LogEmitter{}, oplog, cfg.Service())
	a.reloads = service.NewReloadService(reg, a.crud, cfg.ReloadSettings())
	return a, nil
}

// Service exposes the CRUD service, mainly for tests.
func (a *App) Service() *service.CrudService { return a.crud }

// Startup loads every dataset and starts the reload watcher and schedule.
func (a *App) Startup(ctx context.Context) error {
	start := time.Now()
	a.crud.LoadAll(ctx)
	a.logDatasets(time.Since(start))

	if err := a.reloads.Start(ctx); err != nil {
		return fmt.Errorf("start reloads: %w", err)
	}
	return nil
}

func (a *App) logDatasets(took time.Duration) {
	info := a.crud.Info()
	log.Printf("[LOAD] %d of %d dataset(s) loaded in %s: %d sheet(s), %d distinct column(s)",
		info.TotalFiles, len(a.reg.All()), took.Round(time.Millisecond), info.TotalSheets, info.TotalColumns)
	for _, ds := range a.reg.All() {
		if !ds.IsFile() {
			log.Printf("[LOAD]   %s (%s)", ds.Key, ds.Format)
			continue
		}
		fi, err := os.Stat(ds.Location)
		if err != nil {
			log.Printf("[LOAD]   %s: %v", ds.Key, err)
			continue
		}
		log.Printf("[LOAD]   %s (%s, %s, modified %s)", ds.Key, ds.Format,
			humanize.Bytes(uint64(fi.Size())), humanize.Time(fi.ModTime()))
	}
}

// Shutdown stops reloads, waits for in-flight writes and releases every
// connection. It is safe to call once after a failed Startup.
func (a *App) Shutdown(ctx context.Context) error {
	a.reloads.Stop()
	a.crud.WaitIdle(ctx)

	var errs []error
	if err := a.crud.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close datasets: %w", err))
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close operation log: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ── Front ends ─────────────────────────────────────────────

// ServeHTTP runs the HTTP API until ctx is cancelled.
func (a *App) ServeHTTP(ctx context.Context) error {
	srv := httpapi.New(a.crud, httpapi.Options{
		RateLimit: a.cfg.Server.RateLimit,
		Burst:     a.cfg.Server.Burst,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(a.cfg.Server.Addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("[HTTP] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

// ServeMCP runs the MCP server on stdin/stdout. Logs stay on stderr so the
// protocol stream is not corrupted.
func (a *App) ServeMCP(ctx context.Context) error {
	srv := mcpserver.New(a.crud)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}
