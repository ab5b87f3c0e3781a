package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/lectern/internal/config"
	"github.com/felixgeelhaar/lectern/internal/content"
	mcpserver "github.com/felixgeelhaar/lectern/internal/mcp"
	"github.com/felixgeelhaar/lectern/internal/progress"
	"github.com/felixgeelhaar/lectern/internal/registration"
	"github.com/felixgeelhaar/lectern/internal/storage/sqlite"
)

// cmdMCP starts the MCP server for agent integration. It runs against the
// same on-disk state as the daemon, so tools see whatever 'lectern' set up.
func cmdMCP() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lecternDir, err := config.LecternDir()
	if err != nil {
		return fmt.Errorf("get lectern dir: %w", err)
	}

	// Package registry. Nothing installed yet is fine; the tools report an
	// empty catalog.
	packages := content.NewRegistry(content.NewLoader(cfg.ContentPath(lecternDir)))
	if err := packages.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load package catalog: %w", err)
	}

	// Same backend selection as the daemon.
	dataPath := cfg.StoragePath(lecternDir)

	var regStore registration.RegistrationStore
	var reportStore progress.ReportStore
	switch cfg.Storage.Backend {
	case "sqlite":
		db, err := sqlite.Open(dataPath)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrate sqlite store: %w", err)
		}
		regStore = sqlite.NewRegistrationStore(db)
		reportStore = sqlite.NewReportStore(db)
	default:
		store, err := registration.NewStore(dataPath)
		if err != nil {
			return fmt.Errorf("create registration store: %w", err)
		}
		regStore = store

		reports, err := progress.NewStore(dataPath)
		if err != nil {
			return fmt.Errorf("create report store: %w", err)
		}
		reportStore = reports
	}

	mcpSrv := mcpserver.NewServer(mcpserver.Config{
		Registrations: registration.NewService(regStore, packages),
		Packages:      packages,
		Progress:      progress.NewService(reportStore),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// Serve on stdio
	return mcpSrv.ServeStdio(ctx)
}
