// Command docforge serves editable invoice templates, deterministic HTML
// snapshots, dual-path PDF export, and the annotation overlay API.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/docforge/dbopen"
	"github.com/hazyhaar/docforge/dochost"
	"github.com/hazyhaar/docforge/exportgw"
	"github.com/hazyhaar/docforge/journal"
	"github.com/hazyhaar/docforge/localprint"
	"github.com/hazyhaar/docforge/overlay"
)

func main() {
	logLevel := env("LOG_LEVEL", "info")
	configPath := env("CONFIG", "docforge.yaml")
	mcpTransport := env("MCP_TRANSPORT", "")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Config file with env overrides.
	cfg := DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := LoadConfig(configPath)
		if err != nil {
			slog.Error("config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Listen = ":" + v
	}
	if v := os.Getenv("EXPORT_URL"); v != "" {
		cfg.ExportURL = v
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Journal DB.
	journalDB, err := dbopen.Open(cfg.JournalDB, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("journal db", "error", err)
		os.Exit(1)
	}
	defer journalDB.Close()
	jnl := journal.New(journalDB)
	if err := jnl.Init(); err != nil {
		slog.Error("journal init", "error", err)
		os.Exit(1)
	}
	defer jnl.Close()
	if err := journal.Cleanup(ctx, journalDB, cfg.RetentionDays); err != nil {
		slog.Warn("journal cleanup", "error", err)
	}

	// Annotation persistence (opt-in).
	var store *overlay.Store
	if cfg.Annotations.Persist {
		annDB, err := dbopen.Open(cfg.Annotations.DBPath, dbopen.WithMkdirAll())
		if err != nil {
			slog.Error("annotations db", "error", err)
			os.Exit(1)
		}
		defer annDB.Close()
		store, err = overlay.NewStore(annDB)
		if err != nil {
			slog.Error("annotations store", "error", err)
			os.Exit(1)
		}
	}

	// Export gateway.
	gw, err := exportgw.New(exportgw.Config{Endpoint: cfg.ExportURL, Logger: logger})
	if err != nil {
		slog.Error("export gateway", "error", err)
		os.Exit(1)
	}

	// Local print fallback.
	var printer *localprint.Printer
	if cfg.Fallback.Enabled {
		printer = localprint.New(localprint.Config{
			RemoteURL: cfg.Fallback.ChromeURL,
			Logger:    logger,
		})
		defer printer.Close()
	}

	// Document host.
	mode := dochost.ModeServed
	if cfg.Mode == "embedded" {
		mode = dochost.ModeEmbedded
	}
	host, err := dochost.New(dochost.Config{
		Mode:    mode,
		BaseURL: cfg.BaseURL,
		Gateway: gw,
		Printer: printer,
		Journal: jnl,
		Logger:  logger,
	})
	if err != nil {
		slog.Error("document host", "error", err)
		os.Exit(1)
	}

	a := newApp(cfg, host, gw, printer, jnl, store)

	// Optional MCP over stdio.
	if mcpTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "docforge",
			Version: "1.0.0",
		}, nil)
		a.registerMCP(mcpSrv)
		go func() {
			slog.Info("MCP stdio starting")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("MCP stdio", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Listen, "mode", cfg.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
