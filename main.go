package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sheetlocator/internal/app"
	"sheetlocator/internal/config"
)

const version = "1.0.0"

func main() {
	// ── Flags ─────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "Path to YAML config file (default $"+config.EnvPath+")")
	addr := flag.String("addr", "", "Listen address, overrides server.addr")
	mcpMode := flag.Bool("mcp", false, "Serve MCP on stdin/stdout instead of HTTP")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `sheetlocator: CRUD over spreadsheets by column name

Usage:
  sheetlocator                         serve HTTP on :8000 with the stock workbooks in ./data
  sheetlocator --config sheets.yaml    serve the datasets listed in sheets.yaml
  sheetlocator --mcp                   serve MCP tools on stdin/stdout

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Environment:
  %s          Config file used when --config is not given
  SHEETLOC_SECRET_<KEY>    Password substituted for ${password} in a dataset DSN
`, config.EnvPath)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("sheetlocator %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(config.ResolvePath(*configPath))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// ── Run ───────────────────────────────────────────────────────────────
	if err := a.Startup(ctx); err != nil {
		shutdown(a)
		log.Fatalf("Failed to start: %v", err)
	}

	if *mcpMode {
		err = a.ServeMCP(ctx)
	} else {
		err = a.ServeHTTP(ctx)
	}
	shutdown(a)
	if err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func shutdown(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
