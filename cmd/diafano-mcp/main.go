// diafano-mcp is a standalone MCP server over the El Diáfano story
// database, serving ranking, search and coverage tools over stdio.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	diafano "github.com/eldiafano/diafano"
	"github.com/eldiafano/diafano/internal/config"
)

func main() {
	configPath := flag.String("config", "", "config file path (default: "+config.DefaultPath+")")
	allowFetch := flag.Bool("allow-fetch", false, "expose the feeds_fetch tool")
	flag.Parse()

	if err := run(*configPath, *allowFetch); err != nil {
		fmt.Fprintf(os.Stderr, "diafano-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, allowFetch bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// stdout carries the protocol; logs go to stderr.
	log := cfg.NewLogger()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := diafano.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer engine.Close()

	srv := newServer(engine, log, allowFetch)
	log.Info("diafano-mcp starting", "driver", cfg.Database.Driver, "allow_fetch", allowFetch)
	return srv.mcp.Run(ctx, &mcp.StdioTransport{})
}
