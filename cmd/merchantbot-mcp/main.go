package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/merchantbot/merchantbot/internal/biz"
	"github.com/merchantbot/merchantbot/internal/conf"
	"github.com/merchantbot/merchantbot/internal/data"
	"github.com/merchantbot/merchantbot/internal/infra/mercari"
	"github.com/merchantbot/merchantbot/internal/mcp"
)

func main() {
	// stdout carries the protocol
	log.SetOutput(os.Stderr)

	if err := godotenv.Load(); err != nil {
		log.Println("[MCP] No .env file found, using environment variables")
	}

	cfg := conf.LoadFromEnv()
	if err := cfg.ValidateCore(); err != nil {
		log.Fatalf("[MCP] Invalid config: %v", err)
	}

	// Queries created here belong to this Discord user
	userID := os.Getenv("MCP_USER_ID")
	if userID == "" {
		log.Fatal("[MCP] MCP_USER_ID is required")
	}

	mercariClient, err := mercari.NewClient(cfg.ToMercariConfig())
	if err != nil {
		log.Fatalf("[MCP] Failed to create Mercari client: %v", err)
	}

	repos, err := data.NewRepositories(mercariClient, nil, cfg.Store.DBPath)
	if err != nil {
		log.Fatalf("[MCP] Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ucs := biz.NewUsecases(repos.Query, repos.Marketplace, nil, cfg.ToQueryConfig(), cfg.Messages.ToNotifyTemplates())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("[MCP] Serving tools for user %s", userID)
	if err := mcp.NewServer(ucs.Query, ucs.Search, userID).Run(ctx); err != nil {
		log.Printf("[MCP] Server stopped: %v", err)
	}
}
