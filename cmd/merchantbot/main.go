package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/merchantbot/merchantbot/internal/api"
	"github.com/merchantbot/merchantbot/internal/biz"
	"github.com/merchantbot/merchantbot/internal/conf"
	"github.com/merchantbot/merchantbot/internal/data"
	"github.com/merchantbot/merchantbot/internal/infra/discord"
	"github.com/merchantbot/merchantbot/internal/infra/mercari"
	"github.com/merchantbot/merchantbot/internal/server"
	"github.com/merchantbot/merchantbot/internal/service"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := conf.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Mirror logs to LOG_FILE when set
	logOut, closeLog, err := cfg.LogWriter(os.Stderr)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closeLog()
	log.SetOutput(logOut)

	// Initialize clients
	mercariClient, err := mercari.NewClient(cfg.ToMercariConfig())
	if err != nil {
		log.Fatalf("Failed to create Mercari client: %v", err)
	}
	discordClient, err := discord.NewClient(cfg.Discord.Token)
	if err != nil {
		log.Fatalf("Failed to create Discord client: %v", err)
	}

	// Initialize repository layer
	repos, err := data.NewRepositories(mercariClient, discordClient, cfg.Store.DBPath)
	if err != nil {
		log.Fatalf("Failed to create repositories: %v", err)
	}
	log.Printf("[Bot] Query DB: %s", cfg.Store.DBPath)

	// Initialize usecase layer
	ucs := biz.NewUsecases(repos.Query, repos.Marketplace, repos.Messenger, cfg.ToQueryConfig(), cfg.Messages.ToNotifyTemplates())

	// Initialize service layer
	tracker := service.NewTrackerService(repos.Query, repos.Marketplace, repos.Messenger, ucs.Notify, cfg.ToTrackerConfig())
	commands := service.NewCommandService(ucs.Query, ucs.Search, tracker, cfg.ToCommandConfig())

	// Initialize server
	srv := server.NewDiscordServer(discordClient, commands, tracker, cfg.Discord.AppID, cfg.Discord.GuildID)

	log.Println("Starting merchantbot...")
	if err := srv.Start(); err != nil {
		repos.Close()
		log.Fatalf("Server error: %v", err)
	}
	log.Printf("[Bot] Tracking every %s", cfg.Tracker.Interval())

	// Initialize local admin API
	var apiServer *api.Server
	if cfg.API.Port > 0 {
		apiServer = api.NewServer(tracker, cfg.API.Port)
		go func() {
			if err := apiServer.Start(); err != nil {
				log.Printf("[Bot] API server error: %v", err)
			}
		}()
	}

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	if apiServer != nil {
		apiServer.Stop()
	}
	srv.Stop()
	if err := repos.Close(); err != nil {
		log.Printf("[Bot] Failed to close query DB: %v", err)
	}
}
