// Package main is the entry point for the earnwatch service.
package main

import (
	"context"
	"log"
	"os"

	"earnwatch/internal/app"
)

var (
	// version can be set at build time via -ldflags
	version = "dev"
)

func main() {
	command := "watch"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "watch":
		runWatcher()
	case "version":
		log.Printf("earnwatch version %s\n", version)
		os.Exit(0)
	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)
	default:
		log.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runWatcher() {
	application, err := app.New(app.Options{Version: version})
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	if err := application.Run(context.Background()); err != nil {
		log.Fatalf("Service failed: %v", err)
	}
}

func printUsage() {
	log.Println("earnwatch - Superteam Earn listings watcher")
	log.Println()
	log.Println("Usage:")
	log.Println("  earnwatch [command]")
	log.Println()
	log.Println("Commands:")
	log.Println("  watch      Start the watcher, command bot and status API (default)")
	log.Println("  version    Print version information")
	log.Println("  help       Show this help message")
	log.Println()
	log.Println("Environment Variables:")
	log.Println("  Required:")
	log.Println("    DATABASE_URL            - PostgreSQL connection string")
	log.Println("    TELEGRAM_BOT_TOKEN      - Bot API token")
	log.Println("    TELEGRAM_CHAT_ID        - Chat that receives notifications")
	log.Println()
	log.Println("  Optional:")
	log.Println("    POLL_INTERVAL_SECONDS   - Cycle interval (default: 600)")
	log.Println("    MAX_NOTIFS_PER_RUN      - Per-cycle notification cap (default: 10)")
	log.Println("    FORCE_COOLDOWN_SECONDS  - Minimum gap between /force runs (default: 60)")
	log.Println("    EARN_API_URL            - Listings API base URL")
	log.Println("    REDIS_ADDR              - Redis for cycle counters (empty: disabled)")
	log.Println("    SERVER_ADDR             - Status API listen address (default: :8080)")
	log.Println("    APP_DEBUG               - Verbose logging (default: false)")
}
