package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vincentruan/telegram-spring-bot/internal/tui"
)

func runMonitor(args []string) int {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	apiURL := fs.String("api-url", "", "Ops API URL (default: http://<api.listen> from config)")
	apiKey := fs.String("api-key", os.Getenv("TGSENDER_API_KEY"), "Ops API bearer key")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *apiURL == "" || *apiKey == "" {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			fmt.Fprintln(os.Stderr, "Pass --api-url and --api-key to monitor without a config file.")
			return 1
		}
		if *apiURL == "" {
			*apiURL = "http://" + cfg.API.Listen
		}
		if *apiKey == "" {
			*apiKey = cfg.API.APIKey
		}
	}
	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key required. Use --api-key, TGSENDER_API_KEY or api.api_key.")
		return 1
	}

	if err := tui.Run(*apiURL, *apiKey); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
