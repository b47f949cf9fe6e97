package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vincentruan/telegram-spring-bot/internal/api"
	"github.com/vincentruan/telegram-spring-bot/internal/botapi"
	"github.com/vincentruan/telegram-spring-bot/internal/command"
	"github.com/vincentruan/telegram-spring-bot/internal/config"
	"github.com/vincentruan/telegram-spring-bot/internal/lock"
	"github.com/vincentruan/telegram-spring-bot/internal/log"
	"github.com/vincentruan/telegram-spring-bot/internal/sender"
	"github.com/vincentruan/telegram-spring-bot/internal/storage"
)

const version = "0.1.0"

// pruneInterval is how often the journal drops expired entries.
const pruneInterval = time.Hour

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "start":
		os.Exit(runStart(args))
	case "send":
		os.Exit(runSend(args))
	case "config":
		os.Exit(runConfigNoun(args))
	case "monitor":
		os.Exit(runMonitor(args))
	case "version":
		fmt.Printf("tgsender version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`tgsender - asynchronous Telegram Bot API command sender

Usage:
  tgsender <command> [flags]

Commands:
  start                 Run the sender and ops API in the foreground
  send <method>         Send one Bot API call through the sender and print the result
  config check          Validate configuration and print its digest
  config show           Print the effective configuration (secrets redacted)
  config get <path>     Print one value, e.g. sender.executor.core_size
  monitor               Live dashboard of a running sender's ops API
  version               Show version information
  help                  Show this help message

Configuration is read from --config, $TGSENDER_CONFIG, ~/.config/tgsender,
/etc/tgsender or ./config.{yaml,yml,toml}. Any key can be overridden with a
TGSENDER_ environment variable, e.g. TGSENDER_BOTAPI_TOKEN.
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

// loadConfig loads from path or the discovered location.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			return nil, err
		}
		path = discovered
	}
	return config.Load(path)
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Configure(log.Options{Level: cfg.Service.LogLevel, Format: cfg.Service.LogFormat})
	logger := log.WithComponent("main")
	logger.Info("tgsender starting", "version", version, "config", cfg.Path, "config_digest", cfg.Digest)

	// flock is advisory only on network mounts.
	if err := storage.CheckLocal(cfg.Service.LockPath, "service.lock_path"); err != nil {
		logger.Error("refusing lock path", "error", err)
		return 1
	}
	pidLock, err := lock.Acquire(cfg.Service.LockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock", "path", cfg.Service.LockPath, "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return 1
	}
	defer a.Close()

	if err := a.sender.Start(); err != nil {
		logger.Error("failed to start sender", "error", err)
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.journal != nil && cfg.Journal.Retention > 0 {
		g.Go(func() error {
			a.journal.RunPruner(gctx, pruneInterval, cfg.Journal.Retention, log.WithComponent("journal"))
			return nil
		})
	}

	if cfg.API.Enabled {
		var reader api.JournalReader
		if a.journal != nil {
			reader = a.journal
		}
		server := api.New(apiConfig(cfg), a.sender, reader, a.events, log.WithComponent("api"))
		g.Go(func() error {
			if err := server.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("api: %w", err)
			}
			return nil
		})
	}

	logger.Info("tgsender running (press Ctrl+C to stop)")
	<-gctx.Done()
	logger.Info("shutting down")

	code := 0
	if err := a.sender.Stop(); err != nil {
		logger.Error("sender did not stop cleanly", "error", err)
		code = 1
	}
	if err := g.Wait(); err != nil {
		logger.Error("component failed", "error", err)
		code = 1
	}
	logger.Info("tgsender stopped")
	return code
}

func apiConfig(cfg *config.Config) api.Config {
	return api.Config{
		Listen:  cfg.API.Listen,
		APIKey:  cfg.API.APIKey,
		MaxWait: cfg.API.MaxWait,
	}
}

func runSend(args []string) int {
	var method string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		method, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	paramsJSON := fs.String("params", "", "Method parameters as a JSON object")
	wait := fs.Duration("wait", 30*time.Second, "How long to wait for the result")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if method == "" {
		method = fs.Arg(0)
	}
	if method == "" || isHelpToken(method) {
		fmt.Fprintln(os.Stderr, "Usage: tgsender send <method> [--params '{...}'] [--wait 30s] [--config path]")
		return 1
	}

	var params any
	if *paramsJSON != "" {
		raw := json.RawMessage(*paramsJSON)
		if !json.Valid(raw) || !strings.HasPrefix(strings.TrimSpace(*paramsJSON), "{") {
			fmt.Fprintln(os.Stderr, "--params must be a JSON object")
			return 1
		}
		params = raw
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.Configure(log.Options{Level: cfg.Service.LogLevel, Format: "text", Writer: os.Stderr})

	client, err := botapi.New(cfg.BotAPI)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Bot API client: %v\n", err)
		return 1
	}

	snd := sender.New(client, cfg.Sender)
	if err := snd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start sender: %v\n", err)
		return 1
	}
	defer func() { _ = snd.Stop() }()

	results := make(chan command.Result, 1)
	cmd := command.NewCall(method, params, func(res command.Result) { results <- res })
	if err := snd.Offer(context.Background(), cmd); err != nil {
		fmt.Fprintf(os.Stderr, "Command dropped: %v\n", err)
		return 1
	}
	log.WithCommand(cmd.ID()).Debug("command offered", "method", method)

	select {
	case res := <-results:
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "%s failed: %v\n", method, res.Err)
			return 1
		}
		out, err := json.MarshalIndent(res.Value, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to format result: %v\n", err)
			return 1
		}
		fmt.Println(string(out))
		return 0
	case <-time.After(*wait):
		fmt.Fprintf(os.Stderr, "No result for %s within %s (command %s)\n", method, *wait, cmd.ID())
		return 1
	}
}
