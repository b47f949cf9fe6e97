package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vincentruan/telegram-spring-bot/internal/config"
)

const redacted = "********"

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "check":
		return runConfigCheck(args[1:])
	case "show":
		return runConfigShow(args[1:])
	case "get":
		return runConfigGet(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

func printConfigNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: tgsender config <action> [--config path]")
	fmt.Fprintln(w, "Actions: check, show, get <path>")
}

// configCheckResult is the --json output of config check.
type configCheckResult struct {
	Valid  bool   `json:"valid"`
	Path   string `json:"path,omitempty"`
	Digest string `json:"digest,omitempty"`
	Error  string `json:"error,omitempty"`
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	expect := fs.String("expect-digest", "", "Fail unless the file's BLAKE3 digest matches")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	result := configCheckResult{Valid: true}
	cfg, err := loadConfig(*configPath)
	if err == nil {
		result.Path, result.Digest = cfg.Path, cfg.Digest
		if *expect != "" {
			err = config.CheckDigest(cfg.Path, *expect)
		}
	}
	if err != nil {
		result.Valid = false
		result.Error = err.Error()
	}

	if *jsonOut {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
	} else if result.Valid {
		fmt.Printf("Config OK: %s\nDigest: %s\n", result.Path, result.Digest)
	} else {
		fmt.Fprintf(os.Stderr, "Config invalid: %s\n", result.Error)
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	out, err := yaml.Marshal(redact(*cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	fmt.Printf("# %s (blake3 %s)\n%s", cfg.Path, cfg.Digest, out)
	return 0
}

func redact(cfg config.Config) config.Config {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&cfg.BotAPI.Token)
	mask(&cfg.BotAPI.Proxy.Password)
	mask(&cfg.API.APIKey)
	return cfg
}

func runConfigGet(args []string) int {
	var path string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		path, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if path == "" {
		path = fs.Arg(0)
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "Usage: tgsender config get <path> [--config path]")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	masked := redact(*cfg)
	val, err := masked.GetPath(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	switch v := val.(type) {
	case map[string]any, []any:
		out, err := yaml.Marshal(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render value: %v\n", err)
			return 1
		}
		fmt.Print(string(out))
	default:
		fmt.Println(v)
	}
	return 0
}
