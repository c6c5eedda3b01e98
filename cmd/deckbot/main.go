// ABOUTME: Entry point for the deckbot presentation generator
// ABOUTME: Dispatches serve, init, health, status, token and sweep subcommands

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/deckbot/internal/auth"
	"github.com/2389/deckbot/internal/config"
	"github.com/2389/deckbot/internal/conversation"
	"github.com/2389/deckbot/internal/gateway"
	"github.com/2389/deckbot/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _           _    _           _
  __| | ___  ___| | _| |__   ___ | |_
 / _' |/ _ \/ __| |/ / '_ \ / _ \| __|
| (_| |  __/ (__|   <| |_) | (_) | |_
 \__,_|\___|\___|_|\_\_.__/ \___/ \__|
`

const defaultTokenTTL = 30 * 24 * time.Hour

// getConfigPath returns the path to the config file.
// Priority: DECKBOT_CONFIG env var > XDG_CONFIG_HOME/deckbot/config.yaml > ~/.config/deckbot/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("DECKBOT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "deckbot", "config.yaml")
}

// getDataPath returns the deckbot data directory.
// Priority: XDG_DATA_HOME/deckbot > ~/.local/share/deckbot
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "deckbot")
}

// getTokenPath is where `deckbot token` saves the status API token.
func getTokenPath() string {
	return filepath.Join(filepath.Dir(getConfigPath()), "token")
}

// getToken returns the status API token from DECKBOT_TOKEN or the token file.
func getToken() string {
	if token := os.Getenv("DECKBOT_TOKEN"); token != "" {
		return token
	}
	data, err := os.ReadFile(getTokenPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func printUsage() {
	fmt.Println("Usage: deckbot <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                              Start the bot server")
	fmt.Println("  init                               Create a new config file interactively")
	fmt.Println("  health                             Check server health")
	fmt.Println("  status <request-id>                Show a generation request")
	fmt.Println("  token --subject NAME [--ttl 720h]  Issue a status API token")
	fmt.Println("  sweep                              Delete expired conversations")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "status":
		err = runStatus(ctx, os.Args[2:])
	case "token":
		err = runToken(os.Args[2:])
	case "sweep":
		err = runSweep(ctx)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, configPath, fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Output:    %s\n", cfg.Output.Dir)
	green.Print("    ▶ ")
	fmt.Printf("Content:   %s\n", cfg.Content.Provider)
	green.Print("    ▶ ")
	fmt.Printf("Images:    %s\n", cfg.Images.Provider)

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}

	var frontends []string
	if cfg.Frontends.Telegram.Enabled {
		frontends = append(frontends, "telegram")
	}
	if cfg.Frontends.Matrix.Enabled {
		frontends = append(frontends, "matrix")
	}
	green.Print("    ▶ ")
	if len(frontends) == 0 {
		yellow.Println("Frontends: none")
	} else {
		fmt.Printf("Frontends: %s\n", strings.Join(frontends, ", "))
	}

	fmt.Println()

	logger.Info("starting deckbot",
		"version", version,
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runStatus(ctx context.Context, args []string) error {
	if len(args) != 1 || strings.HasPrefix(args[0], "-") {
		return errors.New("usage: deckbot status <request-id>")
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	token := getToken()
	if token == "" {
		return fmt.Errorf("no token: set DECKBOT_TOKEN or run `deckbot token --subject NAME`")
	}

	url := fmt.Sprintf("http://%s/api/requests/%s", cfg.Server.HTTPAddr, args[0])
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Error)
	}

	var r gateway.RequestResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	printRequest(r)
	return nil
}

func printRequest(r gateway.RequestResponse) {
	cyan := color.New(color.FgCyan)
	statusColor := color.New(color.FgYellow)
	switch store.RequestStatus(r.Status) {
	case store.RequestCompleted:
		statusColor = color.New(color.FgGreen)
	case store.RequestFailed:
		statusColor = color.New(color.FgRed)
	}

	cyan.Printf("  Request %s\n", r.ID)
	fmt.Printf("  Status:     ")
	statusColor.Println(r.Status)
	fmt.Printf("  User:       %s\n", r.UserID)
	fmt.Printf("  Topic:      %s\n", r.Topic)
	fmt.Printf("  Pages:      %d\n", r.PagesCount)
	fmt.Printf("  Format:     %s\n", r.Format)
	fmt.Printf("  University: %s / %s / %s\n", r.University, r.Direction, r.GroupName)
	fmt.Printf("  Created:    %s\n", r.CreatedAt.Local().Format(time.DateTime))
	if r.CompletedAt != nil {
		fmt.Printf("  Completed:  %s\n", r.CompletedAt.Local().Format(time.DateTime))
	}
	if r.FileName != "" {
		fmt.Printf("  File:       %s (%d bytes)\n", r.FileName, r.FileSize)
	}
	if r.ErrorMessage != "" {
		fmt.Printf("  Error:      %s\n", r.ErrorMessage)
	}
}

// tokenArgs holds the parsed flags of `deckbot token`.
type tokenArgs struct {
	subject string
	ttl     time.Duration
}

// parseTokenArgs accepts "--subject value", "--subject=value" and the same for --ttl.
func parseTokenArgs(args []string) (tokenArgs, error) {
	parsed := tokenArgs{ttl: defaultTokenTTL}
	var ttlRaw string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--subject" || arg == "-s":
			if i+1 >= len(args) {
				return parsed, fmt.Errorf("--subject requires a value")
			}
			parsed.subject = args[i+1]
			i++
		case strings.HasPrefix(arg, "--subject="):
			parsed.subject = strings.TrimPrefix(arg, "--subject=")
		case arg == "--ttl":
			if i+1 >= len(args) {
				return parsed, fmt.Errorf("--ttl requires a value")
			}
			ttlRaw = args[i+1]
			i++
		case strings.HasPrefix(arg, "--ttl="):
			ttlRaw = strings.TrimPrefix(arg, "--ttl=")
		case strings.HasPrefix(arg, "-"):
			return parsed, fmt.Errorf("unknown flag: %s", arg)
		default:
			return parsed, fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	parsed.subject = strings.TrimSpace(parsed.subject)
	if parsed.subject == "" {
		return parsed, fmt.Errorf("--subject flag is required")
	}
	if len(parsed.subject) > 100 {
		return parsed, fmt.Errorf("subject exceeds maximum length of 100 characters")
	}
	if ttlRaw != "" {
		ttl, err := time.ParseDuration(ttlRaw)
		if err != nil {
			return parsed, fmt.Errorf("parsing --ttl %q: %w", ttlRaw, err)
		}
		if ttl <= 0 {
			return parsed, fmt.Errorf("--ttl must be positive")
		}
		parsed.ttl = ttl
	}
	return parsed, nil
}

// runToken issues a status API token signed with auth.jwt_secret and saves it next to the config.
func runToken(args []string) error {
	parsed, err := parseTokenArgs(args)
	if err != nil {
		return err
	}

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt_secret not configured in %s (required for tokens)", configPath)
	}

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	token, err := verifier.Generate(parsed.subject, parsed.ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	tokenPath := getTokenPath()
	if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Saved token: %s\n", tokenPath)
	fmt.Printf("  Subject:  %s\n", parsed.subject)
	fmt.Printf("  Expires:  %s\n", time.Now().Add(parsed.ttl).UTC().Format("Jan 02, 2006 15:04 MST"))
	fmt.Println()
	fmt.Println(token)
	return nil
}

// runSweep deletes expired conversations once, for setups that leave dialogue.sweep_interval unset.
func runSweep(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	n, err := conversation.New(s, cfg.Dialogue.Timeout, logger).Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweeping conversations: %w", err)
	}

	color.New(color.FgGreen).Printf("  ✓ Removed %d expired conversation(s)\n", n)
	return nil
}
