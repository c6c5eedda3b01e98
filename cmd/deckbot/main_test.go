// ABOUTME: Tests for the deckbot CLI helpers
// ABOUTME: Covers path resolution, token flags and issuing, generated configs and the color log handler

package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/deckbot/internal/auth"
	"github.com/2389/deckbot/internal/config"
)

func TestGetConfigPath(t *testing.T) {
	t.Run("env var wins", func(t *testing.T) {
		t.Setenv("DECKBOT_CONFIG", "/etc/deckbot.yaml")
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		assert.Equal(t, "/etc/deckbot.yaml", getConfigPath())
	})

	t.Run("xdg config home", func(t *testing.T) {
		t.Setenv("DECKBOT_CONFIG", "")
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		assert.Equal(t, filepath.Join("/xdg", "deckbot", "config.yaml"), getConfigPath())
	})

	t.Run("home fallback", func(t *testing.T) {
		t.Setenv("DECKBOT_CONFIG", "")
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("HOME", "/home/aziz")
		assert.Equal(t, filepath.Join("/home/aziz", ".config", "deckbot", "config.yaml"), getConfigPath())
	})
}

func TestGetDataPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	assert.Equal(t, filepath.Join("/data", "deckbot"), getDataPath())
}

func TestGetToken(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DECKBOT_CONFIG", filepath.Join(dir, "config.yaml"))

	t.Setenv("DECKBOT_TOKEN", "")
	assert.Empty(t, getToken())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "token"), []byte("from-file\n"), 0600))
	assert.Equal(t, "from-file", getToken())

	t.Setenv("DECKBOT_TOKEN", "from-env")
	assert.Equal(t, "from-env", getToken())
}

func TestParseTokenArgs(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantSubject string
		wantTTL     time.Duration
		wantErr     string
	}{
		{"separate values", []string{"--subject", "grafana", "--ttl", "2h"}, "grafana", 2 * time.Hour, ""},
		{"equals form", []string{"--subject=ops", "--ttl=720h"}, "ops", 720 * time.Hour, ""},
		{"short subject with default ttl", []string{"-s", "ops"}, "ops", defaultTokenTTL, ""},
		{"missing subject", []string{"--ttl", "1h"}, "", 0, "--subject flag is required"},
		{"blank subject", []string{"--subject", "   "}, "", 0, "--subject flag is required"},
		{"subject without value", []string{"--subject"}, "", 0, "--subject requires a value"},
		{"bad ttl", []string{"--subject", "ops", "--ttl", "soon"}, "", 0, "parsing --ttl"},
		{"negative ttl", []string{"--subject", "ops", "--ttl", "-1h"}, "", 0, "must be positive"},
		{"unknown flag", []string{"--subject", "ops", "--admin"}, "", 0, "unknown flag"},
		{"stray argument", []string{"ops"}, "", 0, "unexpected argument"},
		{"subject too long", []string{"--subject", strings.Repeat("x", 101)}, "", 0, "maximum length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTokenArgs(tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSubject, got.subject)
			assert.Equal(t, tt.wantTTL, got.ttl)
		})
	}
}

func TestRunToken_WritesVerifiableToken(t *testing.T) {
	dir := t.TempDir()
	secret := "0123456789abcdef0123456789abcdef"
	configPath := filepath.Join(dir, "config.yaml")
	cfg := "server:\n  http_addr: \"localhost:8080\"\ndatabase:\n  path: \"" + filepath.Join(dir, "deckbot.db") + "\"\nauth:\n  jwt_secret: \"" + secret + "\"\n"
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0600))
	t.Setenv("DECKBOT_CONFIG", configPath)

	require.NoError(t, runToken([]string{"--subject", "grafana", "--ttl", "1h"}))

	token, err := os.ReadFile(filepath.Join(dir, "token"))
	require.NoError(t, err)
	subject, err := auth.NewJWTVerifier([]byte(secret)).Verify(string(token))
	require.NoError(t, err)
	assert.Equal(t, "grafana", subject)
}

func TestRunToken_RequiresSecret(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	cfg := "server:\n  http_addr: \"localhost:8080\"\ndatabase:\n  path: \"" + filepath.Join(dir, "deckbot.db") + "\"\n"
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0600))
	t.Setenv("DECKBOT_CONFIG", configPath)

	err := runToken([]string{"--subject", "grafana"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret not configured")
}

func TestRenderConfig_ParsesBack(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	content := renderConfig(initAnswers{
		httpAddr:          "0.0.0.0:8080",
		dbPath:            "/var/lib/deckbot/deckbot.db",
		telegram:          true,
		webhookSecret:     "hook",
		matrix:            true,
		matrixHomeserver:  "https://matrix.example.org",
		matrixUserID:      "@deckbot:example.org",
		matrixAccessToken: "syt_token",
		matrixRooms:       []string{"!a:example.org", "!b:example.org"},
		contentProvider:   config.ProviderOpenAI,
		imagesProvider:    config.ProviderUnsplash,
		imagesKey:         "unsplash-key",
		jwtSecret:         "0123456789abcdef0123456789abcdef",
		logLevel:          "debug",
		logFormat:         "json",
		metrics:           true,
	})

	cfg, err := config.Parse([]byte(content))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "/var/lib/deckbot/deckbot.db", cfg.Database.Path)
	assert.Equal(t, "123:abc", cfg.Frontends.Telegram.BotToken)
	assert.Equal(t, "hook", cfg.Frontends.Telegram.SecretToken)
	assert.Equal(t, []string{"!a:example.org", "!b:example.org"}, cfg.Frontends.Matrix.AllowedRooms)
	assert.Equal(t, "sk-test", cfg.Content.OpenAI.APIKey)
	assert.Equal(t, "unsplash-key", cfg.Images.Unsplash.APIKey)
	assert.Equal(t, time.Hour, cfg.Dialogue.SweepInterval)
	assert.Equal(t, 2, cfg.Queue.Workers)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestEnvOr(t *testing.T) {
	assert.Equal(t, "value", envOr("value", "X"))
	assert.Equal(t, "${X}", envOr("", "X"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestColorHandler(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	logger := slog.New(newColorHandler(&buf, slog.LevelInfo))

	logger.Debug("hidden")
	logger.With("component", "queue").WithGroup("job").Info("job done", "id", "j1", "error", "two words")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INF job done")
	assert.Contains(t, out, " component=queue")
	assert.Contains(t, out, " job.id=j1")
	assert.Contains(t, out, ` job.error="two words"`)
	assert.Equal(t, 1, strings.Count(out, "\n"))
}
