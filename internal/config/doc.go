// Package config handles configuration loading for deckbot.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable expansion,
// duration parsing and defaults for everything that has a sensible one.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from DECKBOT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/deckbot/config.yaml
//  3. ~/.config/deckbot/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	frontends:
//	  telegram:
//	    bot_token: "${TELEGRAM_BOT_TOKEN}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	dialogue:
//	  timeout: "15m"
//	content:
//	  timeout: "60s"
//	queue:
//	  retry_backoff: "30s"
//
// # Configuration Sections
//
// Dialogue limits:
//
//	dialogue:
//	  timeout: "15m"      # sliding session window
//	  min_pages: 3
//	  max_pages: 50
//	  sweep_interval: ""  # empty disables the expired-session sweeper
//
// Providers:
//
//	content:
//	  provider: "anthropic"   # none, anthropic, openai, gemini, ollama
//	  anthropic:
//	    api_key: "${ANTHROPIC_API_KEY}"
//	images:
//	  provider: "unsplash"    # none, unsplash, pexels, pixabay
//	  max_bytes: 5242880
//	  palette:
//	    - ["#667eea", "#764ba2"]
//
// Frontends:
//
//	frontends:
//	  telegram:
//	    enabled: true
//	    bot_token: "${TELEGRAM_BOT_TOKEN}"
//	    secret_token: "${TELEGRAM_WEBHOOK_SECRET}"
//	  matrix:
//	    enabled: false
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() rejects unknown provider names, inverted page limits, malformed palette
// entries, short JWT secrets and enabled frontends without credentials.
package config
