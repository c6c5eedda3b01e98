// ABOUTME: Gateway wiring every deckbot component and owning the HTTP server lifecycle
// ABOUTME: Serves webhooks, health, metrics and the status API over TCP or a tailscale node

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/deckbot/internal/auth"
	"github.com/2389/deckbot/internal/bot"
	"github.com/2389/deckbot/internal/config"
	"github.com/2389/deckbot/internal/content"
	"github.com/2389/deckbot/internal/conversation"
	"github.com/2389/deckbot/internal/dedupe"
	"github.com/2389/deckbot/internal/dialogue"
	"github.com/2389/deckbot/internal/images"
	"github.com/2389/deckbot/internal/messages"
	"github.com/2389/deckbot/internal/metrics"
	"github.com/2389/deckbot/internal/notify"
	"github.com/2389/deckbot/internal/pipeline"
	"github.com/2389/deckbot/internal/queue"
	"github.com/2389/deckbot/internal/render"
	"github.com/2389/deckbot/internal/store"
	"github.com/2389/deckbot/internal/transport/matrix"
	"github.com/2389/deckbot/internal/transport/telegram"
)

// Gateway owns the store, the bot components and the HTTP server.
type Gateway struct {
	config       *config.Config
	store        store.Store
	dedupe       *dedupe.Cache
	conversation *conversation.Service
	router       *bot.Router
	queue        *queue.Queue
	notifier     *notify.Router
	telegram     *telegram.Frontend
	matrix       *matrix.Frontend
	registry     *prometheus.Registry
	verifier     *auth.JWTVerifier
	httpServer   *http.Server
	tsnetServer  *tsnet.Server
	logger       *slog.Logger

	shutdownOnce sync.Once
	shutdownErr  error
}

// Option adjusts how New builds a Gateway.
type Option func(*options)

type options struct {
	store       store.Store
	telegramAPI telegram.API
}

// WithStore uses s instead of opening database.path.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithTelegramAPI uses api instead of logging in with the bot token.
func WithTelegramAPI(api telegram.API) Option {
	return func(o *options) { o.telegramAPI = api }
}

// initStore opens the SQLite store. DECKBOT_DB_PATH overrides the configured path.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("DECKBOT_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New builds every component from cfg. Nothing listens until Run.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := o.store
	if s == nil {
		var err error
		if s, err = initStore(cfg); err != nil {
			return nil, err
		}
	}

	gw := &Gateway{
		config:   cfg,
		store:    s,
		notifier: notify.NewRouter(),
		logger:   logger.With("component", "gateway"),
	}
	if err := gw.build(o, logger); err != nil {
		_ = s.Close()
		if gw.dedupe != nil {
			gw.dedupe.Close()
		}
		return nil, err
	}
	return gw, nil
}

func (g *Gateway) build(o options, logger *slog.Logger) error {
	cfg := g.config

	var recorder metrics.Recorder = metrics.Nop{}
	if cfg.Metrics.Enabled {
		g.registry = prometheus.NewRegistry()
		g.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		recorder = metrics.NewPrometheusRecorder(g.registry)
	}

	catalog, err := messages.Load(cfg.Messages.Catalog)
	if err != nil {
		return err
	}

	backend, err := content.NewBackend(cfg.Content)
	if err != nil {
		return fmt.Errorf("creating text backend: %w", err)
	}
	if backend == nil {
		g.logger.Warn("no text backend configured, every deck uses fallback content", "provider", cfg.Content.Provider)
	}
	contentProvider := content.NewProvider(backend, content.Options{
		Timeout:   cfg.Content.Timeout,
		Language:  cfg.Content.Language,
		MaxTokens: cfg.Content.MaxTokens,
		Metrics:   recorder,
	}, logger)

	searcher, err := images.NewSearcher(cfg.Images)
	if err != nil {
		return fmt.Errorf("creating image backend: %w", err)
	}
	imageProvider, err := images.NewProvider(searcher, images.Options{
		Dir:      cfg.Images.Dir,
		MaxBytes: cfg.Images.MaxBytes,
		Timeout:  cfg.Images.Timeout,
		Palette:  cfg.Images.Palette,
		Metrics:  recorder,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating image provider: %w", err)
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	assembler := render.NewAssembler(render.Options{
		Labels:  render.LabelsFromCatalog(catalog),
		Palette: cfg.Images.Palette,
		PDFFont: cfg.Output.PDFFont,
	}, logger)

	orchestrator := pipeline.New(pipeline.Deps{
		Requests:  g.store,
		Content:   contentProvider,
		Images:    imageProvider,
		Assembler: assembler,
		Notifier:  g.notifier,
		Catalog:   catalog,
		Metrics:   recorder,
		OutputDir: cfg.Output.Dir,
	}, logger)

	g.queue = queue.New(g.store, orchestrator, queue.Options{
		Workers:      cfg.Queue.Workers,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		RetryBackoff: cfg.Queue.RetryBackoff,
		PollInterval: cfg.Queue.PollInterval,
		Retryable:    func(err error) bool { return errors.Is(err, pipeline.ErrDelivery) },
		Metrics:      recorder,
	}, logger)

	g.conversation = conversation.New(g.store, cfg.Dialogue.Timeout, logger)
	engine := dialogue.New(dialogue.Deps{
		Conversations: g.conversation,
		Requests:      g.store,
		Users:         g.store,
		Dispatcher:    g.queue,
		Notifier:      g.notifier,
		Catalog:       catalog,
		Metrics:       recorder,
	}, cfg.Dialogue.MinPages, cfg.Dialogue.MaxPages, logger)

	g.dedupe = dedupe.New(cfg.Dialogue.DedupeTTL, cfg.Dialogue.DedupeSize)
	g.router = bot.NewRouter(bot.Deps{
		Dialogue: engine,
		Users:    g.store,
		Dedupe:   g.dedupe,
		Notifier: g.notifier,
		Catalog:  catalog,
		Metrics:  recorder,
	}, logger)

	if err := g.setupFrontends(o, logger); err != nil {
		return err
	}

	if cfg.Auth.JWTSecret != "" {
		g.verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	} else {
		g.logger.Warn("auth.jwt_secret not set, status API disabled")
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

func (g *Gateway) setupFrontends(o options, logger *slog.Logger) error {
	cfg := g.config.Frontends

	if cfg.Telegram.Enabled {
		api := o.telegramAPI
		if api == nil {
			botAPI, err := telegram.Connect(cfg.Telegram.BotToken)
			if err != nil {
				return err
			}
			g.logger.Info("telegram bot connected", "username", botAPI.Self.UserName)
			api = botAPI
		}
		g.telegram = telegram.New(api, cfg.Telegram.SecretToken, logger)
		g.telegram.SetHandler(g.router)
		g.notifier.Register(telegram.Name, g.telegram)
	}

	if cfg.Matrix.Enabled {
		fe, err := matrix.New(matrix.Config{
			Homeserver:   cfg.Matrix.Homeserver,
			UserID:       cfg.Matrix.UserID,
			AccessToken:  cfg.Matrix.AccessToken,
			AllowedRooms: cfg.Matrix.AllowedRooms,
		}, logger)
		if err != nil {
			return err
		}
		fe.SetHandler(g.router)
		g.notifier.Register(matrix.Name, fe)
		g.matrix = fe
	}

	if g.telegram == nil && g.matrix == nil {
		g.logger.Warn("no frontend enabled, the bot will not receive messages")
	}
	return nil
}

func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	if g.telegram != nil {
		mux.Handle("POST "+g.config.Frontends.Telegram.WebhookPath, g.telegram)
	}
	if g.registry != nil {
		mux.Handle("GET "+g.config.Metrics.Path, promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}))
	}
	if g.verifier != nil {
		requireToken := auth.BearerMiddleware(g.verifier)
		mux.Handle("GET /api/requests", requireToken(http.HandlerFunc(g.handleListRequests)))
		mux.Handle("GET /api/requests/{id}", requireToken(http.HandlerFunc(g.handleGetRequest)))
	}
	return mux
}

// Handler exposes the HTTP routes, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run listens, starts the queue workers and frontends, and blocks until ctx
// is cancelled or a component fails. Once listening, it shuts down before returning.
func (g *Gateway) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ln, err := g.setupListener(runCtx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 3)
	var wg sync.WaitGroup

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := g.queue.Run(runCtx); err != nil {
			errCh <- fmt.Errorf("queue: %w", err)
		}
	}()

	if g.matrix != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.matrix.Run(runCtx); err != nil {
				errCh <- err
			}
		}()
	}

	if interval := g.config.Dialogue.SweepInterval; interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.conversation.RunSweeper(runCtx, interval)
		}()
	}

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("component failed", "error", serverErr)
	}

	cancel()
	wg.Wait()

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "deckbot", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set tailscale.auth_key or TS_AUTHKEY")
	}
	return authKey, nil
}

// setupTailscaleListener joins the tailnet and listens on :443 through
// funnel (public, so Telegram can reach the webhook) or on :80 otherwise.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}
	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	dnsName := g.logTailscaleStatus(tsCfg.Hostname, status)

	if !tsCfg.Funnel {
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}

	g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
	ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale funnel: %w", err)
	}
	if g.telegram != nil && dnsName != "" {
		webhook := "https://" + dnsName + g.config.Frontends.Telegram.WebhookPath
		if err := g.telegram.RegisterWebhook(webhook); err != nil {
			g.logger.Error("telegram webhook registration failed", "url", webhook, "error", err)
		}
	}
	return ln, nil
}

// logTailscaleStatus logs the node addresses and returns its DNS name without the trailing dot.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) string {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = strings.TrimSuffix(status.Self.DNSName, ".")
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
	return dnsName
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server and releases the store. Later calls return the first result.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		g.logger.Info("shutting down gateway")

		var errs []error
		errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
		if g.tsnetServer != nil {
			errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
		}
		errs = appendCloseError(errs, "store close", g.store.Close())
		if g.dedupe != nil {
			g.dedupe.Close()
		}
		g.shutdownErr = errors.Join(errs...)
	})
	return g.shutdownErr
}
