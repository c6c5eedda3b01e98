// Package gateway wires the deckbot server together.
//
// # Overview
//
// The Gateway owns the store, the dialogue engine, the generation queue and
// every enabled chat frontend. New builds all components from config; Run
// starts listening and blocks until the context is cancelled.
//
// # Components
//
//	frontend (telegram webhook / matrix sync)
//	    -> bot.Router (dedupe, commands, blocked users)
//	    -> dialogue.Engine (questionnaire, request creation)
//	    -> queue.Queue (durable jobs, retries)
//	    -> pipeline.Orchestrator (content, images, render, delivery)
//
// Outbound messages from the dialogue and pipeline go through a notify.Router
// which picks the frontend from the conversation ID prefix.
//
// # HTTP
//
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (database round trip)
//   - POST {telegram.webhook_path} - Telegram updates
//   - GET {metrics.path} - Prometheus metrics, when enabled
//   - GET /api/requests - Recent requests, optional user_id and limit
//   - GET /api/requests/{id} - One request
//
// The /api routes require a bearer token signed with auth.jwt_secret and are
// not mounted when the secret is empty.
//
// # Tailscale
//
// With tailscale.enabled the server listens on a tsnet node instead of
// server.http_addr. With tailscale.funnel it serves public HTTPS on :443 and
// registers the Telegram webhook at the node's DNS name.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // returns after cancel, already shut down
//
// Jobs interrupted by shutdown stay running in the store and are requeued on
// the next start.
package gateway
