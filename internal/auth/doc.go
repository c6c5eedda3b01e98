// Package auth protects the deckbot status API.
//
// # Tokens
//
// Operators and dashboards authenticate with HS256 JWTs signed with the
// configured auth.jwt_secret. The subject claim names the caller; tokens
// carry an issuer of "deckbot" and an expiry. `deckbot token --subject NAME`
// mints one.
//
// # HTTP
//
// BearerMiddleware reads "Authorization: Bearer <token>", verifies it and
// stores the caller in the request context:
//
//	mux.Handle("GET /api/requests/{id}", auth.BearerMiddleware(verifier)(handler))
//
//	caller := auth.FromContext(r.Context())
//
// Failures answer 401 with a small JSON error body and never reach the
// wrapped handler.
package auth
