// Package dedupe drops inbound events that a frontend delivers more than once.
// Telegram retries webhooks that time out and Matrix replays the last sync
// batch after a reconnect; both show up as the same event ID within minutes.
package dedupe
