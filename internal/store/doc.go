// Package store provides persistent storage for deckbot using SQLite.
//
// # Architecture
//
// A single Store interface covers the four record kinds the bot keeps:
//
//   - User: profile of an end user as last seen on a frontend
//   - ConversationState: the in-progress dialogue of one user
//   - GenerationRequest: durable record of one document to produce
//   - Job: entry of the durable work queue that drives generation
//
// SQLiteStore implements Store on modernc.org/sqlite (pure Go, no cgo).
// MockStore is an in-memory implementation with the same semantics for tests.
//
// # Concurrency
//
// Every conversation mutation is a single SQL statement, so a field write and a
// state change for the same user can never interleave into a torn record.
// Request status changes are guarded UPDATEs: the row only changes when its
// current status is an allowed source of the transition, which keeps the
// pending → generating → completed|failed order monotonic even with several
// workers.
//
// ClaimJob uses UPDATE ... RETURNING so two workers never claim the same job.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;  (per connection, via DSN)
//	PRAGMA foreign_keys=ON;    (per connection, via DSN)
//
// Timestamps are stored as RFC3339 strings in UTC.
//
// # Errors
//
//   - ErrNotFound: requested entity does not exist
//   - ErrInvalidTransition: request status change not allowed from the current status
package store
