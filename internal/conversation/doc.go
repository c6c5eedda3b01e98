// Package conversation owns the persisted per-user dialogue record.
//
// # Overview
//
// Every read and write of dialogue state goes through Service. There is no
// in-memory session map: the record lives in the store, keyed by the
// frontend-qualified user ID, so a restart or a second process sees the same
// state.
//
// # Contract
//
//   - Get(user): the current Conversation, or nil when the user never started one
//   - Upsert(user, state, data): replace the record and open a new window
//   - SetField(user, key, value): add one collected value
//   - Advance(user, state): move to the next dialogue step
//   - TouchExpiry(user): slide the window to now + TTL
//   - Clear(user): state=idle, data empty, no expiry
//
// Each call is one SQL statement, so concurrent callers never observe a record
// with a new state but a missing field. Serializing a single user's events is
// the caller's job (see package dialogue).
//
// # Expiry
//
// Expiry is lazy: Conversation.Expired is checked when the next message
// arrives. RunSweeper optionally deletes rows nobody came back to.
package conversation
