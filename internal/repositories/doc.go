// Package repositories implements SQLite persistence for credentials and transfer history.
//
// Key Implementations:
//   - [CredentialRepository] : one OAuth credential set per account name, replaced atomically on every write
//   - [RunRepository] : summaries of finished transfers, ordered by sequence
//
// Every storage failure is wrapped with [shared.ErrStorageIO] so callers can tell it apart from
// a missing record ([shared.ErrNotFound]).
//
// Sequence numbers provide stable, human-readable ordering (run #42) independent of UUIDs and timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
