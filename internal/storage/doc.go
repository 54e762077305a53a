// Package storage persists schedules, the taken ledger and notifier dedup
// state.
//
// Drivers:
//   - "sqlite": embedded database file (modernc.org/sqlite, no cgo)
//   - "postgres": shared PostgreSQL server (lib/pq)
//   - "file": JSON Lines journal with periodic snapshot compaction
//
// Every driver enforces one ledger row per dose slot; a duplicate insert
// returns dose.ErrAlreadyLogged.
package storage
