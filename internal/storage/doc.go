// Package storage keeps an audit trail of delivery attempts.
//
// Every admitted event produces one DeliveryRecord, whether the dispatcher
// accepted it or not. Rate-limited drops are not recorded.
//
// Backends:
//   - "file":   append-only JSON Lines
//   - "sqlite": SQLite database (modernc.org/sqlite, no cgo)
package storage
