// Package storage persists the reminder set.
//
// A Backend loads and saves whole snapshots (owner -> ordered records):
//   - "file": one JSON document, replaced atomically on every save
//   - "sqlite": a SQLite database whose schema is managed by golang-migrate
//   - "memory": process-local, for tests and dry runs
package storage
