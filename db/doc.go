// Package db provides the SQLite-backed implementation of the domain
// CacheStore contract. It persists the last successfully fetched
// configuration payload in a single-row table so the client stays
// configurable fully offline, and manages the database schema through
// embedded goose migrations.
package db
