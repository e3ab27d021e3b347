// Package domain defines the core contracts and data structures of the Caravel client.
// It contains the engine bridge and platform contracts consumed by the worker process,
// the cache store contract consumed by the remote configuration manager, and the
// shared value types (settings, traffic counters, probe results) that cross
// package boundaries.
//
// This package serves as the central point for application-wide types and business rules,
// ensuring a clean separation between the client's core logic and its implementation
// details, such as the native engine, the platform shell, or the storage backend.
// By defining interfaces for these collaborators, the domain package remains
// independent of any concrete engine or storage technology.
package domain
