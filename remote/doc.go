// Package remote implements the remote configuration manager. It fetches
// configuration JSON from an ordered list of sources with per-source retry
// and timeout, decodes compressed and encrypted payloads, and falls back to a
// persisted cache when every source is exhausted so that a client that has
// fetched successfully once stays configurable fully offline.
package remote
