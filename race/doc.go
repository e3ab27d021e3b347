// Package race implements the endpoint racing service: given a set of
// candidate base URLs it probes all of them concurrently and returns the
// first one that answers a lightweight liveness request, together with its
// latency. Probes can run over a transport pinned to a single certificate
// authority. Total failure is a normal outcome, not an error, so that offline
// operation stays a first-class path for callers.
package race
