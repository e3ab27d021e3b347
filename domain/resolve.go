package domain

import "time"

// ProbeResult is the outcome of one liveness probe against one candidate
// endpoint during a race.
type ProbeResult struct {
	URL       string        // The probed candidate
	Reachable bool          // Whether the candidate answered in time
	Latency   time.Duration // Time to first response, valid only when reachable
}

// RaceOutcome is the result of racing a set of candidate endpoints. Winner is
// empty iff no candidate was reachable within the race's overall deadline;
// that is a normal outcome, not an error, and callers are expected to fall
// back to a cached or default endpoint.
type RaceOutcome struct {
	Winner  string        // First candidate to answer, empty if none did
	Latency time.Duration // The winner's latency
}

// Resolved reports whether the race produced a winner.
func (o RaceOutcome) Resolved() bool {
	return o.Winner != ""
}
