package domain

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Traffic is a snapshot of the engine's byte counters since tunnel start.
type Traffic struct {
	Uplink   uint64 // Bytes sent upstream
	Downlink uint64 // Bytes received downstream
}

// Add returns the sum of two snapshots.
func (t Traffic) Add(other Traffic) Traffic {
	return Traffic{
		Uplink:   t.Uplink + other.Uplink,
		Downlink: t.Downlink + other.Downlink,
	}
}

// String renders the snapshot for notification content, e.g. "↑ 1.2 MiB ↓ 34 MiB".
func (t Traffic) String() string {
	return fmt.Sprintf("↑ %s ↓ %s", humanize.IBytes(t.Uplink), humanize.IBytes(t.Downlink))
}
