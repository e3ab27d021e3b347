// Package worker implements the background worker process that runs the
// proxy engine outside the foreground UI process. The worker owns one engine
// bridge, one duplex IPC mailbox to the foreground, and one native event
// sink. It serves foreground action requests over IPC, bridges asynchronous
// native events into the same outbound mailbox, and registers the stop, DNS
// and notification handlers against the platform surface.
//
// Two startup modes exist. Normal mode opens IPC and defers all engine
// control to the foreground. Quick-start initializes and starts the tunnel
// immediately from the last-known state, trading foreground-mediated config
// negotiation for boot latency; any engine failure on that path is fatal to
// the process.
package worker
