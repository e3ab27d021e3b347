// Package ipc implements the message contract between the worker process and
// the foreground process: typed envelopes with an explicit kind discriminant
// and correlation id, FIFO mailboxes that move envelopes by copy, and a named
// registry used for the startup handshake.
//
// Two one-directional mailboxes combine into a duplex channel. The foreground
// registers its mailbox under a well-known name; the worker looks it up,
// announces its own mailbox with a hello envelope, and then serves action
// requests. Unsolicited native events travel over the same worker-to-foreground
// mailbox as responses and are distinguished by their kind.
package ipc
