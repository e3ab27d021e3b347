package ipc

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrMailboxClosed is returned when sending to or receiving from a closed
	// mailbox.
	ErrMailboxClosed = errors.New("mailbox closed")

	// ErrNameTaken is returned when registering a mailbox under a name that
	// is already registered.
	ErrNameTaken = errors.New("mailbox name already registered")
)

// mailboxBuffer bounds how many envelopes a mailbox holds before senders
// block. Sends remain FIFO regardless of buffering.
const mailboxBuffer = 64

// Mailbox is a one-directional FIFO channel of envelopes. Envelopes are moved
// by copy; the only handle that crosses a mailbox is another mailbox, during
// the hello handshake.
type Mailbox struct {
	ch   chan *Envelope
	done chan struct{}
	once sync.Once
}

// NewMailbox creates an open mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		ch:   make(chan *Envelope, mailboxBuffer),
		done: make(chan struct{}),
	}
}

// Send enqueues one envelope, blocking while the mailbox is full. It returns
// ErrMailboxClosed once the mailbox has been closed.
func (m *Mailbox) Send(env *Envelope) error {
	select {
	case <-m.done:
		return ErrMailboxClosed
	default:
	}
	select {
	case m.ch <- env:
		return nil
	case <-m.done:
		return ErrMailboxClosed
	}
}

// Receive blocks until the next envelope arrives, the mailbox closes, or the
// context is cancelled. Envelopes still buffered when Close is called are
// discarded; the receive loop contract is that nothing is processed after the
// close.
func (m *Mailbox) Receive(ctx context.Context) (*Envelope, error) {
	select {
	case <-m.done:
		return nil, ErrMailboxClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case env := <-m.ch:
		return env, nil
	}
}

// Close closes the mailbox. Further sends and receives fail with
// ErrMailboxClosed. Close is idempotent.
func (m *Mailbox) Close() {
	m.once.Do(func() {
		close(m.done)
	})
}

// Closed reports whether Close has been called.
func (m *Mailbox) Closed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}
