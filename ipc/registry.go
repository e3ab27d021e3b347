package ipc

import (
	"fmt"
	"sync"
)

// ForegroundName is the well-known name under which the foreground process
// registers its receive mailbox before spawning the worker.
const ForegroundName = "caravel.foreground"

// Registry maps names to mailboxes for the startup handshake. It is an
// explicit instance shared between the foreground and the worker at
// construction time, not a process-global.
type Registry struct {
	mu    sync.RWMutex
	boxes map[string]*Mailbox
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{boxes: make(map[string]*Mailbox)}
}

// Register binds a mailbox to a name. Registering an already-bound name fails
// with ErrNameTaken.
func (r *Registry) Register(name string, box *Mailbox) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.boxes[name]; ok {
		return fmt.Errorf("registering %q : %w", name, ErrNameTaken)
	}
	r.boxes[name] = box
	return nil
}

// Lookup returns the mailbox bound to name, if any.
func (r *Registry) Lookup(name string) (*Mailbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	box, ok := r.boxes[name]
	return box, ok
}

// Unregister removes the binding for name, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.boxes, name)
}
