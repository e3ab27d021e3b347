package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMailbox(t *testing.T) {
	t.Run("envelopes should arrive in send order", func(t *testing.T) {
		box := NewMailbox()

		for i := 0; i < 5; i++ {
			env, err := NewRequest("echo", json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)))
			if err != nil {
				t.Fatalf("building request: %v", err)
			}
			if err := box.Send(env); err != nil {
				t.Fatalf("wanted: nil\ngot: %v", err)
			}
		}

		for i := 0; i < 5; i++ {
			env, err := box.Receive(context.Background())
			if err != nil {
				t.Fatalf("wanted: nil\ngot: %v", err)
			}
			want := fmt.Sprintf(`{"n":%d}`, i)
			if string(env.Payload) != want {
				t.Fatalf("wanted: %s\ngot: %s", want, env.Payload)
			}
		}
	})

	t.Run("send to a closed mailbox should fail", func(t *testing.T) {
		box := NewMailbox()
		box.Close()

		env, err := NewRequest("echo", nil)
		if err != nil {
			t.Fatalf("building request: %v", err)
		}
		if err := box.Send(env); !errors.Is(err, ErrMailboxClosed) {
			t.Fatalf("wanted: %v\ngot: %v", ErrMailboxClosed, err)
		}
	})

	t.Run("receive from a closed mailbox should fail", func(t *testing.T) {
		box := NewMailbox()
		box.Close()

		if _, err := box.Receive(context.Background()); !errors.Is(err, ErrMailboxClosed) {
			t.Fatalf("wanted: %v\ngot: %v", ErrMailboxClosed, err)
		}
	})

	t.Run("close should be idempotent", func(t *testing.T) {
		box := NewMailbox()
		box.Close()
		box.Close()

		if !box.Closed() {
			t.Fatal("wanted the mailbox to report closed")
		}
	})

	t.Run("receive should respect context cancellation", func(t *testing.T) {
		box := NewMailbox()
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		if _, err := box.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("wanted: %v\ngot: %v", context.DeadlineExceeded, err)
		}
	})
}

func TestEnvelope(t *testing.T) {
	t.Run("nil envelope should be the close sentinel", func(t *testing.T) {
		var env *Envelope
		if !env.IsClose() {
			t.Fatal("wanted nil envelope to read as close")
		}
	})

	t.Run("explicit close kind should be the close sentinel", func(t *testing.T) {
		env := &Envelope{Kind: KindClose}
		if !env.IsClose() {
			t.Fatal("wanted close kind to read as close")
		}
	})

	t.Run("responses should echo the request id", func(t *testing.T) {
		req, err := NewRequest("traffic", nil)
		if err != nil {
			t.Fatalf("building request: %v", err)
		}

		res := Respond(req, json.RawMessage(`{"uplink":1}`))
		if res.ID != req.ID {
			t.Fatalf("wanted: %s\ngot: %s", req.ID, res.ID)
		}
		if res.Kind != KindResponse {
			t.Fatalf("wanted: %s\ngot: %s", KindResponse, res.Kind)
		}
	})

	t.Run("faults should carry the error as a response payload", func(t *testing.T) {
		req, err := NewRequest("traffic", nil)
		if err != nil {
			t.Fatalf("building request: %v", err)
		}

		fault := Fault(req, errors.New("engine not started"))
		if fault.Kind != KindResponse {
			t.Fatalf("wanted: %s\ngot: %s", KindResponse, fault.Kind)
		}
		if fault.Error != "engine not started" {
			t.Fatalf("wanted: %q\ngot: %q", "engine not started", fault.Error)
		}
	})

	t.Run("events should carry fresh ids", func(t *testing.T) {
		first, err := NewEvent(json.RawMessage(`{}`))
		if err != nil {
			t.Fatalf("building event: %v", err)
		}
		second, err := NewEvent(json.RawMessage(`{}`))
		if err != nil {
			t.Fatalf("building event: %v", err)
		}
		if first.ID == second.ID {
			t.Fatal("wanted distinct event ids")
		}
	})
}

func TestRegistry(t *testing.T) {
	t.Run("lookup should find a registered mailbox", func(t *testing.T) {
		registry := NewRegistry()
		box := NewMailbox()

		if err := registry.Register(ForegroundName, box); err != nil {
			t.Fatalf("wanted: nil\ngot: %v", err)
		}

		got, ok := registry.Lookup(ForegroundName)
		if !ok {
			t.Fatal("wanted the mailbox to be found")
		}
		if got != box {
			t.Fatal("wanted the registered mailbox back")
		}
	})

	t.Run("registering a taken name should fail", func(t *testing.T) {
		registry := NewRegistry()

		if err := registry.Register(ForegroundName, NewMailbox()); err != nil {
			t.Fatalf("wanted: nil\ngot: %v", err)
		}
		if err := registry.Register(ForegroundName, NewMailbox()); !errors.Is(err, ErrNameTaken) {
			t.Fatalf("wanted: %v\ngot: %v", ErrNameTaken, err)
		}
	})

	t.Run("unregister should free the name", func(t *testing.T) {
		registry := NewRegistry()

		if err := registry.Register(ForegroundName, NewMailbox()); err != nil {
			t.Fatalf("wanted: nil\ngot: %v", err)
		}
		registry.Unregister(ForegroundName)

		if _, ok := registry.Lookup(ForegroundName); ok {
			t.Fatal("wanted the name to be free after unregister")
		}
	})
}
