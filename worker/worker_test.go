package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/tfkr-ae/caravel/domain"
	"github.com/tfkr-ae/caravel/ipc"
)

type fakeBridge struct {
	mu sync.Mutex

	startMsg        string // Returned by InitAndStart; empty means success
	started         bool
	listenerRunning bool
	listenerStops   int
	profile         string
	traffic         domain.Traffic
	dns             string
	sink            domain.NativeEventFunc

	invoke func(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error)
}

func (b *fakeBridge) InitAndStart(init domain.EngineInitParams, runtime domain.EngineRuntimeParams, coreState []byte) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startMsg != "" {
		return b.startMsg
	}
	b.started = true
	return ""
}

func (b *fakeBridge) StartNativeListener() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listenerRunning = true
	return nil
}

func (b *fakeBridge) StopNativeListener() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listenerRunning = false
	b.listenerStops++
	return nil
}

func (b *fakeBridge) Traffic() (domain.Traffic, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.traffic, nil
}

func (b *fakeBridge) CurrentProfileName() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.profile == "" {
		return "", errors.New("no profile")
	}
	return b.profile, nil
}

func (b *fakeBridge) UpdateDNS(dns string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dns = dns
	return nil
}

func (b *fakeBridge) AttachNativeEventSink(sink domain.NativeEventFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = sink
	return nil
}

func (b *fakeBridge) DetachNativeEventSink() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = nil
}

func (b *fakeBridge) InvokeAction(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error) {
	b.mu.Lock()
	invoke := b.invoke
	b.mu.Unlock()
	if invoke != nil {
		return invoke(ctx, action, payload)
	}
	return payload, nil
}

func (b *fakeBridge) PlatformVPNOptions() (domain.VPNOptions, error) {
	return domain.VPNOptions{InterfaceName: "tun-test", MTU: 1500}, nil
}

func (b *fakeBridge) emit(event json.RawMessage) {
	b.mu.Lock()
	sink := b.sink
	b.mu.Unlock()
	if sink != nil {
		sink(event)
	}
}

type fakePlatform struct {
	mu sync.Mutex

	tunnelUp    bool
	tunnelStops int
	stopHandler func()
	dnsHandler  func(dns string)
	notify      domain.NotificationFunc
}

func (p *fakePlatform) StartTunnelInterface(opts domain.VPNOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tunnelUp = true
	return nil
}

func (p *fakePlatform) StopTunnelInterface() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tunnelUp = false
	p.tunnelStops++
	return nil
}

func (p *fakePlatform) RegisterStopHandler(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopHandler = fn
}

func (p *fakePlatform) RegisterDNSHandler(fn func(dns string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dnsHandler = fn
}

func (p *fakePlatform) SetNotificationProvider(fn domain.NotificationFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notify = fn
}

// startWorker runs a worker against a registered foreground mailbox and waits
// for its hello, returning the worker's inbox, the foreground mailbox, the
// run's result channel and a cancel func ending the run.
func startWorker(t *testing.T, bridge *fakeBridge, platform *fakePlatform, flags Flags) (*ipc.Mailbox, *ipc.Mailbox, chan error, context.CancelFunc) {
	t.Helper()

	registry := ipc.NewRegistry()
	foreground := ipc.NewMailbox()
	if err := registry.Register(ipc.ForegroundName, foreground); err != nil {
		t.Fatalf("registering foreground mailbox: %v", err)
	}

	worker, err := New(bridge,
		WithPlatform(platform),
		WithRegistry(registry),
		WithLogger(slog.New(slog.DiscardHandler)),
	)
	if err != nil {
		t.Fatalf("creating worker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ctx, flags)
	}()

	hello := receive(t, foreground)
	if hello.Kind != ipc.KindHello {
		t.Fatalf("wanted: %s\ngot: %s", ipc.KindHello, hello.Kind)
	}
	if hello.Reply == nil {
		t.Fatal("wanted the hello to carry the worker mailbox")
	}
	return hello.Reply, foreground, done, cancel
}

func receive(t *testing.T, box *ipc.Mailbox) *ipc.Envelope {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	envelope, err := box.Receive(ctx)
	if err != nil {
		t.Fatalf("receiving envelope: %v", err)
	}
	return envelope
}

func waitRun(t *testing.T, done chan error) error {
	t.Helper()

	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("worker run did not end in time")
		return nil
	}
}

func TestRun(t *testing.T) {
	t.Run("requests should be answered in order with matching ids", func(t *testing.T) {
		bridge := &fakeBridge{}
		inbox, foreground, done, cancel := startWorker(t, bridge, &fakePlatform{}, Flags{})
		defer cancel()

		var requests []*ipc.Envelope
		for i := 0; i < 3; i++ {
			req, err := ipc.NewRequest("echo", json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)))
			if err != nil {
				t.Fatalf("building request: %v", err)
			}
			requests = append(requests, req)
			if err := inbox.Send(req); err != nil {
				t.Fatalf("sending request: %v", err)
			}
		}

		for i, req := range requests {
			res := receive(t, foreground)
			if res.Kind != ipc.KindResponse {
				t.Fatalf("wanted: %s\ngot: %s", ipc.KindResponse, res.Kind)
			}
			if res.ID != req.ID {
				t.Fatalf("response %d wanted id: %s\ngot: %s", i, req.ID, res.ID)
			}
			want := fmt.Sprintf(`{"n":%d}`, i)
			if string(res.Payload) != want {
				t.Fatalf("wanted: %s\ngot: %s", want, res.Payload)
			}
		}

		cancel()
		if err := waitRun(t, done); err != nil {
			t.Fatalf("wanted: nil\ngot: %v", err)
		}
	})

	t.Run("close sentinel should yield exactly the responses already requested", func(t *testing.T) {
		bridge := &fakeBridge{}
		inbox, foreground, done, cancel := startWorker(t, bridge, &fakePlatform{}, Flags{})
		defer cancel()

		for i := 0; i < 2; i++ {
			req, err := ipc.NewRequest("echo", json.RawMessage(`{}`))
			if err != nil {
				t.Fatalf("building request: %v", err)
			}
			if err := inbox.Send(req); err != nil {
				t.Fatalf("sending request: %v", err)
			}
		}
		if err := inbox.Send(nil); err != nil {
			t.Fatalf("sending close sentinel: %v", err)
		}

		for i := 0; i < 2; i++ {
			res := receive(t, foreground)
			if res.Kind != ipc.KindResponse {
				t.Fatalf("response %d wanted: %s\ngot: %s", i, ipc.KindResponse, res.Kind)
			}
		}

		deadline := time.Now().Add(2 * time.Second)
		for !inbox.Closed() {
			if time.Now().After(deadline) {
				t.Fatal("wanted the worker inbox to close after the sentinel")
			}
			time.Sleep(10 * time.Millisecond)
		}

		req, err := ipc.NewRequest("echo", nil)
		if err != nil {
			t.Fatalf("building request: %v", err)
		}
		if err := inbox.Send(req); !errors.Is(err, ipc.ErrMailboxClosed) {
			t.Fatalf("wanted: %v\ngot: %v", ipc.ErrMailboxClosed, err)
		}

		cancel()
		if err := waitRun(t, done); err != nil {
			t.Fatalf("wanted: nil\ngot: %v", err)
		}
	})

	t.Run("dispatch failure should answer with an error envelope", func(t *testing.T) {
		bridge := &fakeBridge{
			invoke: func(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error) {
				return nil, errors.New("engine not started")
			},
		}
		inbox, foreground, _, cancel := startWorker(t, bridge, &fakePlatform{}, Flags{})
		defer cancel()

		req, err := ipc.NewRequest("traffic", nil)
		if err != nil {
			t.Fatalf("building request: %v", err)
		}
		if err := inbox.Send(req); err != nil {
			t.Fatalf("sending request: %v", err)
		}

		res := receive(t, foreground)
		if res.ID != req.ID {
			t.Fatalf("wanted id: %s\ngot: %s", req.ID, res.ID)
		}
		if res.Error != "engine not started" {
			t.Fatalf("wanted: %q\ngot: %q", "engine not started", res.Error)
		}
	})

	t.Run("dispatch panic should answer with an error envelope and keep serving", func(t *testing.T) {
		bridge := &fakeBridge{
			invoke: func(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error) {
				if action == "boom" {
					panic("unexpected state")
				}
				return payload, nil
			},
		}
		inbox, foreground, _, cancel := startWorker(t, bridge, &fakePlatform{}, Flags{})
		defer cancel()

		boom, err := ipc.NewRequest("boom", nil)
		if err != nil {
			t.Fatalf("building request: %v", err)
		}
		if err := inbox.Send(boom); err != nil {
			t.Fatalf("sending request: %v", err)
		}

		res := receive(t, foreground)
		if res.ID != boom.ID {
			t.Fatalf("wanted id: %s\ngot: %s", boom.ID, res.ID)
		}
		if res.Error == "" {
			t.Fatal("wanted an error payload for the panicking action")
		}

		echo, err := ipc.NewRequest("echo", json.RawMessage(`{"ok":true}`))
		if err != nil {
			t.Fatalf("building request: %v", err)
		}
		if err := inbox.Send(echo); err != nil {
			t.Fatalf("sending request: %v", err)
		}
		res = receive(t, foreground)
		if res.Error != "" {
			t.Fatalf("wanted the loop to keep serving\ngot error: %q", res.Error)
		}
	})

	t.Run("native events should be forwarded to the foreground", func(t *testing.T) {
		bridge := &fakeBridge{}
		_, foreground, _, cancel := startWorker(t, bridge, &fakePlatform{}, Flags{})
		defer cancel()

		bridge.emit(json.RawMessage(`{"type":"traffic","uplink":42}`))

		event := receive(t, foreground)
		if event.Kind != ipc.KindEvent {
			t.Fatalf("wanted: %s\ngot: %s", ipc.KindEvent, event.Kind)
		}
		if string(event.Payload) != `{"type":"traffic","uplink":42}` {
			t.Fatalf("wanted the native payload verbatim\ngot: %s", event.Payload)
		}
	})

	t.Run("stop handler should notify the foreground and end the run", func(t *testing.T) {
		bridge := &fakeBridge{}
		platform := &fakePlatform{}
		_, foreground, done, cancel := startWorker(t, bridge, platform, Flags{})
		defer cancel()

		platform.mu.Lock()
		stop := platform.stopHandler
		platform.mu.Unlock()
		if stop == nil {
			t.Fatal("wanted a registered stop handler")
		}
		stop()

		event := receive(t, foreground)
		if event.Kind != ipc.KindEvent {
			t.Fatalf("wanted: %s\ngot: %s", ipc.KindEvent, event.Kind)
		}
		if string(event.Payload) != `{"type":"stopped"}` {
			t.Fatalf("wanted: %s\ngot: %s", `{"type":"stopped"}`, event.Payload)
		}

		if err := waitRun(t, done); err != nil {
			t.Fatalf("wanted: nil\ngot: %v", err)
		}
		platform.mu.Lock()
		defer platform.mu.Unlock()
		if platform.tunnelStops != 1 {
			t.Fatalf("wanted: 1 tunnel stop\ngot: %d", platform.tunnelStops)
		}
		bridge.mu.Lock()
		defer bridge.mu.Unlock()
		if bridge.listenerStops != 1 {
			t.Fatalf("wanted: 1 listener stop\ngot: %d", bridge.listenerStops)
		}
	})

	t.Run("dns handler should forward into the engine", func(t *testing.T) {
		bridge := &fakeBridge{}
		platform := &fakePlatform{}
		_, _, _, cancel := startWorker(t, bridge, platform, Flags{})
		defer cancel()

		platform.mu.Lock()
		dns := platform.dnsHandler
		platform.mu.Unlock()
		if dns == nil {
			t.Fatal("wanted a registered dns handler")
		}
		dns("1.1.1.1")

		bridge.mu.Lock()
		defer bridge.mu.Unlock()
		if bridge.dns != "1.1.1.1" {
			t.Fatalf("wanted: %q\ngot: %q", "1.1.1.1", bridge.dns)
		}
	})

	t.Run("notification should reflect live engine state", func(t *testing.T) {
		bridge := &fakeBridge{profile: "Tokyo-01"}
		platform := &fakePlatform{}
		_, _, _, cancel := startWorker(t, bridge, platform, Flags{})
		defer cancel()

		bridge.mu.Lock()
		bridge.traffic = domain.Traffic{Uplink: 2048, Downlink: 4096}
		want := bridge.traffic.String()
		bridge.mu.Unlock()

		platform.mu.Lock()
		notify := platform.notify
		platform.mu.Unlock()
		if notify == nil {
			t.Fatal("wanted a registered notification provider")
		}

		got := notify()
		if got.Title != "Tokyo-01" {
			t.Fatalf("wanted: %q\ngot: %q", "Tokyo-01", got.Title)
		}
		if got.Content != want {
			t.Fatalf("wanted: %q\ngot: %q", want, got.Content)
		}
	})

	t.Run("notification should fall back to a default title", func(t *testing.T) {
		bridge := &fakeBridge{} // No profile, CurrentProfileName fails
		platform := &fakePlatform{}
		_, _, _, cancel := startWorker(t, bridge, platform, Flags{})
		defer cancel()

		platform.mu.Lock()
		notify := platform.notify
		platform.mu.Unlock()

		got := notify()
		if got.Title != "caravel" {
			t.Fatalf("wanted: %q\ngot: %q", "caravel", got.Title)
		}
	})

	t.Run("missing foreground mailbox should degrade, not fail", func(t *testing.T) {
		worker, err := New(&fakeBridge{},
			WithRegistry(ipc.NewRegistry()),
			WithLogger(slog.New(slog.DiscardHandler)),
		)
		if err != nil {
			t.Fatalf("creating worker: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- worker.Run(ctx, Flags{})
		}()

		time.Sleep(50 * time.Millisecond)
		cancel()
		if err := waitRun(t, done); err != nil {
			t.Fatalf("wanted: nil\ngot: %v", err)
		}
	})
}

func TestQuickStart(t *testing.T) {
	t.Run("success should bring up the tunnel and the native listener", func(t *testing.T) {
		bridge := &fakeBridge{}
		platform := &fakePlatform{}
		flags := Flags{
			QuickStart: true,
			Runtime:    domain.EngineRuntimeParams{ProfileName: "Tokyo-01", TunnelEnabled: true},
		}
		_, _, done, cancel := startWorker(t, bridge, platform, flags)
		defer cancel()

		bridge.mu.Lock()
		started, listening := bridge.started, bridge.listenerRunning
		bridge.mu.Unlock()
		if !started {
			t.Fatal("wanted the engine started")
		}
		if !listening {
			t.Fatal("wanted the native listener running")
		}
		platform.mu.Lock()
		up := platform.tunnelUp
		platform.mu.Unlock()
		if !up {
			t.Fatal("wanted the tunnel interface up")
		}

		cancel()
		if err := waitRun(t, done); err != nil {
			t.Fatalf("wanted: nil\ngot: %v", err)
		}
	})

	t.Run("engine failure should return ErrQuickStart with the engine message", func(t *testing.T) {
		bridge := &fakeBridge{startMsg: "config rejected"}
		platform := &fakePlatform{}
		worker, err := New(bridge,
			WithPlatform(platform),
			WithLogger(slog.New(slog.DiscardHandler)),
		)
		if err != nil {
			t.Fatalf("creating worker: %v", err)
		}

		err = worker.Run(context.Background(), Flags{QuickStart: true})
		if !errors.Is(err, ErrQuickStart) {
			t.Fatalf("wanted: %v\ngot: %v", ErrQuickStart, err)
		}
		if got := err.Error(); got != "quick-start engine failure: config rejected" {
			t.Fatalf("wanted the engine message carried\ngot: %q", got)
		}

		platform.mu.Lock()
		stops := platform.tunnelStops
		platform.mu.Unlock()
		if stops != 1 {
			t.Fatalf("wanted: 1 tunnel stop\ngot: %d", stops)
		}
		bridge.mu.Lock()
		defer bridge.mu.Unlock()
		if bridge.listenerStops != 1 {
			t.Fatalf("wanted: 1 listener stop\ngot: %d", bridge.listenerStops)
		}
	})
}
