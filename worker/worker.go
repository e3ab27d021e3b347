package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tfkr-ae/caravel/domain"
	"github.com/tfkr-ae/caravel/ipc"
)

// ErrQuickStart is returned by Run when the quick-start engine call fails.
// The process entrypoint is expected to exit on it; per-request IPC faults
// never surface this way.
var ErrQuickStart = errors.New("quick-start engine failure")

// Flags is the worker process flag set. In quick-start mode the init and
// runtime parameters are the snapshot of the last-known profile/state the
// process was booted with.
type Flags struct {
	QuickStart bool
	Init       domain.EngineInitParams
	Runtime    domain.EngineRuntimeParams
	CoreState  []byte
}

// Worker is the background execution context. It owns the engine bridge, the
// IPC mailboxes and the native event sink for the lifetime of the process.
type Worker struct {
	bridge   domain.EngineBridge
	platform domain.Platform
	registry *ipc.Registry
	logger   *slog.Logger

	background bool         // True once Run has taken ownership of the process
	inbox      *ipc.Mailbox // Worker receive mailbox, created during the handshake
	outbox     *ipc.Mailbox // Foreground mailbox, looked up during the handshake
	cancel     context.CancelFunc
}

// New creates a worker bound to the given engine bridge and applies any
// provided options. Without options the worker runs against a no-op platform
// and with no IPC registry, which is the fully degraded headless mode.
func New(bridge domain.EngineBridge, options ...func(*Worker) error) (*Worker, error) {
	if bridge == nil {
		return nil, errors.New("worker needs an engine bridge")
	}
	worker := &Worker{
		bridge:   bridge,
		platform: domain.NopPlatform{},
		logger:   slog.Default(),
	}
	for _, option := range options {
		if err := option(worker); err != nil {
			return nil, fmt.Errorf("applying option on worker : %w", err)
		}
	}
	return worker, nil
}

// WithPlatform binds the host platform surface the worker registers its
// stop, DNS and notification handlers against.
func WithPlatform(platform domain.Platform) func(*Worker) error {
	return func(worker *Worker) error {
		if platform == nil {
			return errors.New("platform is nil")
		}
		worker.platform = platform
		return nil
	}
}

// WithRegistry binds the mailbox registry shared with the foreground
// process. Without it the worker runs with no foreground control.
func WithRegistry(registry *ipc.Registry) func(*Worker) error {
	return func(worker *Worker) error {
		worker.registry = registry
		return nil
	}
}

// WithLogger sets the worker's logger.
func WithLogger(logger *slog.Logger) func(*Worker) error {
	return func(worker *Worker) error {
		worker.logger = logger
		return nil
	}
}

// Run executes the worker until the context is cancelled or the stop handler
// fires. Quick-start failures are returned wrapped in ErrQuickStart; every
// other fault is per-request and handled inside the loop.
func (worker *Worker) Run(ctx context.Context, flags Flags) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	worker.cancel = cancel
	worker.background = true

	worker.platform.RegisterStopHandler(worker.stop)
	worker.platform.RegisterDNSHandler(func(dns string) {
		if err := worker.bridge.UpdateDNS(dns); err != nil {
			worker.logger.Warn("updating dns", "dns", dns, "error", err)
		}
	})
	worker.platform.SetNotificationProvider(worker.notification)

	if flags.QuickStart {
		if err := worker.quickStart(flags); err != nil {
			return err
		}
	}

	if err := worker.openIPC(); err != nil {
		// A failed handshake degrades to no foreground control, same as a
		// missing foreground mailbox.
		worker.logger.Warn("opening ipc", "error", err)
	}

	if worker.inbox != nil {
		go worker.receiveLoop(runCtx)
	}

	<-runCtx.Done()

	worker.bridge.DetachNativeEventSink()
	if worker.inbox != nil {
		worker.inbox.Close()
	}
	return nil
}

// quickStart builds the tunnel synchronously from the last-known state. Any
// non-empty engine error string is fatal: the tunnel is stopped and the
// process terminates with the engine's reported result.
func (worker *Worker) quickStart(flags Flags) error {
	if msg := worker.bridge.InitAndStart(flags.Init, flags.Runtime, flags.CoreState); msg != "" {
		worker.logger.Error("quick-start failed", "engine", msg)
		if err := worker.bridge.StopNativeListener(); err != nil {
			worker.logger.Debug("stopping native listener after failed quick-start", "error", err)
		}
		if err := worker.platform.StopTunnelInterface(); err != nil {
			worker.logger.Debug("stopping tunnel interface after failed quick-start", "error", err)
		}
		return fmt.Errorf("%w: %s", ErrQuickStart, msg)
	}

	opts, err := worker.bridge.PlatformVPNOptions()
	if err != nil {
		return fmt.Errorf("%w: reading vpn options: %v", ErrQuickStart, err)
	}
	if err := worker.platform.StartTunnelInterface(opts); err != nil {
		return fmt.Errorf("%w: starting tunnel interface: %v", ErrQuickStart, err)
	}
	if err := worker.bridge.StartNativeListener(); err != nil {
		return fmt.Errorf("%w: starting native listener: %v", ErrQuickStart, err)
	}
	worker.logger.Info("quick-start complete", "profile", flags.Runtime.ProfileName)
	return nil
}

// openIPC performs the startup handshake: look up the foreground's
// well-known mailbox, create the worker's receive mailbox, announce it with
// a hello envelope and attach the native event sink. A missing foreground
// mailbox skips IPC entirely; the worker then runs with no foreground
// control, which is a valid degraded mode, not an error.
func (worker *Worker) openIPC() error {
	if worker.registry == nil {
		worker.logger.Info("no mailbox registry, running without foreground control")
		return nil
	}
	foreground, ok := worker.registry.Lookup(ipc.ForegroundName)
	if !ok {
		worker.logger.Info("foreground mailbox not registered, running without foreground control")
		return nil
	}

	inbox := ipc.NewMailbox()
	hello, err := ipc.NewHello(inbox)
	if err != nil {
		return fmt.Errorf("building hello envelope : %w", err)
	}
	if err := foreground.Send(hello); err != nil {
		return fmt.Errorf("announcing worker mailbox : %w", err)
	}
	worker.outbox = foreground
	worker.inbox = inbox

	// Unsolicited native events interleave with responses on the same
	// outbound mailbox, distinguished by their envelope kind.
	if err := worker.bridge.AttachNativeEventSink(func(event json.RawMessage) {
		envelope, err := ipc.NewEvent(event)
		if err != nil {
			worker.logger.Warn("wrapping native event", "error", err)
			return
		}
		if err := worker.outbox.Send(envelope); err != nil {
			worker.logger.Warn("forwarding native event", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("attaching native event sink : %w", err)
	}
	return nil
}

// receiveLoop serves inbound envelopes one at a time: the close sentinel
// closes the mailbox and ends the loop, everything else is dispatched as an
// action request. Each request that arrives is answered exactly once; the
// loop never terminates on a dispatch fault.
func (worker *Worker) receiveLoop(ctx context.Context) {
	for {
		envelope, err := worker.inbox.Receive(ctx)
		if err != nil {
			return
		}
		if envelope.IsClose() {
			worker.inbox.Close()
			worker.logger.Info("close sentinel received, ipc loop ended")
			return
		}
		worker.dispatch(ctx, envelope)
	}
}

// dispatch executes one action request against the engine and sends exactly
// one response back, converting any fault, panics included, into an error
// response payload.
func (worker *Worker) dispatch(ctx context.Context, request *ipc.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			worker.logger.Error("dispatch panic", "action", request.Action, "panic", r)
			worker.reply(ipc.Fault(request, fmt.Errorf("dispatching %s: %v", request.Action, r)))
		}
	}()

	payload, err := worker.bridge.InvokeAction(ctx, request.Action, request.Payload)
	if err != nil {
		worker.logger.Error("dispatch failed", "action", request.Action, "error", err)
		worker.reply(ipc.Fault(request, err))
		return
	}
	worker.reply(ipc.Respond(request, payload))
}

func (worker *Worker) reply(envelope *ipc.Envelope) {
	if err := worker.outbox.Send(envelope); err != nil {
		worker.logger.Warn("sending response", "id", envelope.ID, "error", err)
	}
}

// stop is the quick-tile stop handler: notify the foreground best-effort,
// stop the engine's native listener, tear down the tunnel interface and
// terminate the process by cancelling the run context.
func (worker *Worker) stop() {
	if worker.outbox != nil {
		if event, err := ipc.NewEvent(json.RawMessage(`{"type":"stopped"}`)); err == nil {
			if err := worker.outbox.Send(event); err != nil {
				worker.logger.Debug("notifying foreground of stop", "error", err)
			}
		}
	}
	if err := worker.bridge.StopNativeListener(); err != nil {
		worker.logger.Warn("stopping native listener", "error", err)
	}
	if err := worker.platform.StopTunnelInterface(); err != nil {
		worker.logger.Warn("stopping tunnel interface", "error", err)
	}
	if worker.cancel != nil {
		worker.cancel()
	}
}

// notification computes the foreground notification content live from the
// engine, never from a cached snapshot.
func (worker *Worker) notification() domain.Notification {
	title, err := worker.bridge.CurrentProfileName()
	if err != nil {
		worker.logger.Debug("reading profile name", "error", err)
		title = "caravel"
	}
	var content string
	if traffic, err := worker.bridge.Traffic(); err == nil {
		content = traffic.String()
	} else {
		worker.logger.Debug("reading traffic", "error", err)
	}
	return domain.Notification{Title: title, Content: content}
}
