package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/martian"

	"github.com/tfkr-ae/caravel/domain"
	"github.com/tfkr-ae/caravel/listener"
)

var _ domain.EngineBridge = (*Local)(nil)

// trafficEventInterval is how often the native listener pushes a traffic
// event into the attached sink.
const trafficEventInterval = time.Second

// Local is a reference engine: a martian HTTP proxy bound to a loopback
// listener. It implements the full EngineBridge contract including the
// native event stream, which it synthesizes from periodic traffic snapshots.
type Local struct {
	address string
	logger  *slog.Logger

	mu           sync.Mutex
	martianProxy *martian.Proxy
	counting     *listener.CountingListener
	profileName  string
	dns          string
	running      bool
	stopEvents   chan struct{}
	sink         domain.NativeEventFunc
}

// NewLocal creates a reference engine that will listen on address once
// started. An empty address binds an ephemeral loopback port.
func NewLocal(address string, logger *slog.Logger) *Local {
	if address == "" {
		address = "127.0.0.1:0"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{address: address, logger: logger}
}

// Addr returns the bound listener address, valid after a successful start.
func (engine *Local) Addr() string {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	if engine.counting == nil {
		return ""
	}
	return engine.counting.Addr().String()
}

// InitAndStart implements the combined initialize-and-start operation. Per
// the native convention it reports failure as a non-empty error string.
func (engine *Local) InitAndStart(init domain.EngineInitParams, runtime domain.EngineRuntimeParams, coreState []byte) string {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	if engine.running {
		return "engine already started"
	}

	rawListener, err := net.Listen("tcp", engine.address)
	if err != nil {
		return fmt.Sprintf("listening on %s: %v", engine.address, err)
	}

	counting := listener.NewCountingListener(rawListener)
	resilient := listener.NewResilientListener(counting)

	proxy := martian.NewProxy()
	proxy.SetRoundTripper(http.DefaultTransport)

	go func() {
		if err := proxy.Serve(resilient); err != nil {
			engine.logger.Debug("proxy serve ended", "error", err)
		}
	}()

	engine.martianProxy = proxy
	engine.counting = counting
	engine.profileName = runtime.ProfileName
	engine.dns = runtime.DNS
	engine.running = true
	engine.logger.Info("engine started", "address", counting.Addr(), "profile", runtime.ProfileName)
	return ""
}

// StartNativeListener begins the synthesized native event stream: one traffic
// snapshot event per interval pushed into the attached sink.
func (engine *Local) StartNativeListener() error {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	if !engine.running {
		return fmt.Errorf("engine not started")
	}
	if engine.stopEvents != nil {
		return nil
	}

	stop := make(chan struct{})
	engine.stopEvents = stop
	go engine.emitTraffic(stop)
	return nil
}

// StopNativeListener stops the event stream and tears the proxy down.
func (engine *Local) StopNativeListener() error {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	if engine.stopEvents != nil {
		close(engine.stopEvents)
		engine.stopEvents = nil
	}
	if engine.martianProxy != nil {
		engine.martianProxy.Close()
		engine.martianProxy = nil
	}
	engine.counting = nil
	engine.running = false
	engine.logger.Info("engine stopped")
	return nil
}

// Traffic returns the listener's byte counters.
func (engine *Local) Traffic() (domain.Traffic, error) {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	if engine.counting == nil {
		return domain.Traffic{}, fmt.Errorf("engine not started")
	}
	return engine.counting.Traffic(), nil
}

// CurrentProfileName returns the profile the engine was started with.
func (engine *Local) CurrentProfileName() (string, error) {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	if !engine.running {
		return "", fmt.Errorf("engine not started")
	}
	return engine.profileName, nil
}

// UpdateDNS stores the new DNS value and announces it on the event stream.
func (engine *Local) UpdateDNS(dns string) error {
	engine.mu.Lock()
	engine.dns = dns
	sink := engine.sink
	engine.mu.Unlock()

	if sink != nil {
		event, err := json.Marshal(map[string]string{"type": "dns", "dns": dns})
		if err != nil {
			return fmt.Errorf("marshalling dns event : %w", err)
		}
		sink(event)
	}
	return nil
}

// AttachNativeEventSink registers the sink receiving unsolicited events,
// replacing any previous one.
func (engine *Local) AttachNativeEventSink(sink domain.NativeEventFunc) error {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	engine.sink = sink
	return nil
}

// DetachNativeEventSink removes the attached sink.
func (engine *Local) DetachNativeEventSink() {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	engine.sink = nil
}

// InvokeAction is the generic dispatcher behind the IPC receive loop.
func (engine *Local) InvokeAction(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error) {
	switch action {
	case "status":
		engine.mu.Lock()
		running := engine.running
		engine.mu.Unlock()
		return json.Marshal(map[string]bool{"running": running})
	case "traffic":
		traffic, err := engine.Traffic()
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]uint64{"uplink": traffic.Uplink, "downlink": traffic.Downlink})
	case "profile":
		name, err := engine.CurrentProfileName()
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]string{"profile": name})
	case "update-dns":
		var body struct {
			DNS string `json:"dns"`
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, fmt.Errorf("unmarshalling dns payload : %w", err)
		}
		if err := engine.UpdateDNS(body.DNS); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]bool{"ok": true})
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

// PlatformVPNOptions returns the options the platform shell needs to start
// the system tunnel interface for this engine.
func (engine *Local) PlatformVPNOptions() (domain.VPNOptions, error) {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	if !engine.running {
		return domain.VPNOptions{}, fmt.Errorf("engine not started")
	}
	opts := domain.VPNOptions{
		InterfaceName: "tun-caravel",
		MTU:           1500,
		Routes:        []string{"0.0.0.0/0"},
	}
	if engine.dns != "" {
		opts.DNS = []string{engine.dns}
	}
	return opts, nil
}

// emitTraffic pushes one traffic event per interval until stopped. A nil sink
// drops events on the floor; attach order is not a contract.
func (engine *Local) emitTraffic(stop chan struct{}) {
	ticker := time.NewTicker(trafficEventInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			engine.mu.Lock()
			sink := engine.sink
			counting := engine.counting
			engine.mu.Unlock()
			if sink == nil || counting == nil {
				continue
			}
			traffic := counting.Traffic()
			event, err := json.Marshal(map[string]any{
				"type":     "traffic",
				"uplink":   traffic.Uplink,
				"downlink": traffic.Downlink,
			})
			if err != nil {
				continue
			}
			sink(event)
		}
	}
}
