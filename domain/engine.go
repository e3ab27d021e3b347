package domain

import (
	"context"
	"encoding/json"
)

// EngineInitParams holds the parameters for the engine's combined
// initialize-and-start operation.
type EngineInitParams struct {
	WorkingDir string // Directory the engine may use for its own state
	ConfigJSON []byte // Tunnel-enabled configuration built from the last-known profile
}

// EngineRuntimeParams holds the per-run parameters passed alongside the init
// parameters.
type EngineRuntimeParams struct {
	ProfileName   string // Name of the active profile
	TunnelEnabled bool   // Whether the tunnel should be brought up immediately
	DNS           string // Initial DNS value
}

// VPNOptions describes the platform tunnel interface parameters provided by
// the engine after a successful start.
type VPNOptions struct {
	InterfaceName string   // Name of the tun interface
	MTU           int      // Interface MTU
	Routes        []string // Routes to install
	DNS           []string // Resolvers to install
}

// NativeEventFunc receives asynchronous native-originated events from the
// engine. Events are raw payloads, not responses to any pending request.
type NativeEventFunc func(event json.RawMessage)

// EngineBridge is the contract for the native proxy engine consumed by the
// worker process. All operations are remote calls into native code and must be
// treated as fallible and blocking-capable.
//
// InitAndStart follows the native convention of returning an error string:
// an empty string reports success, anything else is the engine's own failure
// description.
type EngineBridge interface {
	// InitAndStart initializes the engine and starts the tunnel in one call.
	InitAndStart(init EngineInitParams, runtime EngineRuntimeParams, coreState []byte) string

	// StartNativeListener begins the engine's native event listener.
	StartNativeListener() error

	// StopNativeListener stops the engine's native event listener and tears
	// down the tunnel.
	StopNativeListener() error

	// Traffic returns the engine's current traffic counter.
	Traffic() (Traffic, error)

	// CurrentProfileName returns the name of the profile the engine is running.
	CurrentProfileName() (string, error)

	// UpdateDNS forwards a new DNS value into the running engine.
	UpdateDNS(dns string) error

	// AttachNativeEventSink registers the callback that receives unsolicited
	// native events. Attaching replaces any previously attached sink.
	AttachNativeEventSink(sink NativeEventFunc) error

	// DetachNativeEventSink removes the attached sink, if any.
	DetachNativeEventSink()

	// InvokeAction is the generic request dispatcher used by the IPC receive
	// loop. The payload is caller-defined and opaque to the bridge contract.
	InvokeAction(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error)

	// PlatformVPNOptions returns the options the platform shell needs to start
	// the system VPN interface for the running tunnel.
	PlatformVPNOptions() (VPNOptions, error)
}
