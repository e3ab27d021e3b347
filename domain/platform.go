package domain

// Notification is the foreground notification content displayed while the
// worker runs with an active tunnel. It is produced on demand from live
// engine state, never cached.
type Notification struct {
	Title   string // Current profile name
	Content string // Current traffic snapshot
}

// NotificationFunc produces the current notification content when the
// platform asks for it.
type NotificationFunc func() Notification

// Platform is the contract for the host platform surface the worker process
// registers against: the system VPN interface, the quick-tile stop control,
// DNS change notifications, and the foreground notification.
type Platform interface {
	// StartTunnelInterface brings up the system VPN interface with the
	// engine-provided options.
	StartTunnelInterface(opts VPNOptions) error

	// StopTunnelInterface tears the system VPN interface down.
	StopTunnelInterface() error

	// RegisterStopHandler installs the handler invoked when the user stops
	// the tunnel from the quick-tile/UI control surface.
	RegisterStopHandler(fn func())

	// RegisterDNSHandler installs the handler invoked when the platform
	// reports a DNS change.
	RegisterDNSHandler(fn func(dns string))

	// SetNotificationProvider installs the provider the platform calls to
	// render the current notification text.
	SetNotificationProvider(fn NotificationFunc)
}

// NopPlatform is the null-object Platform used when the worker runs without a
// host platform surface, such as in tests.
type NopPlatform struct{}

func (NopPlatform) StartTunnelInterface(opts VPNOptions) error { return nil }
func (NopPlatform) StopTunnelInterface() error                 { return nil }
func (NopPlatform) RegisterStopHandler(fn func())              {}
func (NopPlatform) RegisterDNSHandler(fn func(dns string))     {}
func (NopPlatform) SetNotificationProvider(fn NotificationFunc) {
}
