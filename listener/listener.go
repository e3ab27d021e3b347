package listener

import (
	"errors"
	"log"
	"net"
	"sync/atomic"

	"github.com/tfkr-ae/caravel/domain"
)

// countingConn wraps a net.Conn and adds each read and write to the shared
// byte counters.
type countingConn struct {
	net.Conn
	uplink   *atomic.Uint64
	downlink *atomic.Uint64
}

// Read counts bytes arriving from the client as uplink traffic.
func (c *countingConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	c.uplink.Add(uint64(n))
	return n, err
}

// Write counts bytes returned to the client as downlink traffic.
func (c *countingConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	c.downlink.Add(uint64(n))
	return n, err
}

// CountingListener wraps net.Listener and counts the bytes moved over every
// accepted connection. The counters back the engine's traffic snapshot.
type CountingListener struct {
	net.Listener
	uplink   atomic.Uint64
	downlink atomic.Uint64
}

func NewCountingListener(listener net.Listener) *CountingListener {
	return &CountingListener{Listener: listener}
}

func (l *CountingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &countingConn{
		Conn:     conn,
		uplink:   &l.uplink,
		downlink: &l.downlink,
	}, nil
}

// Traffic returns the bytes counted since the listener was created.
func (l *CountingListener) Traffic() domain.Traffic {
	return domain.Traffic{
		Uplink:   l.uplink.Load(),
		Downlink: l.downlink.Load(),
	}
}

// ResilientListener wraps net.Listener to be resilient, recoverable errors are handled gracefully.
// Use case is for it to wrap CountingListener for engine usage.
type ResilientListener struct {
	net.Listener
}

func NewResilientListener(listenerToWrap net.Listener) *ResilientListener {
	return &ResilientListener{Listener: listenerToWrap}
}

// Accept will gracefully handle recoverable errors and continue without crashing the engine
func (l *ResilientListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			// If the listener was closed, this is a fatal error. Propagate it.
			if errors.Is(err, net.ErrClosed) {
				return nil, err
			}

			// For any other error, log it and continue to the next connection attempt.
			log.Printf("Recoverable listener error, connection rejected: %v", err)
			continue
		}
		return conn, nil
	}
}
