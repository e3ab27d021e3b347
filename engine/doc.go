// Package engine provides the reference implementation of the domain
// EngineBridge contract: a local HTTP proxy backed by martian with a counting
// listener supplying real traffic numbers. Production platform shells bind
// the native tunnel engine instead; this bridge exists so the worker, the
// accessor and the tests run against a real engine without native code.
package engine
