// Package transport defines the reliable, ordered, connection-oriented
// transport consumed by the room engine, and hosts its adapters. The
// engine never talks to sockets directly; it sees connect, message, and
// disconnect events for uniquely-identified peers.
package transport

import "context"

// Peer is one live transport link. Messages from a single peer are
// delivered to the Handler in order; there is no ordering guarantee
// across peers.
type Peer interface {
	// ID is an opaque identifier unique for the lifetime of the link.
	// IDs are never reused for later, unrelated sessions.
	ID() string
	// Addr is the remote network address (IP without port).
	Addr() string
	// Send queues data for delivery on the given channel. It does not
	// block on the network and returns an error only if the peer is
	// already closed.
	Send(channel byte, data []byte) error
	// Disconnect closes the link, notifying the client with the given
	// reason byte where the underlying protocol supports it.
	Disconnect(reason byte)
	// Context is cancelled when the link closes. Long-running handler
	// work (token verification) must abandon its result once this fires.
	Context() context.Context
}

// Handler receives transport events. Events for one peer arrive from a
// single goroutine; events for different peers may arrive concurrently.
type Handler interface {
	HandleConnect(p Peer)
	HandleMessage(p Peer, channel byte, data []byte)
	HandleDisconnect(p Peer)
}
