package session

import "context"

// Transport is the capability set a connection must provide for a
// session to bind to it: send a liveness probe and wait for its
// acknowledgment, and expose closure. Any transport implementing this
// may attach to any session, so a client retrying from a different
// network path can reattach with a completely different connection
// kind.
//
// skeep never constructs transports; they are supplied by the caller
// at attach time.
type Transport interface {
	// Probe sends a liveness probe and blocks until the peer
	// acknowledges it, the context is done, or the transport fails.
	// It doubles as the reattachment handshake.
	Probe(ctx context.Context) error

	// Closed is closed when the transport detects its connection is
	// gone. Implementations that cannot detect closure may return a
	// channel that never closes; missed probes still catch the loss.
	Closed() <-chan struct{}
}
