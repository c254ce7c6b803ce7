// Package conn owns the single duplex connection to the job service.
//
// Ownership boundary:
// - connection lifecycle: idle -> connecting -> open -> closed
// - reconnect scheduling with session backoff
// - frame encode/decode at the socket edge
//
// All lifecycle state is owned by the Run loop goroutine. Open and Send
// only enqueue requests and never block the caller. Transport failures
// are never returned; they surface as EventClosed followed by a retry.
package conn
