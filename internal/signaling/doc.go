// Package signaling implements the relay's core: the session registry, the
// role-based message router, the session lifecycle (create/join/leave/end/
// expiry), and the WebSocket transport glue.
//
// All session state is mutated by a single event-processing goroutine; the
// relay never carries media, only the offer/answer/candidate handshake.
package signaling
