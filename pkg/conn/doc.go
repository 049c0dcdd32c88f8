// Package conn implements the connection layer: one transport session,
// its state machine, heartbeat liveness probing and inbound frame
// classification.
//
// A Connection exposes three independent broadcast streams (states,
// messages, events). State changes are delivered to every subscriber in
// transition order with no coalescing. Reconnection is not handled
// here; the manager layer owns that policy.
package conn
