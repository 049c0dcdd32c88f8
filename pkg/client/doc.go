// Package client implements the Manager, the externally observable
// unit that ties connection, reconnection policy and message queue
// together.
//
// The Manager owns exactly one Connection at a time, rebuilt from
// config on every (re)connect. Messages submitted while the transport
// is down are queued and drained in priority order once connectivity
// resumes. Reconnection is a campaign: the attempt ceiling applies
// across the whole sequence of retries, and exhausting it is terminal
// until an explicit new Connect call.
package client
