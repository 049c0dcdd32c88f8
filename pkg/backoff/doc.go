// Package backoff implements pluggable reconnection delay policies.
//
// A Policy is a pure strategy: it maps a failed-attempt number to a wait
// duration and decides whether another attempt should be made at all.
// Four strategies ship with the package: exponential (with jitter),
// linear, fixed and none. All four are stateless; Reset exists on the
// interface so stateful strategies can participate.
package backoff
