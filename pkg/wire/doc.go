// Package wire defines the message model shared by every component.
//
// A Message is an immutable value: mutation helpers such as WithRetry
// return copies. The payload is a closed union over text, binary,
// structured (JSON) and control bodies so that handling stays exhaustive
// at compile time. Messages round-trip through a canonical JSON envelope
// used for queue persistence and cross-process transfer.
package wire
