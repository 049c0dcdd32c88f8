// Package queue implements the pending-message store used while the
// transport is unavailable.
//
// The queue is capacity-bounded, optionally deduplicated by message id,
// and kept in priority order: control messages first, then messages
// requiring an ack, then lower retry counts, with creation time as the
// final tiebreak. The sort is stable, so insertion order is preserved
// within a class.
package queue
