// Package persist provides the PostgreSQL-backed queue journal.
//
// The journal stores undelivered messages across process restarts: the
// manager snapshots its pending queue on shutdown and restores it on
// the next start.
package persist
