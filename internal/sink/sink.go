// Package sink holds the durable outputs for accepted plate records: an
// append-only CSV row log, an append-only JSONL structured log and an
// optional MQTT publisher. Append is the only operation; there is no update
// or delete.
package sink

import "github.com/krishnanrx/parkwise/internal/plate"

// Sink receives accepted records in emission order. Implementations are
// called from the single sink-dispatch worker and need no locking.
type Sink interface {
	Name() string
	Append(rec plate.Record) error
	Close() error
}
