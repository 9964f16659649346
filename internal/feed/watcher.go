// Package feed defines the live spot collection contract and the per-record
// validation that turns raw documents into render-ready spots.
package feed

import "context"

// Record is a raw spot document as delivered by a watcher. Data may be
// malformed; nothing about its shape is trusted until Validate accepts it.
type Record struct {
	ID   string
	Data map[string]interface{}
}

// SnapshotFunc receives the full current batch of records for a lot
type SnapshotFunc func(records []Record)

// ErrorFunc receives a subscription failure. After it is called no further
// snapshots are delivered for that subscription.
type ErrorFunc func(err error)

// Unsubscribe releases a subscription. It must be safe to call any number of times.
type Unsubscribe func()

// Watcher is a live collection of spot records, filtered by lot.
//
// Implementations deliver callbacks for one subscription sequentially and
// never after the returned Unsubscribe has completed.
type Watcher interface {
	Subscribe(ctx context.Context, lotID string, onSnapshot SnapshotFunc, onError ErrorFunc) Unsubscribe
}
