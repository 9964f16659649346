package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/koios/lotmap/pkg/models"
)

// MemoryWatcher is an in-process Watcher. Publishing replaces a lot's
// snapshot and delivers it synchronously to every live subscriber of that lot.
type MemoryWatcher struct {
	mu     sync.Mutex
	lots   map[string][]Record
	subs   map[string]map[uint64]*memorySub
	nextID uint64
	total  map[string]int
}

type memorySub struct {
	mu         sync.Mutex
	closed     bool
	onSnapshot SnapshotFunc
	onError    ErrorFunc
}

// NewMemoryWatcher creates an empty in-memory watcher
func NewMemoryWatcher() *MemoryWatcher {
	return &MemoryWatcher{
		lots:  make(map[string][]Record),
		subs:  make(map[string]map[uint64]*memorySub),
		total: make(map[string]int),
	}
}

// Subscribe registers callbacks for lotID. If the lot already has a snapshot
// it is delivered before Subscribe returns. Cancelling ctx unsubscribes.
func (w *MemoryWatcher) Subscribe(ctx context.Context, lotID string, onSnapshot SnapshotFunc, onError ErrorFunc) Unsubscribe {
	sub := &memorySub{onSnapshot: onSnapshot, onError: onError}

	w.mu.Lock()
	w.nextID++
	id := w.nextID
	if w.subs[lotID] == nil {
		w.subs[lotID] = make(map[uint64]*memorySub)
	}
	w.subs[lotID][id] = sub
	w.total[lotID]++
	current, hasSnapshot := w.lots[lotID]
	current = cloneRecords(current)
	// Held across the initial delivery so a concurrent Publish cannot overtake it.
	sub.mu.Lock()
	w.mu.Unlock()
	if hasSnapshot {
		sub.onSnapshot(current)
	}
	sub.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subs[lotID], id)
			if len(w.subs[lotID]) == 0 {
				delete(w.subs, lotID)
			}
			w.mu.Unlock()

			// Waits for an in-flight delivery to finish.
			sub.mu.Lock()
			sub.closed = true
			sub.mu.Unlock()
		})
	}

	stop := context.AfterFunc(ctx, unsubscribe)
	return func() {
		stop()
		unsubscribe()
	}
}

// Publish replaces the snapshot for lotID and notifies its subscribers
func (w *MemoryWatcher) Publish(lotID string, records []Record) {
	w.mu.Lock()
	w.lots[lotID] = cloneRecords(records)
	subs := w.subscribers(lotID)
	w.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(cloneRecords(records))
	}
}

// PublishSpots publishes well-formed spots as raw documents
func (w *MemoryWatcher) PublishSpots(lotID string, spots []models.Spot) {
	w.Publish(lotID, RecordsFromSpots(spots))
}

// UpdateStatus changes the status field of one record in the current
// snapshot and republishes the lot
func (w *MemoryWatcher) UpdateStatus(lotID, spotID string, status models.SpotStatus) error {
	w.mu.Lock()
	records := cloneRecords(w.lots[lotID])
	w.mu.Unlock()

	found := false
	for i := range records {
		if records[i].ID == spotID {
			records[i].Data["status"] = string(status)
			found = true
		}
	}
	if !found {
		return fmt.Errorf("spot %s not found in lot %s", spotID, lotID)
	}

	w.Publish(lotID, records)
	return nil
}

// Fail ends every live subscription of lotID with err
func (w *MemoryWatcher) Fail(lotID string, err error) {
	w.mu.Lock()
	subs := w.subscribers(lotID)
	delete(w.subs, lotID)
	w.mu.Unlock()

	for _, sub := range subs {
		sub.fail(err)
	}
}

// Active returns the number of live subscriptions for lotID
func (w *MemoryWatcher) Active(lotID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subs[lotID])
}

// Subscriptions returns how many times lotID has been subscribed to
func (w *MemoryWatcher) Subscriptions(lotID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total[lotID]
}

func (w *MemoryWatcher) subscribers(lotID string) []*memorySub {
	subs := make([]*memorySub, 0, len(w.subs[lotID]))
	for _, sub := range w.subs[lotID] {
		subs = append(subs, sub)
	}
	return subs
}

func (s *memorySub) deliver(records []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.onSnapshot(records)
}

func (s *memorySub) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.onError != nil {
		s.onError(err)
	}
}

// RecordsFromSpots converts spots into raw records
func RecordsFromSpots(spots []models.Spot) []Record {
	records := make([]Record, 0, len(spots))
	for _, s := range spots {
		records = append(records, Record{ID: s.ID, Data: s.Document()})
	}
	return records
}

func cloneRecords(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	for i, r := range records {
		data := make(map[string]interface{}, len(r.Data))
		for k, v := range r.Data {
			data[k] = v
		}
		out[i] = Record{ID: r.ID, Data: data}
	}
	return out
}
