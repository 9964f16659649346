// Package lotmap keeps a lot's render-ready spot list in sync with the live
// feed and turns it into drawable frames.
package lotmap

import (
	"context"
	"strings"
	"sync"

	"github.com/koios/lotmap/internal/feed"
	"github.com/koios/lotmap/internal/metrics"
	"github.com/koios/lotmap/pkg/models"
	"go.uber.org/zap"
)

// State is the reconciler's lifecycle state
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// Status is a consistent copy of the reconciler's state
type Status struct {
	LotID   string
	State   State
	Spots   []models.Spot
	Err     error
	Version uint64
}

// Reconciler owns one feed subscription at a time and replaces the
// render-ready list wholesale on every snapshot.
type Reconciler struct {
	watcher feed.Watcher
	logger  *zap.Logger
	metrics *metrics.Collector

	mu          sync.Mutex
	lotID       string
	state       State
	spots       []models.Spot
	err         error
	version     uint64
	changed     chan struct{}
	gen         uint64 // identifies the live subscription; callbacks carrying another value are ignored
	unsubscribe feed.Unsubscribe
}

// NewReconciler creates an unmounted reconciler in the loading state.
// collector may be nil.
func NewReconciler(watcher feed.Watcher, logger *zap.Logger, collector *metrics.Collector) *Reconciler {
	return &Reconciler{
		watcher: watcher,
		logger:  logger,
		metrics: collector,
		state:   StateLoading,
		changed: make(chan struct{}),
	}
}

// Mount subscribes to lotID, releasing any previous subscription first. ctx
// bounds the subscription's lifetime. An empty lot id moves straight to the
// error state without subscribing and returns the ConfigurationError.
func (r *Reconciler) Mount(ctx context.Context, lotID string) error {
	lotID = strings.TrimSpace(lotID)

	r.mu.Lock()
	previous := r.unsubscribe
	r.unsubscribe = nil
	r.gen++
	gen := r.gen
	r.lotID = lotID
	r.spots = nil
	if lotID == "" {
		cfgErr := &ConfigurationError{Err: ErrMissingLotID}
		r.state = StateError
		r.err = cfgErr
		r.bumpLocked()
		r.mu.Unlock()
		r.release(previous)
		r.logger.Error("No lot ID provided to map view")
		return cfgErr
	}
	r.state = StateLoading
	r.err = nil
	r.bumpLocked()
	r.mu.Unlock()

	r.release(previous)

	r.logger.Info("Setting up spot listener", zap.String("lot_id", lotID))

	unsubscribe := r.watcher.Subscribe(ctx, lotID,
		func(records []feed.Record) { r.applySnapshot(gen, lotID, records) },
		func(err error) { r.applyError(gen, lotID, err) },
	)

	r.mu.Lock()
	if r.gen != gen {
		// Remounted or closed while subscribing.
		r.mu.Unlock()
		unsubscribe()
		return nil
	}
	if r.state == StateError {
		// The feed failed before Subscribe returned; nothing is live.
		r.mu.Unlock()
		unsubscribe()
		return nil
	}
	r.unsubscribe = unsubscribe
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ActiveSubscriptions.Inc()
	}
	return nil
}

// Close releases the live subscription. It is safe to call more than once;
// snapshots arriving afterwards are ignored.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.gen++
	previous := r.unsubscribe
	r.unsubscribe = nil
	lotID := r.lotID
	r.mu.Unlock()

	if previous != nil {
		r.logger.Info("Unsubscribing spot listener", zap.String("lot_id", lotID))
	}
	r.release(previous)
}

// Status returns a copy of the current state
func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

// Wait blocks until the state version exceeds after or ctx is done, then
// returns the current state
func (r *Reconciler) Wait(ctx context.Context, after uint64) (Status, error) {
	for {
		r.mu.Lock()
		if r.version > after {
			st := r.statusLocked()
			r.mu.Unlock()
			return st, nil
		}
		changed := r.changed
		r.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return r.Status(), ctx.Err()
		}
	}
}

func (r *Reconciler) applySnapshot(gen uint64, lotID string, records []feed.Record) {
	if !r.current(gen) {
		return
	}

	spots := make([]models.Spot, 0, len(records))
	for _, rec := range records {
		res := feed.Validate(rec)
		if !res.Valid() {
			r.logger.Warn("Spot has missing/invalid data",
				zap.String("lot_id", lotID),
				zap.String("spot_id", rec.ID),
				zap.String("field", res.Invalid.Field),
				zap.String("code", res.Invalid.Code))
			if r.metrics != nil {
				r.metrics.RecordsDropped.WithLabelValues(lotID, res.Invalid.Code).Inc()
			}
			continue
		}
		spots = append(spots, res.Spot)
	}

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return
	}
	r.spots = spots
	r.state = StateReady
	r.err = nil
	r.bumpLocked()
	r.mu.Unlock()

	r.logger.Debug("Snapshot applied",
		zap.String("lot_id", lotID),
		zap.Int("docs", len(records)),
		zap.Int("spots", len(spots)))

	if r.metrics != nil {
		r.metrics.Snapshots.WithLabelValues(lotID).Inc()
		r.metrics.SpotsRendered.WithLabelValues(lotID).Set(float64(len(spots)))
	}
}

func (r *Reconciler) applyError(gen uint64, lotID string, err error) {
	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return
	}
	r.state = StateError
	r.err = &FeedError{LotID: lotID, Err: err}
	r.bumpLocked()
	dead := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()

	r.logger.Error("Error fetching spots", zap.String("lot_id", lotID), zap.Error(err))
	if r.metrics != nil {
		r.metrics.FeedErrors.WithLabelValues(lotID).Inc()
	}

	// The watcher has ended the subscription. Its handle is still released,
	// off the callback path since a watcher may wait for its listener to exit.
	if dead != nil {
		if r.metrics != nil {
			r.metrics.ActiveSubscriptions.Dec()
		}
		go dead()
	}
}

func (r *Reconciler) current(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen == gen
}

func (r *Reconciler) release(unsubscribe feed.Unsubscribe) {
	if unsubscribe == nil {
		return
	}
	unsubscribe()
	if r.metrics != nil {
		r.metrics.ActiveSubscriptions.Dec()
	}
}

func (r *Reconciler) bumpLocked() {
	r.version++
	close(r.changed)
	r.changed = make(chan struct{})
}

func (r *Reconciler) statusLocked() Status {
	spots := make([]models.Spot, len(r.spots))
	copy(spots, r.spots)
	return Status{
		LotID:   r.lotID,
		State:   r.state,
		Spots:   spots,
		Err:     r.err,
		Version: r.version,
	}
}
