package handlers

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/koios/lotmap/internal/feed"
	"github.com/koios/lotmap/internal/lotmap"
	"github.com/koios/lotmap/internal/metrics"
	"github.com/koios/lotmap/internal/style"
	"github.com/koios/lotmap/internal/viewport"
	"go.uber.org/zap"
)

// Sessions keeps one mounted map view per lot. It plays the parent screen:
// an accepted press becomes that view's current selection.
type Sessions struct {
	watcher feed.Watcher
	mapper  *style.Mapper
	opts    viewport.Options
	logger  *zap.Logger
	metrics *metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	views map[string]*lotmap.Map
}

// NewSessions creates an empty session registry. collector may be nil.
func NewSessions(watcher feed.Watcher, mapper *style.Mapper, opts viewport.Options, logger *zap.Logger, collector *metrics.Collector) *Sessions {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sessions{
		watcher: watcher,
		mapper:  mapper,
		opts:    opts,
		logger:  logger,
		metrics: collector,
		ctx:     ctx,
		cancel:  cancel,
		views:   make(map[string]*lotmap.Map),
	}
}

// Get returns the view for lotID, mounting it on first use. A view left in
// the feed error state is re-mounted.
func (s *Sessions) Get(lotID string) (*lotmap.Map, error) {
	lotID = strings.TrimSpace(lotID)
	if lotID == "" {
		return nil, &lotmap.ConfigurationError{Err: lotmap.ErrMissingLotID}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if view, ok := s.views[lotID]; ok {
		// A request re-enters the view; a failed feed gets one fresh subscription.
		st := view.Reconciler().Status()
		var feedErr *lotmap.FeedError
		if st.State == lotmap.StateError && errors.As(st.Err, &feedErr) {
			s.logger.Info("Re-subscribing after feed error",
				zap.String("lot_id", lotID),
				zap.Error(feedErr.Err))
			if err := view.Reconciler().Mount(s.ctx, lotID); err != nil {
				return nil, err
			}
		}
		return view, nil
	}

	reconciler := lotmap.NewReconciler(s.watcher, s.logger, s.metrics)

	var view *lotmap.Map
	view = lotmap.NewMap(reconciler, s.mapper, s.opts, func(spotID, label string) {
		s.logger.Info("Spot selected",
			zap.String("lot_id", lotID),
			zap.String("spot_id", spotID),
			zap.String("label", label))
		view.SetSelected(spotID)
	}, s.logger, s.metrics)

	if err := reconciler.Mount(s.ctx, lotID); err != nil {
		return nil, err
	}

	s.views[lotID] = view
	s.logger.Info("Mounted map view", zap.String("lot_id", lotID))
	return view, nil
}

// Lookup returns the already mounted view for lotID without mounting one
func (s *Sessions) Lookup(lotID string) (*lotmap.Map, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	view, ok := s.views[strings.TrimSpace(lotID)]
	return view, ok
}

// Release tears down the view for lotID. It reports whether one was mounted.
func (s *Sessions) Release(lotID string) bool {
	s.mu.Lock()
	view, ok := s.views[lotID]
	delete(s.views, lotID)
	s.mu.Unlock()

	if !ok {
		return false
	}
	view.Reconciler().Close()
	s.logger.Info("Released map view", zap.String("lot_id", lotID))
	return true
}

// Lots returns the ids of every mounted view, sorted
func (s *Sessions) Lots() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	lots := make([]string, 0, len(s.views))
	for id := range s.views {
		lots = append(lots, id)
	}
	sort.Strings(lots)
	return lots
}

// Close tears down every view
func (s *Sessions) Close() {
	s.mu.Lock()
	views := s.views
	s.views = make(map[string]*lotmap.Map)
	s.mu.Unlock()

	for _, view := range views {
		view.Reconciler().Close()
	}
	s.cancel()
	s.logger.Info("All map views released", zap.Int("count", len(views)))
}
