package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/koios/lotmap/internal/feed"
	"go.uber.org/zap"
)

// Watcher implements feed.Watcher on top of the spot store: every change
// message re-reads the lot's hash and delivers it as a full snapshot
type Watcher struct {
	client *Client
	logger *zap.Logger
}

// NewWatcher creates a watcher backed by client
func NewWatcher(client *Client, logger *zap.Logger) *Watcher {
	return &Watcher{client: client, logger: logger}
}

// Subscribe starts a listener goroutine for lotID. The returned function
// stops it and waits until it has exited, so no callback runs afterwards.
func (w *Watcher) Subscribe(ctx context.Context, lotID string, onSnapshot feed.SnapshotFunc, onError feed.ErrorFunc) feed.Unsubscribe {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go w.run(ctx, lotID, onSnapshot, onError, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (w *Watcher) run(ctx context.Context, lotID string, onSnapshot feed.SnapshotFunc, onError feed.ErrorFunc, done chan struct{}) {
	defer close(done)

	channel := w.client.ChangesChannel(lotID)
	pubsub := w.client.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	// ReceiveMessage blocks on the socket; closing the pubsub is what unblocks it.
	stop := context.AfterFunc(ctx, func() { pubsub.Close() })
	defer stop()

	fail := func(err error) {
		if ctx.Err() != nil {
			return
		}
		w.logger.Error("Spot listener failed",
			zap.String("lot_id", lotID),
			zap.String("channel", channel),
			zap.Error(err))
		if onError != nil {
			onError(err)
		}
	}

	// Wait for the subscription to be confirmed before the first read so no
	// change between the read and the subscribe is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		fail(fmt.Errorf("failed to subscribe to %s: %w", channel, err))
		return
	}

	w.logger.Debug("Spot listener subscribed", zap.String("lot_id", lotID), zap.String("channel", channel))

	if !w.deliver(ctx, lotID, onSnapshot, fail) {
		return
	}

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			fail(fmt.Errorf("failed to receive from %s: %w", channel, err))
			return
		}

		w.logger.Debug("Lot change received",
			zap.String("lot_id", lotID),
			zap.String("spot_id", msg.Payload))

		if !w.deliver(ctx, lotID, onSnapshot, fail) {
			return
		}
	}
}

func (w *Watcher) deliver(ctx context.Context, lotID string, onSnapshot feed.SnapshotFunc, fail func(error)) bool {
	records, err := w.client.Snapshot(ctx, lotID)
	if err != nil {
		fail(err)
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	onSnapshot(records)
	return true
}
