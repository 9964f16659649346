package redis

import (
	"context"
	"testing"
	"time"

	"github.com/koios/lotmap/internal/config"
	"github.com/koios/lotmap/internal/feed"
	"github.com/koios/lotmap/pkg/models"
	"go.uber.org/zap"
)

func TestKeyNaming(t *testing.T) {
	testCases := []struct {
		prefix      string
		lotID       string
		wantKey     string
		wantChannel string
	}{
		{"lotmap:", "lot-a", "lotmap:lot:lot-a:spots", "lotmap:lot:lot-a:changed"},
		{"", "north_deck", "lot:north_deck:spots", "lot:north_deck:changed"},
		{"test:", "42", "test:lot:42:spots", "test:lot:42:changed"},
	}

	for _, tc := range testCases {
		t.Run(tc.lotID, func(t *testing.T) {
			c := &Client{config: config.RedisConfig{KeyPrefix: tc.prefix}}
			if got := c.SpotsKey(tc.lotID); got != tc.wantKey {
				t.Errorf("SpotsKey = %s, want %s", got, tc.wantKey)
			}
			if got := c.ChangesChannel(tc.lotID); got != tc.wantChannel {
				t.Errorf("ChangesChannel = %s, want %s", got, tc.wantChannel)
			}
		})
	}
}

func TestDecodeSnapshot(t *testing.T) {
	fields := map[string]string{
		"b":     `{"x":1,"y":2,"width":3,"height":4,"status":"occupied"}`,
		"a":     `{"x":0,"y":0,"width":3,"height":4,"status":"available","label":"A"}`,
		"bad":   `not json`,
		"null":  `null`,
		"array": `[1,2]`,
	}

	records, errs := decodeSnapshot(fields)

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != "a" || records[1].ID != "b" {
		t.Errorf("records not sorted by id: %s, %s", records[0].ID, records[1].ID)
	}
	if records[0].Data["label"] != "A" {
		t.Errorf("label = %v, want A", records[0].Data["label"])
	}
	if len(errs) != 3 {
		t.Errorf("expected 3 decode errors, got %d", len(errs))
	}

	// Decoded JSON numbers are float64, which validation accepts.
	if res := feed.Validate(records[1]); !res.Valid() {
		t.Errorf("decoded record rejected: %v", res.Invalid)
	}
}

// newTestClient connects to a local Redis on a scratch database, skipping the
// test when none is reachable.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	cfg := config.RedisConfig{
		Addr:      "localhost:6379",
		DB:        1, // Use a test database
		KeyPrefix: "lotmap-test:",
	}

	c, err := NewClient(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientPutAndSnapshot(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	lotID := "put-snapshot"
	c.ClearLot(ctx, lotID)
	defer c.ClearLot(ctx, lotID)

	spots := []models.Spot{
		{ID: "s2", X: 12, Width: 10, Height: 20, Status: models.StatusOccupied},
		{ID: "s1", Width: 10, Height: 20, Status: models.StatusAvailable, Label: "One"},
	}
	if err := c.PutSpots(ctx, lotID, spots); err != nil {
		t.Fatalf("PutSpots: %v", err)
	}

	records, err := c.Snapshot(ctx, lotID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(records) != 2 || records[0].ID != "s1" {
		t.Fatalf("records = %+v", records)
	}
	if res := feed.Validate(records[0]); !res.Valid() || res.Spot.Label != "One" {
		t.Errorf("Validate = %+v", res)
	}

	if err := c.SetStatus(ctx, lotID, "s1", models.StatusOccupied); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	records, _ = c.Snapshot(ctx, lotID)
	if records[0].Data["status"] != "occupied" {
		t.Errorf("status = %v, want occupied", records[0].Data["status"])
	}

	if err := c.SetStatus(ctx, lotID, "missing", models.StatusOccupied); err == nil {
		t.Error("expected error for unknown spot")
	}

	if err := c.RemoveSpot(ctx, lotID, "s2"); err != nil {
		t.Fatalf("RemoveSpot: %v", err)
	}
	records, _ = c.Snapshot(ctx, lotID)
	if len(records) != 1 {
		t.Errorf("expected 1 record after remove, got %d", len(records))
	}
}

func TestWatcherDeliversSnapshots(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	lotID := "watcher"
	c.ClearLot(ctx, lotID)
	defer c.ClearLot(ctx, lotID)

	if err := c.PutSpots(ctx, lotID, []models.Spot{{ID: "w1", Width: 5, Height: 5, Status: models.StatusAvailable}}); err != nil {
		t.Fatalf("PutSpots: %v", err)
	}

	snapshots := make(chan []feed.Record, 10)
	errs := make(chan error, 1)
	w := NewWatcher(c, zap.NewNop())
	unsubscribe := w.Subscribe(ctx, lotID,
		func(records []feed.Record) { snapshots <- records },
		func(err error) { errs <- err },
	)

	waitSnapshot := func() []feed.Record {
		t.Helper()
		select {
		case records := <-snapshots:
			return records
		case err := <-errs:
			t.Fatalf("watcher error: %v", err)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for snapshot")
		}
		return nil
	}

	if initial := waitSnapshot(); len(initial) != 1 || initial[0].ID != "w1" {
		t.Fatalf("initial snapshot = %+v", initial)
	}

	if err := c.SetStatus(ctx, lotID, "w1", models.StatusOccupied); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if next := waitSnapshot(); next[0].Data["status"] != "occupied" {
		t.Errorf("status = %v, want occupied", next[0].Data["status"])
	}

	unsubscribe()
	unsubscribe()

	c.SetStatus(ctx, lotID, "w1", models.StatusAvailable)
	select {
	case records := <-snapshots:
		t.Errorf("snapshot delivered after unsubscribe: %+v", records)
	case <-time.After(300 * time.Millisecond):
	}
	if len(errs) != 0 {
		t.Errorf("unsubscribe reported an error: %v", <-errs)
	}
}
