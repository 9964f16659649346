// Package metrics bundles the Prometheus instruments for feed activity.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector groups the lot map metrics
type Collector struct {
	gatherer prometheus.Gatherer

	Snapshots           *prometheus.CounterVec
	RecordsDropped      *prometheus.CounterVec
	FeedErrors          *prometheus.CounterVec
	Presses             *prometheus.CounterVec
	ActiveSubscriptions prometheus.Gauge
	SpotsRendered       *prometheus.GaugeVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Re-registering against the same registry reuses the
// existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	snapshots, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lotmap_feed_snapshots_total",
		Help: "Snapshots applied to a lot's render-ready list.",
	}, []string{"lot"}), "lotmap_feed_snapshots_total")
	if err != nil {
		return nil, err
	}

	dropped, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lotmap_feed_records_dropped_total",
		Help: "Records rejected by validation, labeled by lot and reason code.",
	}, []string{"lot", "code"}), "lotmap_feed_records_dropped_total")
	if err != nil {
		return nil, err
	}

	feedErrors, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lotmap_feed_errors_total",
		Help: "Subscription failures reported by the feed watcher.",
	}, []string{"lot"}), "lotmap_feed_errors_total")
	if err != nil {
		return nil, err
	}

	presses, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lotmap_spot_presses_total",
		Help: "Spot presses, labeled by whether they were accepted.",
	}, []string{"lot", "accepted"}), "lotmap_spot_presses_total")
	if err != nil {
		return nil, err
	}

	active, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lotmap_feed_active_subscriptions",
		Help: "Live feed subscriptions held by mounted map views.",
	}), "lotmap_feed_active_subscriptions")
	if err != nil {
		return nil, err
	}

	rendered, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lotmap_spots_ready",
		Help: "Spots in the current render-ready list of each lot.",
	}, []string{"lot"}), "lotmap_spots_ready")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:            gatherer,
		Snapshots:           snapshots,
		RecordsDropped:      dropped,
		FeedErrors:          feedErrors,
		Presses:             presses,
		ActiveSubscriptions: active,
		SpotsRendered:       rendered,
	}, nil
}

// Handler exposes the collector's registry over HTTP
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
