// Package prom exports cacheaside hook events as Prometheus counters.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/cacheaside"
)

// Hooks counts events. Register it once per process; per-key labels are
// never emitted so cardinality stays bounded.
type Hooks struct {
	lookups        *prometheus.CounterVec
	nullMarkers    prometheus.Counter
	decodeFailures prometheus.Counter
	storeErrors    *prometheus.CounterVec
	rebuilds       *prometheus.CounterVec
	rebuildSkips   *prometheus.CounterVec
	lockWaits      prometheus.Counter
}

var _ cacheaside.Hooks = (*Hooks)(nil)

// New builds the collectors under namespace and registers them with reg
// (nil => prometheus.DefaultRegisterer).
func New(namespace string, reg prometheus.Registerer) (*Hooks, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	h := &Hooks{
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lookups_total",
				Help:      "Cache lookups by strategy and result",
			},
			[]string{"strategy", "result"},
		),
		nullMarkers: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "null_markers_stored_total",
				Help:      "Confirmed absences cached as null markers",
			},
		),
		decodeFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decode_failures_total",
				Help:      "Stored values that failed to decode",
			},
		),
		storeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_errors_total",
				Help:      "Failed store calls by operation",
			},
			[]string{"op"},
		),
		rebuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rebuilds_total",
				Help:      "Background rebuilds by outcome",
			},
			[]string{"outcome"},
		),
		rebuildSkips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rebuild_skipped_total",
				Help:      "Rebuilds not run, by reason",
			},
			[]string{"reason"},
		),
		lockWaits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lock_waits_total",
				Help:      "Retries spent waiting on a held lock",
			},
		),
	}

	for _, c := range []prometheus.Collector{
		h.lookups, h.nullMarkers, h.decodeFailures, h.storeErrors,
		h.rebuilds, h.rebuildSkips, h.lockWaits,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) Lookup(strategy, result string) {
	h.lookups.WithLabelValues(strategy, result).Inc()
}

func (h *Hooks) NullMarkerStored(string)     { h.nullMarkers.Inc() }
func (h *Hooks) DecodeFailure(string, error) { h.decodeFailures.Inc() }

func (h *Hooks) StoreError(op, _ string, _ error) {
	h.storeErrors.WithLabelValues(op).Inc()
}

func (h *Hooks) RebuildScheduled(string) {
	h.rebuilds.WithLabelValues("scheduled").Inc()
}

func (h *Hooks) RebuildSkipped(_ string, reason string) {
	h.rebuildSkips.WithLabelValues(reason).Inc()
}

func (h *Hooks) RebuildFailed(string, error) {
	h.rebuilds.WithLabelValues("failed").Inc()
}

func (h *Hooks) LockWait(string, int) { h.lockWaits.Inc() }
