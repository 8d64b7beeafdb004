package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveIngest_IncrementsCounterByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveIngest("g1", "accepted")
	m.ObserveIngest("g1", "accepted")
	m.ObserveIngest("g1", "validation_failed")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ingestTotal.WithLabelValues("g1", "accepted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ingestTotal.WithLabelValues("g1", "validation_failed")))
}

func TestObservePrune_AddsCountSkipsZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObservePrune("g1", 0)
	m.ObservePrune("g1", 3)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.pruneTotal.WithLabelValues("g1")))
}

func TestObserveCheckpoint_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCheckpoint("g1")
	m.ObserveCheckpoint("g1")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.checkpointTotal.WithLabelValues("g1")))
}

func TestSetActiveSubscriptions_SetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetActiveSubscriptions(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(m.subscriptions))
}
