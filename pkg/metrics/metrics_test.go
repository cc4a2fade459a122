package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DisabledReturnsNil(t *testing.T) {
	m, err := New(Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestNilMetrics_MethodsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTurn("ok", 1.2)
		m.ObserveStageError("C7", "llm_timeout")
		m.ObserveBypass("safety_response")
		m.ObserveLATS(3, true)
		m.ObservePatchEmitted()
		m.ObserveEvaluation(true, 0.8)
		m.ObserveEvaluation(false, 0)
	})
}

func TestObserveTurn_IncrementsCounterByOutcome(t *testing.T) {
	m, err := New(Config{Enabled: true, Namespace: "test"})
	require.NoError(t, err)
	require.NotNil(t, m)

	m.ObserveTurn("ok", 0.5)
	m.ObserveTurn("ok", 0.8)
	m.ObserveTurn("error", 0.1)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.turnsTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.turnsTotal.WithLabelValues("error")))
}

func TestObserveEvaluation_SplitsPassAndFail(t *testing.T) {
	m, err := New(Config{Enabled: true, Namespace: "test2"})
	require.NoError(t, err)
	require.NotNil(t, m)

	m.ObserveEvaluation(true, 0.9)
	m.ObserveEvaluation(false, 0)
	m.ObserveEvaluation(false, 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.evaluatorPassTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.evaluatorFailTotal))
}
