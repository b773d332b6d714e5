package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RoundsStarted.Inc()
	m.RoundsFinished.Inc()
	m.Participation.Set(0.75)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["shardconsensus_rounds_started_total"])
	assert.True(t, names["shardconsensus_rounds_finished_total"])
	assert.True(t, names["shardconsensus_last_round_participation_ratio"])
}

func TestNewFailsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err, "registering the same collector names twice must fail")
}

func TestParticipationGaugeValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.Participation.Set(0.9)

	var metric dto.Metric
	require.NoError(t, m.Participation.Write(&metric))
	assert.Equal(t, 0.9, metric.GetGauge().GetValue())
}
