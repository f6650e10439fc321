package kmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	t.Run("Should register independent metric sets per instance", func(t *testing.T) {
		a := New()
		b := New()

		a.Sends.WithLabelValues("hash").Inc()

		assert.Equal(t, float64(1), testutil.ToFloat64(a.Sends.WithLabelValues("hash")))
		assert.Equal(t, float64(0), testutil.ToFloat64(b.Sends.WithLabelValues("hash")))
	})

	t.Run("Should track queue depth as a gauge", func(t *testing.T) {
		m := New()

		m.QueueDepth.Set(4)

		assert.Equal(t, float64(4), testutil.ToFloat64(m.QueueDepth))
	})
}
