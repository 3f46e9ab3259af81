package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCollector(t *testing.T) {
	m := NewMetricsCollector(prometheus.NewRegistry())

	t.Run("Repair outcomes", func(t *testing.T) {
		m.RecordRepair("ALI", "SUCCESS", "success", 10*time.Millisecond)
		m.RecordRepair("ALI", "SUCCESS", "success", 10*time.Millisecond)
		m.RecordRepair("ALI", "CLOSE_LOCAL", "skipped", time.Millisecond)

		assert.Equal(t, 2.0, testutil.ToFloat64(m.repairTotal.WithLabelValues("ALI", "SUCCESS", "success")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.repairTotal.WithLabelValues("ALI", "CLOSE_LOCAL", "skipped")))
	})

	t.Run("Defects and inconsistencies are counted apart", func(t *testing.T) {
		m.RecordDefect("strategy")
		m.RecordInconsistency("WECHAT")

		assert.Equal(t, 1.0, testutil.ToFloat64(m.repairDefectTotal.WithLabelValues("strategy")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.repairInconsistency.WithLabelValues("WECHAT")))
	})

	t.Run("Gateway tracking counts errors", func(t *testing.T) {
		m.TrackGateway("ALI", "close")(nil)
		m.TrackGateway("ALI", "close")(errors.New("boom"))

		assert.Equal(t, 1.0, testutil.ToFloat64(m.gatewayErrorsTotal.WithLabelValues("ALI", "close")))
	})

	t.Run("Status category", func(t *testing.T) {
		assert.Equal(t, "2xx", getStatusCategory(202))
		assert.Equal(t, "5xx", getStatusCategory(503))
		assert.Equal(t, "unknown", getStatusCategory(0))
	})
}
