package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// A single collector per process: promauto registers against the
// default registry, so all exercises share this one instance.
var collector = NewCollector("dispatch_test", nil)

func TestCollector_RecordsWithoutPanic(t *testing.T) {
	collector.RecordRouting("sales", "least-load", "assigned", 5*time.Millisecond)
	collector.RecordSpawn("sales")
	collector.RecordRegistration("sales")
	collector.RecordDecommission()
	collector.SetActiveAgents(3)
	collector.RecordSessionCreated()
	collector.RecordSessionCompleted()
	collector.RecordSessionAbandoned()
	collector.RecordHandoff("agent-decommission")
	collector.SetActiveSessions(2)
	collector.RecordGeoQuery("nearest", time.Millisecond)
	collector.RecordServicePosted("food-delivery")
	collector.SetActiveServices(1)

	assert.Equal(t, 3.0, testutil.ToFloat64(collector.agentsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.sessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.sessionsCreatedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		collector.handoffsTotal.With(prometheus.Labels{"reason": "agent-decommission"})))
}
