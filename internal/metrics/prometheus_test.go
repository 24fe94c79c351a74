package metrics

import (
	"testing"
)

func TestPrometheusObserver(t *testing.T) {
	obs := NewPrometheusObserver()

	// Just call methods to ensure no panic
	obs.IncOnline()
	obs.DecOnline()
	obs.RecordEvent()
	obs.IncEnqueued()
	obs.RecordAttempt("success", 0.05)
	obs.SetQueueDepth("PENDING", 3)
}
