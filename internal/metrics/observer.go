package metrics

// HubObserver sees stream subscriber churn and event fanout.
type HubObserver interface {
	IncOnline()
	DecOnline()
	RecordEvent()
}

// QueueObserver sees queue activity: accepted work, attempt outcomes and the
// per-status depth gauge.
type QueueObserver interface {
	IncEnqueued()
	RecordAttempt(outcome string, seconds float64)
	SetQueueDepth(status string, n int64)
}
