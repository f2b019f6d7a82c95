package feed

import "time"

// Metrics receives store events for observability.
type Metrics interface {
	RecordMutation(op string)
	RecordRollback(op string)
	RecordModerationFailOpen()
	RecordCacheFallback()
	RecordRemoteLatency(op string, d time.Duration)
}

// NopMetrics discards all events.
type NopMetrics struct{}

func (NopMetrics) RecordMutation(string)                     {}
func (NopMetrics) RecordRollback(string)                     {}
func (NopMetrics) RecordModerationFailOpen()                 {}
func (NopMetrics) RecordCacheFallback()                      {}
func (NopMetrics) RecordRemoteLatency(string, time.Duration) {}
