package port

import "time"

type Metrics interface {
	ObserveTransition(from, to string)
	ObserveError(operation, kind string)
	ObserveReconciliation(elapsed time.Duration, outcome string)
	// ObserveNotification counts event deliveries per sink: delivered, failed or dropped.
	ObserveNotification(sink, outcome string)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) ObserveTransition(string, string) {}
func (NopMetrics) ObserveError(string, string) {}
func (NopMetrics) ObserveReconciliation(time.Duration, string) {}
func (NopMetrics) ObserveNotification(string, string) {}
