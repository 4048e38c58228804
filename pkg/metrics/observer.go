package metrics

import "commetrics-server/pkg/communication"

// EngineObserver feeds per-call analyzer outcomes into commetrics_calls_analyzed_total
type EngineObserver struct{}

// ObserveCall implements communication.Observer
func (EngineObserver) ObserveCall(analyzer string, outcome communication.Outcome) {
	if active() {
		CallsAnalyzed.WithLabelValues(analyzer, string(outcome)).Inc()
	}
}

var _ communication.Observer = EngineObserver{}
