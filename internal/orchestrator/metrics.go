package orchestrator

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// instruments are the orchestrator's otel metrics. They resolve against the
// global meter provider, so they are live only once observability is wired.
type instruments struct {
	dispatches  metric.Int64Counter
	submissions metric.Int64Counter
	pollSeconds metric.Float64Histogram
}

func newInstruments() instruments {
	meter := otel.Meter("tenon-orchestrator")
	var ins instruments
	ins.dispatches, _ = meter.Int64Counter("tenon.workflow.dispatches",
		metric.WithDescription("Workflow dispatch attempts"))
	ins.submissions, _ = meter.Int64Counter("tenon.submissions.recorded",
		metric.WithDescription("Persisted task submissions"))
	ins.pollSeconds, _ = meter.Float64Histogram("tenon.workflow.poll.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time from dispatch until the run settled or the wait budget ran out"))
	return ins
}
