package actions

import "github.com/JailtonJunior94/actionflow/pkg/observability"

type instruments struct {
	dispatches      observability.Counter
	duration        observability.Histogram
	handlerFailures observability.Counter
	inflight        observability.UpDownCounter
}

func newInstruments(m observability.Metrics) instruments {
	return instruments{
		dispatches:      m.Counter("actions.dispatch.count", "Number of completed dispatches", "1"),
		duration:        m.Histogram("actions.dispatch.duration", "Dispatch duration", "ms"),
		handlerFailures: m.Counter("actions.handler.failures", "Number of failed handler invocations", "1"),
		inflight:        m.UpDownCounter("actions.dispatch.inflight", "Dispatches currently running", "1"),
	}
}
