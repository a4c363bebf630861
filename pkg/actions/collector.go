package actions

import (
	"maps"
	"time"

	"github.com/JailtonJunior94/actionflow/pkg/linq"
)

func newPipeline[P, R any](action string, mode Mode, payload P, s *resolvedDispatch[P, R], snapshot []*registration[P, R]) *pipeline[P, R] {
	outcomes := make([]HandlerOutcome[R], len(snapshot))
	for i, reg := range snapshot {
		outcomes[i] = HandlerOutcome[R]{
			ID:       reg.info.ID,
			Priority: reg.info.Priority,
			Blocking: reg.info.Blocking,
			Status:   StatusPending,
			Metadata: maps.Clone(reg.info.Metadata),
		}
	}

	return &pipeline[P, R]{
		action:     action,
		mode:       mode,
		payload:    payload,
		collect:    s.collect,
		maxResults: s.maxResults,
		outcomes:   outcomes,
	}
}

// finalize freezes the pipeline and builds the result. Background handlers
// that finish later no longer change anything.
func finalize[P, R any](run *pipeline[P, R], s *resolvedDispatch[P, R], executionID string, start time.Time) *ExecutionResult[R] {
	run.mu.Lock()
	defer run.mu.Unlock()
	run.finalized = true

	end := time.Now()
	res := &ExecutionResult[R]{
		ExecutionID: executionID,
		Action:      run.action,
		Mode:        run.mode,
		Aborted:     run.aborted,
		AbortReason: run.abortReason,
		Terminated:  run.terminated,
		Handlers:    make([]HandlerOutcome[R], len(run.outcomes)),
		Errors:      append([]HandlerFailure(nil), run.failures...),
		Execution: Execution{
			StartTime: start,
			EndTime:   end,
			Duration:  end.Sub(start),
		},
	}

	for i, o := range run.outcomes {
		if o.Status == StatusPending {
			o.Status = StatusSkipped
			o.SkipReason = "not scheduled"
		}
		switch o.Status {
		case StatusSkipped:
			res.Execution.HandlersSkipped++
		case StatusFailed:
			res.Execution.HandlersFailed++
			res.Execution.HandlersExecuted++
		default:
			res.Execution.HandlersExecuted++
		}
		res.Handlers[i] = o
	}

	blockingFailure := linq.Any(res.Errors, func(f HandlerFailure) bool { return f.Blocking })
	res.Success = !res.Aborted && !blockingFailure

	collectResults(run, s, res)
	return res
}

// collectResults applies the result strategy. A Return value always wins
// over the reduced accumulator. Must be called with run.mu held.
func collectResults[P, R any](run *pipeline[P, R], s *resolvedDispatch[P, R], res *ExecutionResult[R]) {
	contributions := run.results
	if run.winnerID != "" {
		contributions = linq.Filter(contributions, func(c contribution[R]) bool {
			return c.handlerID == run.winnerID
		})
	}

	values := contributionValues(contributions)
	res.Results = executedSlots(res.Handlers, contributions)

	if s.collect {
		switch s.strategy {
		case ResultFirst:
			if len(values) > 0 {
				res.Result, res.HasResult = values[0], true
			}
		case ResultAll:
		case ResultMerge:
			if len(values) > 0 {
				res.Result, res.HasResult = mergeValues(values, s.merger), true
			}
		case ResultCustom:
			if s.reducer != nil {
				res.Result, res.HasResult = s.reducer(perHandler(run.outcomes, contributions)), true
			} else if len(values) > 0 {
				res.Result, res.HasResult = values[len(values)-1], true
			}
		default:
			if len(values) > 0 {
				res.Result, res.HasResult = values[len(values)-1], true
			}
		}
	}

	if run.hasTermination {
		res.Result, res.HasResult = run.terminationResult, true
	}
}

// mergeValues folds left to right. Without a merger the last value wins.
func mergeValues[R any](values []R, merger func(acc, next R) R) R {
	if merger == nil {
		return values[len(values)-1]
	}
	acc := values[0]
	for _, v := range values[1:] {
		acc = merger(acc, v)
	}
	return acc
}

// perHandler returns one entry per snapshot handler holding its latest
// contribution, nil when it contributed nothing.
func perHandler[R any](outcomes []HandlerOutcome[R], contributions []contribution[R]) []*R {
	latest := latestByHandler(contributions)

	out := make([]*R, len(outcomes))
	for i, o := range outcomes {
		if v, ok := latest[o.ID]; ok {
			out[i] = &v
		}
	}
	return out
}

// executedSlots returns one entry per executed handler holding its latest
// contribution. handlers must already have their final status.
func executedSlots[R any](handlers []HandlerOutcome[R], contributions []contribution[R]) []*R {
	latest := latestByHandler(contributions)

	slots := make([]*R, 0, len(handlers))
	for _, h := range handlers {
		if h.Status == StatusSkipped {
			continue
		}
		var slot *R
		if v, ok := latest[h.ID]; ok {
			slot = &v
		}
		slots = append(slots, slot)
	}
	return slots
}

func latestByHandler[R any](contributions []contribution[R]) map[string]R {
	latest := make(map[string]R, len(contributions))
	for _, c := range contributions {
		latest[c.handlerID] = c.value
	}
	return latest
}
