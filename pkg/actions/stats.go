package actions

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// ActionStats aggregates the dispatches of one action since the registry was
// created.
type ActionStats struct {
	Action         string        `json:"action"`
	Dispatches     int64         `json:"dispatches"`
	Successes      int64         `json:"successes"`
	Failures       int64         `json:"failures"`
	Aborts         int64         `json:"aborts"`
	Throttled      int64         `json:"throttled"`
	TotalDuration  time.Duration `json:"total_duration"`
	MaxDuration    time.Duration `json:"max_duration"`
	LastDuration   time.Duration `json:"last_duration"`
	LastOutcome    string        `json:"last_outcome,omitempty"`
	LastDispatchAt time.Time     `json:"last_dispatch_at"`
}

// AverageDuration is zero before the first dispatch.
func (s ActionStats) AverageDuration() time.Duration {
	if s.Dispatches == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Dispatches)
}

// Inspector is the read-only, payload-agnostic view of a Registry used by
// admin and metrics adapters.
type Inspector interface {
	Name() string
	Actions() []string
	Registrations(action string) []HandlerInfo
	ActionMode(action string) Mode
	Stats(action string) ActionStats
	AllStats() []ActionStats
}

var _ Inspector = (*Registry[any, any])(nil)

type statsBook struct {
	mu       sync.Mutex
	byAction map[string]*ActionStats
}

func newStatsBook() *statsBook {
	return &statsBook{byAction: make(map[string]*ActionStats)}
}

func (b *statsBook) record(action, outcome string, throttled bool, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.byAction[action]
	if !ok {
		s = &ActionStats{Action: action}
		b.byAction[action] = s
	}

	s.Dispatches++
	switch outcome {
	case "success":
		s.Successes++
	case "aborted":
		s.Aborts++
	default:
		s.Failures++
	}
	if throttled {
		s.Throttled++
	}
	s.TotalDuration += d
	s.MaxDuration = max(s.MaxDuration, d)
	s.LastDuration = d
	s.LastOutcome = outcome
	s.LastDispatchAt = time.Now()
}

func (b *statsBook) get(action string) ActionStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.byAction[action]; ok {
		return *s
	}
	return ActionStats{Action: action}
}

func (b *statsBook) all() []ActionStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ActionStats, 0, len(b.byAction))
	for _, s := range b.byAction {
		out = append(out, *s)
	}
	return out
}

// Stats returns the aggregated counters of action.
func (r *Registry[P, R]) Stats(action string) ActionStats {
	return r.stats.get(action)
}

// AllStats returns the counters of every action dispatched so far, sorted by
// action name.
func (r *Registry[P, R]) AllStats() []ActionStats {
	all := r.stats.all()
	slices.SortFunc(all, func(a, b ActionStats) int { return cmp.Compare(a.Action, b.Action) })
	return all
}
