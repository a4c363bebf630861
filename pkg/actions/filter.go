package actions

import (
	"fmt"
	"slices"

	"github.com/JailtonJunior94/actionflow/pkg/linq"
)

// match reports whether info passes the filter, and why not.
func (f *Filter) match(info HandlerInfo) (string, bool) {
	if f == nil {
		return "", true
	}

	hasTag := func(tag string) bool { return slices.Contains(info.Tags, tag) }

	switch {
	case len(f.Tags) > 0 && !linq.Any(f.Tags, hasTag):
		return "filtered by tags", false
	case linq.Any(f.ExcludeTags, hasTag):
		return "filtered by excluded tags", false
	case f.Category != "" && info.Category != f.Category:
		return "filtered by category", false
	case f.ExcludeCategory != "" && info.Category == f.ExcludeCategory:
		return "filtered by excluded category", false
	case len(f.HandlerIDs) > 0 && !slices.Contains(f.HandlerIDs, info.ID):
		return "filtered by handler id", false
	case slices.Contains(f.ExcludeHandlerIDs, info.ID):
		return "filtered by excluded handler id", false
	case f.Environment != "" && info.Environment != "" && info.Environment != f.Environment:
		return "filtered by environment", false
	case f.Feature != "" && info.Feature != "" && info.Feature != f.Feature:
		return "filtered by feature", false
	case f.Custom != nil && !f.Custom(info.clone()):
		return "filtered by custom predicate", false
	}
	return "", true
}

// qualify builds the invocations of a dispatch. Handlers rejected by the
// filter, their condition or validation, or by a dependency that does not
// qualify are marked skipped.
func (r *Registry[P, R]) qualify(run *pipeline[P, R], snapshot []*registration[P, R], filter *Filter) []*invocation[P, R] {
	payload := run.currentPayload()

	var qualifying []*invocation[P, R]
	for i, reg := range snapshot {
		inv := &invocation[P, R]{index: i, reg: reg}

		if reason, ok := filter.match(reg.info); !ok {
			run.skip(inv, reason)
			continue
		}
		if reg.condition != nil && !reg.condition(payload) {
			run.skip(inv, "condition not met")
			continue
		}
		if reg.validation != nil && !reg.validation(payload) {
			run.skip(inv, ErrValidationFailed.Error())
			continue
		}
		qualifying = append(qualifying, inv)
	}

	// Dependencies can chain, so repeat until nothing else drops out.
	for changed := true; changed; {
		changed = false
		ids := make(map[string]struct{}, len(qualifying))
		for _, inv := range qualifying {
			ids[inv.reg.info.ID] = struct{}{}
		}

		qualifying = linq.Filter(qualifying, func(inv *invocation[P, R]) bool {
			for _, dep := range inv.reg.info.Dependencies {
				if _, ok := ids[dep]; !ok {
					run.skip(inv, fmt.Sprintf("dependency %s not qualifying", dep))
					changed = true
					return false
				}
			}
			return true
		})
	}

	return qualifying
}
