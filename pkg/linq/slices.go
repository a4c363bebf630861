// Package linq holds small generic slice helpers.
package linq

// PredicateFunc tests a condition on an element.
type PredicateFunc[T any] func(T) bool

// MapFunc transforms an element of type I into type O.
type MapFunc[I, O any] func(I) O

// Filter returns the elements that satisfy fn, in order. The input is not modified.
//
// Returns nil if items is nil.
func Filter[T any](items []T, fn PredicateFunc[T]) []T {
	if items == nil {
		return nil
	}

	var result []T
	for _, item := range items {
		if fn(item) {
			result = append(result, item)
		}
	}
	return result
}

// Partition splits items into those that satisfy fn and those that do not,
// keeping the relative order of both halves.
func Partition[T any](items []T, fn PredicateFunc[T]) (matched, rest []T) {
	for _, item := range items {
		if fn(item) {
			matched = append(matched, item)
			continue
		}
		rest = append(rest, item)
	}
	return matched, rest
}

// Find returns the first element that satisfies fn.
func Find[T any](items []T, fn PredicateFunc[T]) (T, bool) {
	for _, item := range items {
		if fn(item) {
			return item, true
		}
	}

	var empty T
	return empty, false
}

// Any reports whether at least one element satisfies fn.
func Any[T any](items []T, fn PredicateFunc[T]) bool {
	_, ok := Find(items, fn)
	return ok
}

// Map transforms each element with fn.
//
// Returns nil if items is nil.
func Map[I, O any](items []I, fn MapFunc[I, O]) []O {
	if items == nil {
		return nil
	}

	result := make([]O, len(items))
	for index, item := range items {
		result[index] = fn(item)
	}
	return result
}
