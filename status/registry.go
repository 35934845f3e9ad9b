package status

import "sync/atomic"

// Registry is the central metrics facade
// Components cache pointers during construction; hot paths write directly to atomics
type Registry struct {
	Bools *MetricMap[atomic.Bool]
	Ints  *MetricMap[atomic.Int64]
}

// NewRegistry creates an initialized Registry
func NewRegistry() *Registry {
	return &Registry{
		Bools: NewMetricMap[atomic.Bool](),
		Ints:  NewMetricMap[atomic.Int64](),
	}
}

// TotalCount returns total metrics across all types
func (r *Registry) TotalCount() int {
	return r.Bools.Count() + r.Ints.Count()
}

// Snapshot copies all integer metrics, bools reported as 0/1
func (r *Registry) Snapshot() map[string]int64 {
	out := make(map[string]int64, r.TotalCount())
	r.Ints.Range(func(key string, ptr *atomic.Int64) {
		out[key] = ptr.Load()
	})
	r.Bools.Range(func(key string, ptr *atomic.Bool) {
		if ptr.Load() {
			out[key] = 1
		} else {
			out[key] = 0
		}
	})
	return out
}

// Counter returns the integer metric for key, or a detached counter when r is nil
// Lets components accept an optional registry without nil checks on every write
func (r *Registry) Counter(key string) *atomic.Int64 {
	if r == nil {
		return new(atomic.Int64)
	}
	return r.Ints.Get(key)
}

// Flag returns the bool metric for key, or a detached flag when r is nil
func (r *Registry) Flag(key string) *atomic.Bool {
	if r == nil {
		return new(atomic.Bool)
	}
	return r.Bools.Get(key)
}
