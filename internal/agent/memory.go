package agent

import (
	"math"
	"runtime"
	"runtime/debug"
)

// MemoryProbe reports how many bytes the process may still allocate.
type MemoryProbe interface {
	Available() uint64
}

// RuntimeProbe measures headroom against a memory limit using the Go
// runtime's own accounting.
type RuntimeProbe struct {
	limit uint64
}

// NewRuntimeProbe returns a probe against limit bytes. A zero limit
// uses the runtime soft limit (GOMEMLIMIT), which is unlimited unless
// set, in which case Available never runs low.
func NewRuntimeProbe(limit uint64) *RuntimeProbe {
	return &RuntimeProbe{limit: limit}
}

// Available implements MemoryProbe.
func (p *RuntimeProbe) Available() uint64 {
	limit := p.limit
	if limit == 0 {
		soft := debug.SetMemoryLimit(-1)
		if soft <= 0 || soft == math.MaxInt64 {
			return math.MaxUint64
		}
		limit = uint64(soft)
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	used := ms.Sys - ms.HeapReleased
	if used >= limit {
		return 0
	}
	return limit - used
}

// MemoryFunc adapts a function to MemoryProbe.
type MemoryFunc func() uint64

// Available implements MemoryProbe.
func (f MemoryFunc) Available() uint64 { return f() }
