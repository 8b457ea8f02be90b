package moesi

import (
	"io"
	"sync"

	"github.com/cachesim/moesi-sim/internal/interfaces"
)

// MockTraceSource is an in-memory interfaces.TraceSource, useful for
// scenario tests that want to hand-author a short interleaving of
// accesses without going through the trace file format.
type MockTraceSource struct {
	mu      sync.Mutex
	queues  [][]interfaces.TraceEntry
	cursor  []int
}

// NewMockTraceSource builds a trace source with one entry queue per CPU.
// entries[i] is replayed, in order, by CPU i.
func NewMockTraceSource(entries [][]interfaces.TraceEntry) *MockTraceSource {
	return &MockTraceSource{
		queues: entries,
		cursor: make([]int, len(entries)),
	}
}

// NumCPUs implements interfaces.TraceSource.
func (m *MockTraceSource) NumCPUs() int {
	return len(m.queues)
}

// Next implements interfaces.TraceSource.
func (m *MockTraceSource) Next(cpu int) (interfaces.TraceEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cpu < 0 || cpu >= len(m.queues) {
		return interfaces.TraceEntry{}, NewCPUError("Next", cpu, ErrCodeTraceRead, "cpu out of range")
	}
	if m.cursor[cpu] >= len(m.queues[cpu]) {
		return interfaces.TraceEntry{}, io.EOF
	}
	e := m.queues[cpu][m.cursor[cpu]]
	m.cursor[cpu]++
	return e, nil
}

// Read is a convenience constructor for a single read access entry.
func Read(addr uint64) interfaces.TraceEntry {
	return interfaces.TraceEntry{Op: interfaces.OpRead, Addr: addr}
}

// Write is a convenience constructor for a single write access entry.
func Write(addr uint64) interfaces.TraceEntry {
	return interfaces.TraceEntry{Op: interfaces.OpWrite, Addr: addr}
}

var _ interfaces.TraceSource = (*MockTraceSource)(nil)
