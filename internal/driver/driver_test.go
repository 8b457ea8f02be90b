package driver

import (
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/cachesim/moesi-sim/internal/agent"
	"github.com/cachesim/moesi-sim/internal/bus"
	"github.com/cachesim/moesi-sim/internal/cache"
	"github.com/cachesim/moesi-sim/internal/directory"
	"github.com/cachesim/moesi-sim/internal/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queueSource is a minimal in-memory interfaces.TraceSource used only by
// these tests; the exported, reusable version lives in the root package.
type queueSource struct {
	mu      sync.Mutex
	queues  [][]interfaces.TraceEntry
	cursor  []int
	failAt  map[int]int // cpu -> index at which Next returns an error
}

func (q *queueSource) NumCPUs() int { return len(q.queues) }

func (q *queueSource) Next(cpu int) (interfaces.TraceEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.cursor[cpu]
	if at, ok := q.failAt[cpu]; ok && idx == at {
		q.cursor[cpu]++
		return interfaces.TraceEntry{}, fmt.Errorf("injected read failure")
	}
	if idx >= len(q.queues[cpu]) {
		return interfaces.TraceEntry{}, io.EOF
	}
	e := q.queues[cpu][idx]
	q.cursor[cpu]++
	return e, nil
}

func newFixture(numCPUs int) (*bus.Bus, []*agent.Agent, *bus.Clock) {
	clock := &bus.Clock{}
	b := bus.New(numCPUs, clock, nil, nil)
	d := directory.New(nil, nil)
	agents := make([]*agent.Agent, numCPUs)
	for i := 0; i < numCPUs; i++ {
		agents[i] = agent.New(i, cache.New(), b, d, nil, nil)
	}
	return b, agents, clock
}

func TestRunDrainsAllCPUsToEOF(t *testing.T) {
	_, agents, clock := newFixture(2)
	src := &queueSource{
		queues: [][]interfaces.TraceEntry{
			{{CPU: 0, Op: interfaces.OpRead, Addr: 0x100}, {CPU: 0, Op: interfaces.OpRead, Addr: 0x100}},
			{{CPU: 1, Op: interfaces.OpWrite, Addr: 0x200}},
		},
	}

	fatal := Run(src, agents, clock)
	assert.Nil(t, fatal)
}

func TestRunReportsTraceReadErrorWithoutStoppingOtherCPUs(t *testing.T) {
	_, agents, clock := newFixture(2)
	src := &queueSource{
		queues: [][]interfaces.TraceEntry{
			{{CPU: 0, Op: interfaces.OpRead, Addr: 0x100}},
			{{CPU: 1, Op: interfaces.OpRead, Addr: 0x200}, {CPU: 1, Op: interfaces.OpRead, Addr: 0x200}},
		},
		failAt: map[int]int{0: 0},
	}

	fatal := Run(src, agents, clock)
	require.NotNil(t, fatal)
	assert.Equal(t, CodeTraceRead, fatal.Code)
	assert.Equal(t, 0, fatal.CPU)
}

func TestRunRecoversAlignmentViolationIntoFatalError(t *testing.T) {
	_, agents, clock := newFixture(1)
	src := &queueSource{
		queues: [][]interfaces.TraceEntry{
			{{CPU: 0, Op: interfaces.OpRead, Addr: 0x101}},
		},
	}

	fatal := Run(src, agents, clock)
	require.NotNil(t, fatal)
	assert.Equal(t, CodeAlignment, fatal.Code)
	var alignErr *agent.AlignmentViolation
	assert.ErrorAs(t, fatal.Err, &alignErr)
}

func TestRunRejectsUnknownOpAsTraceSemanticError(t *testing.T) {
	_, agents, clock := newFixture(1)
	src := &queueSource{
		queues: [][]interfaces.TraceEntry{
			{{CPU: 0, Op: interfaces.Op(99), Addr: 0x100}},
		},
	}

	fatal := Run(src, agents, clock)
	require.NotNil(t, fatal)
	assert.Equal(t, CodeTraceSemantic, fatal.Code)
}
