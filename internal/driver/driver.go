// Package driver implements the per-CPU trace-replay loop: pull the next
// trace entry, hand it to the owning cache agent, wait one simulated
// cycle, repeat until the trace is exhausted.
package driver

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/cachesim/moesi-sim/internal/agent"
	"github.com/cachesim/moesi-sim/internal/bus"
	"github.com/cachesim/moesi-sim/internal/directory"
	"github.com/cachesim/moesi-sim/internal/interfaces"
	"golang.org/x/sys/unix"
)

// FatalErrorCode classifies why a Run aborted.
type FatalErrorCode string

const (
	CodeTraceRead          FatalErrorCode = "trace_read"
	CodeTraceSemantic      FatalErrorCode = "trace_semantic"
	CodeAlignment          FatalErrorCode = "alignment"
	CodeCoherenceInvariant FatalErrorCode = "coherence_invariant"
)

// FatalError reports the CPU and cause of a failure that ended one CPU's
// loop: a trace read error, an unknown op, or a recovered alignment or
// coherence invariant panic. Only that CPU's loop stops; Run returns the
// first FatalError reported once every CPU has finished.
type FatalError struct {
	CPU  int
	Code FatalErrorCode
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("driver: cpu %d: %s: %v", e.CPU, e.Code, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Options controls optional Run behavior beyond the bare trace replay.
type Options struct {
	// Logger receives affinity-pinning diagnostics. May be nil.
	Logger interfaces.Logger

	// PinCPUs, if non-empty, pins CPU i's goroutine to OS CPU
	// PinCPUs[i % len(PinCPUs)] via sched_setaffinity. A pinning failure
	// is logged and otherwise ignored — it is not fatal to the run.
	PinCPUs []int
}

// Run replays every CPU's trace stream concurrently, one goroutine per
// CPU, until every stream reaches EOF or a fatal error is raised. Trace
// read errors for one CPU stop only that CPU's loop; every other CPU runs
// to its own completion, matching the source's "run until all streams
// report EOF" behavior. A CPU whose loop ends for any reason — EOF, a
// trace error, or a recovered panic — retires from the bus's round-robin
// (bus.Bus.Retire) so the remaining live CPUs are never left waiting for a
// turn that a goroutine which has already exited can no longer grant.
// Alignment and coherence invariant violations panic inside the Agent or
// Directory and are recovered here into a FatalError that aborts the whole
// run once every other CPU has also finished.
func Run(trace interfaces.TraceSource, agents []*agent.Agent, clock *bus.Clock, opts ...Options) *FatalError {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}

	numCPUs := len(agents)
	fatal := make(chan *FatalError, numCPUs)

	var wg sync.WaitGroup
	wg.Add(numCPUs)
	for cpu := 0; cpu < numCPUs; cpu++ {
		go runCPU(cpu, trace, agents[cpu], clock, opt, fatal, &wg)
	}
	wg.Wait()
	close(fatal)

	for f := range fatal {
		return f
	}
	return nil
}

func runCPU(cpu int, trace interfaces.TraceSource, a *agent.Agent, clock *bus.Clock, opt Options, fatal chan<- *FatalError, wg *sync.WaitGroup) {
	defer wg.Done()
	// However this goroutine exits, it must retire from the bus's
	// round-robin: once it returns it will never call Acquire or Release
	// again, and a round robin that still expects its turn would block
	// every other live CPU on Acquire forever.
	defer a.Bus().Retire(cpu)
	defer func() {
		if r := recover(); r != nil {
			fatal <- recoverToFatal(cpu, r)
		}
	}()

	if len(opt.PinCPUs) > 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		cpuIdx := opt.PinCPUs[cpu%len(opt.PinCPUs)]
		var mask unix.CPUSet
		mask.Set(cpuIdx)
		if err := unix.SchedSetaffinity(0, &mask); err != nil {
			if opt.Logger != nil {
				opt.Logger.Warnf("cpu %d: failed to set affinity to os cpu %d: %v", cpu, cpuIdx, err)
			}
		} else if opt.Logger != nil {
			opt.Logger.Debugf("cpu %d: pinned to os cpu %d", cpu, cpuIdx)
		}
	}

	for {
		entry, err := trace.Next(cpu)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			fatal <- &FatalError{CPU: cpu, Code: CodeTraceRead, Err: err}
			return
		}

		switch entry.Op {
		case interfaces.OpRead, interfaces.OpWrite, interfaces.OpNop:
		default:
			fatal <- &FatalError{CPU: cpu, Code: CodeTraceSemantic, Err: fmt.Errorf("unknown op %v", entry.Op)}
			return
		}

		a.Serve(entry.Op, entry.Addr)

		// Wait one simulated cycle between entries. Clock.Advance is
		// independently mutex-guarded and commutative: overlapping calls
		// from different CPUs don't need bus-level serialization because
		// this gap carries no trans_id and orders nothing.
		clock.Advance(1)
	}
}

func recoverToFatal(cpu int, r any) *FatalError {
	switch v := r.(type) {
	case *agent.AlignmentViolation:
		return &FatalError{CPU: cpu, Code: CodeAlignment, Err: v}
	case *directory.InvariantViolation:
		return &FatalError{CPU: cpu, Code: CodeCoherenceInvariant, Err: v}
	case error:
		return &FatalError{CPU: cpu, Code: CodeCoherenceInvariant, Err: v}
	default:
		return &FatalError{CPU: cpu, Code: CodeCoherenceInvariant, Err: fmt.Errorf("%v", v)}
	}
}
