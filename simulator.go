package moesi

import (
	"github.com/cachesim/moesi-sim/internal/agent"
	"github.com/cachesim/moesi-sim/internal/bus"
	"github.com/cachesim/moesi-sim/internal/cache"
	"github.com/cachesim/moesi-sim/internal/directory"
	"github.com/cachesim/moesi-sim/internal/driver"
	"github.com/cachesim/moesi-sim/internal/interfaces"
)

// Logger is the logging contract a Simulation writes to. *logging.Logger
// satisfies this interface.
type Logger interface {
	Debug(msg string, args ...any)
	Debugf(format string, args ...any)
	Info(msg string, args ...any)
	Infof(format string, args ...any)
	Warn(msg string, args ...any)
	Warnf(format string, args ...any)
	Error(msg string, args ...any)
	Errorf(format string, args ...any)

	// Trans logs a debug line tagged with the bus transaction id that
	// ordered it.
	Trans(transID uint64, msg string, args ...any)
}

// Options contains additional, optional parameters for Run.
type Options struct {
	// Logger receives the bus's and directory's per-transaction debug lines
	// and the driver's CPU-pinning diagnostics. If nil, nothing is logged.
	Logger Logger

	// Observer receives coherence and cache events. If nil, Run installs a
	// Stats and the returned Simulation exposes it.
	Observer Observer

	// PinCPUs, if non-empty, pins CPU i's goroutine to OS CPU
	// PinCPUs[i % len(PinCPUs)]. A pinning failure is logged and
	// otherwise ignored.
	PinCPUs []int
}

// Simulation is the result of replaying a trace to completion: final
// simulated time and whatever statistics the Observer collected.
type Simulation struct {
	// TotalCycles is the simulated clock's value when every CPU's trace
	// stream reached EOF.
	TotalCycles uint64

	// Stats is populated only when Run was not given a custom Observer.
	// When a custom Observer is supplied, inspect it directly instead.
	Stats *Stats

	numCPUs int
}

// NumCPUs returns the number of cache agents the simulation ran.
func (s *Simulation) NumCPUs() int {
	return s.numCPUs
}

// Run replays trace to completion under cfg and returns the resulting
// Simulation, or an *Error if the run could not complete.
//
// Run wires one cache.Array and agent.Agent per CPU to a shared bus.Bus and
// directory.Directory, then drives them with internal/driver until every
// CPU's trace stream reaches io.EOF. A trace read error, an unknown op, or
// an alignment or coherence-invariant violation on one CPU stops only that
// CPU; the other CPUs run to completion, and Run then returns the failure
// as an *Error (ErrCodeTraceRead for a trace read error) and no
// Simulation. If several CPUs fail, only the first failure reported is
// returned.
func Run(trace interfaces.TraceSource, cfg Config, opts *Options) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &Options{}
	}

	numCPUs := cfg.NumCPUs
	if numCPUs <= 0 {
		numCPUs = trace.NumCPUs()
	}
	if numCPUs <= 0 {
		return nil, NewError("Run", ErrCodeConfig, "trace declares zero CPUs and Config.NumCPUs was not set")
	}

	var observer interfaces.Observer
	var stats *Stats
	if opts.Observer != nil {
		observer = opts.Observer
	} else {
		stats = NewStats(numCPUs)
		observer = stats
	}

	var logger interfaces.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	}

	clock := &bus.Clock{}
	b := bus.New(numCPUs, clock, logger, observer)
	dir := directory.New(observer, logger)

	agents := make([]*agent.Agent, numCPUs)
	for i := 0; i < numCPUs; i++ {
		agents[i] = agent.New(i, cache.New(), b, dir, observer, logger)
	}

	if fatal := driver.Run(trace, agents, clock, driver.Options{Logger: logger, PinCPUs: opts.PinCPUs}); fatal != nil {
		var code ErrorCode
		switch fatal.Code {
		case driver.CodeAlignment:
			code = ErrCodeAlignment
		case driver.CodeCoherenceInvariant:
			code = ErrCodeCoherenceInvariant
		case driver.CodeTraceSemantic:
			code = ErrCodeTraceSemantic
		default:
			code = ErrCodeTraceRead
		}
		return nil, &Error{Op: "Run", CPU: fatal.CPU, Code: code, Msg: fatal.Error(), Inner: fatal.Err}
	}

	return &Simulation{TotalCycles: clock.Now(), Stats: stats, numCPUs: numCPUs}, nil
}
