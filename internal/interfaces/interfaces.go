// Package interfaces provides internal interface and value-type definitions
// shared across the simulator's internal packages. These are separate from
// the public interfaces in the root package to avoid circular imports
// between the root package and internal packages.
package interfaces

import "fmt"

// Op identifies the kind of memory access a trace entry or bus request
// represents.
type Op int

const (
	OpRead Op = iota
	OpWrite
	OpNop
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "READ"
	case OpWrite:
		return "WRITE"
	case OpNop:
		return "NOP"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// TraceEntry is one record pulled from a per-CPU trace stream.
type TraceEntry struct {
	CPU  int
	Op   Op
	Addr uint64
}

// TraceSource yields an ordered sequence of trace entries per CPU. Next
// blocks until an entry is available, the stream is exhausted (io.EOF), or
// an error occurs. EOF is sticky: once returned, every subsequent call for
// that CPU returns io.EOF again.
type TraceSource interface {
	// NumCPUs returns the processor count the trace was recorded for.
	NumCPUs() int

	// Next returns the next entry for the given CPU, or io.EOF when that
	// CPU's stream is exhausted.
	Next(cpu int) (TraceEntry, error)
}

// Logger is the logging contract internal packages depend on, mirroring
// the root package's public Logger so internal packages need not import
// the root package.
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

// Observer receives coherence and cache events as they happen, mirroring
// the root package's public Observer.
type Observer interface {
	ObserveReadHit(cpu int)
	ObserveReadMiss(cpu int)
	ObserveWriteHit(cpu int)
	ObserveWriteMiss(cpu int)
	ObserveInvalidation(cpu int)
	ObserveCacheToCacheTransfer(src, dst int)
	ObserveBusAcquisition(cpu int, waitCycles uint64)
}
