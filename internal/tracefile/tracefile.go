// Package tracefile implements the concrete trace source: a simple
// line-oriented text format demultiplexed into one ordered queue per CPU.
//
// Each line is `<cpu> <op> <hex-addr>`, where op is one of R, W, or N
// (read, write, nop). Blank lines and lines starting with '#' are ignored.
// This format is original to this repository — it is not a port of any
// upstream binary trace reader.
package tracefile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cachesim/moesi-sim/internal/constants"
	"github.com/cachesim/moesi-sim/internal/interfaces"
)

// ParseError reports a malformed trace line, including its 1-based line
// number for diagnostics.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("tracefile: line %d: %s", e.Line, e.Msg)
}

// Reader is an in-memory, already-demultiplexed trace: one FIFO queue of
// entries per CPU. It implements interfaces.TraceSource.
type Reader struct {
	numCPUs int
	queues  [][]interfaces.TraceEntry
	cursor  []int
}

// Load reads and parses a trace file from disk.
func Load(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tracefile: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a trace from r, demultiplexing records into per-CPU queues
// in the order they appear. The CPU count is inferred as one more than the
// largest CPU id seen.
func Parse(r io.Reader) (*Reader, error) {
	var entries []interfaces.TraceEntry
	maxCPU := -1

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("expected 3 fields, got %d", len(fields))}
		}

		cpu, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("invalid cpu id %q", fields[0])}
		}

		op, err := parseOp(fields[1])
		if err != nil {
			return nil, &ParseError{Line: lineNo, Msg: err.Error()}
		}

		addrStr := strings.TrimPrefix(strings.TrimPrefix(fields[2], "0x"), "0X")
		addr, err := strconv.ParseUint(addrStr, 16, 64)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("invalid address %q", fields[2])}
		}
		if addr%constants.AddressAlignment != 0 {
			return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("address %#x is not %d-byte aligned", addr, constants.AddressAlignment)}
		}

		if cpu > maxCPU {
			maxCPU = cpu
		}
		entries = append(entries, interfaces.TraceEntry{CPU: cpu, Op: op, Addr: addr})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("tracefile: read: %w", err)
	}

	numCPUs := maxCPU + 1
	if numCPUs <= 0 {
		numCPUs = 0
	}

	reader := &Reader{
		numCPUs: numCPUs,
		queues:  make([][]interfaces.TraceEntry, numCPUs),
		cursor:  make([]int, numCPUs),
	}
	for _, e := range entries {
		reader.queues[e.CPU] = append(reader.queues[e.CPU], e)
	}
	return reader, nil
}

func parseOp(s string) (interfaces.Op, error) {
	switch strings.ToUpper(s) {
	case "R":
		return interfaces.OpRead, nil
	case "W":
		return interfaces.OpWrite, nil
	case "N":
		return interfaces.OpNop, nil
	default:
		return 0, fmt.Errorf("unknown op %q, expected R, W, or N", s)
	}
}

// NumCPUs implements interfaces.TraceSource.
func (r *Reader) NumCPUs() int {
	return r.numCPUs
}

// Next implements interfaces.TraceSource.
func (r *Reader) Next(cpu int) (interfaces.TraceEntry, error) {
	if cpu < 0 || cpu >= r.numCPUs {
		return interfaces.TraceEntry{}, fmt.Errorf("tracefile: cpu %d out of range [0,%d)", cpu, r.numCPUs)
	}
	if r.cursor[cpu] >= len(r.queues[cpu]) {
		return interfaces.TraceEntry{}, io.EOF
	}
	entry := r.queues[cpu][r.cursor[cpu]]
	r.cursor[cpu]++
	return entry, nil
}
