// Package agent implements the per-CPU cache agent: it probes its private
// cache array, arbitrates the bus, drives the coherence directory, and
// services snoops from peer transactions.
package agent

import (
	"fmt"

	"github.com/cachesim/moesi-sim/internal/bus"
	"github.com/cachesim/moesi-sim/internal/cache"
	"github.com/cachesim/moesi-sim/internal/constants"
	"github.com/cachesim/moesi-sim/internal/directory"
	"github.com/cachesim/moesi-sim/internal/interfaces"
)

// AlignmentViolation is panicked when a request address fails the 4-byte
// alignment assertion. It is fatal — an unaligned address indicates a
// broken trace, not a recoverable condition.
type AlignmentViolation struct {
	CPU  int
	Addr uint64
}

func (e *AlignmentViolation) Error() string {
	return fmt.Sprintf("agent: cpu %d address %#x is not %d-byte aligned", e.CPU, e.Addr, constants.AddressAlignment)
}

// Completion reports the outcome of a served request.
type Completion struct {
	CPU  int
	Op   interfaces.Op
	Addr uint64
	Hit  bool
}

// Agent is the per-CPU cache actor. Exactly one Agent goroutine drives
// each Array; other agents only ever touch it indirectly, through a
// Broadcast's invalidate set.
type Agent struct {
	cpu       int
	array     *cache.Array
	bus       *bus.Bus
	directory *directory.Directory
	observer  interfaces.Observer
	logger    interfaces.Logger
}

// New creates a cache agent for the given CPU.
func New(cpu int, array *cache.Array, b *bus.Bus, d *directory.Directory, observer interfaces.Observer, logger interfaces.Logger) *Agent {
	return &Agent{cpu: cpu, array: array, bus: b, directory: d, observer: observer, logger: logger}
}

// Bus returns the shared bus this agent arbitrates through, so the driver
// can retire the agent's round-robin turn once its trace stream ends.
func (a *Agent) Bus() *bus.Bus { return a.bus }

// Serve processes one request from the driver loop. It blocks until the
// request is globally ordered on the bus and locally resolved.
func (a *Agent) Serve(op interfaces.Op, addr uint64) Completion {
	if addr%constants.AddressAlignment != 0 {
		panic(&AlignmentViolation{CPU: a.cpu, Addr: addr})
	}

	if op == interfaces.OpNop {
		a.bus.Acquire(a.cpu, a.snoop)
		a.bus.Clock().Advance(constants.LocalHitCycles)
		a.bus.Release(a.cpu)
		return Completion{CPU: a.cpu, Op: op, Addr: addr}
	}

	blockAddr := cache.BlockAddr(addr)
	a.bus.Acquire(a.cpu, a.snoop)

	probe := a.array.Probe(blockAddr)
	transID := a.bus.NextTransID()
	outcome := a.directory.Update(blockAddr, a.cpu, op, probe.Hit, transID)
	a.bus.Broadcast(transID, a.cpu, op, addr, outcome.InvalidateSet)

	a.applyLocalEffects(probe, outcome, op, blockAddr)
	a.recordStats(op, probe.Hit)

	a.bus.Release(a.cpu)
	return Completion{CPU: a.cpu, Op: op, Addr: addr, Hit: probe.Hit}
}

// applyLocalEffects realizes the timing contract and cache mutation named
// by a directory outcome: coherence-driven writeback, a local eviction
// writeback if the victim way holds dirty data, a memory fetch on fill,
// and the resulting install/touch/set_dirty.
func (a *Agent) applyLocalEffects(probe cache.ProbeResult, outcome directory.Outcome, op interfaces.Op, blockAddr uint64) {
	clock := a.bus.Clock()

	if outcome.NeedsWriteback {
		clock.Advance(constants.WritebackLatencyCycles)
	}

	if !probe.Hit {
		if probe.Line.Valid && probe.Line.Dirty {
			clock.Advance(constants.WritebackLatencyCycles)
		}
		if outcome.NeedsFill {
			clock.Advance(constants.MemFetchLatencyCycles)
		}
		dirty := op == interfaces.OpWrite
		a.array.Install(blockAddr, probe.Way, dirty, clock.Now())
		return
	}

	clock.Advance(constants.LocalHitCycles)
	a.array.Touch(blockAddr, probe.Way, clock.Now())
	if op == interfaces.OpWrite {
		a.array.SetDirty(blockAddr, probe.Way)
	}
}

func (a *Agent) recordStats(op interfaces.Op, hit bool) {
	if a.observer == nil {
		return
	}
	switch {
	case op == interfaces.OpRead && hit:
		a.observer.ObserveReadHit(a.cpu)
	case op == interfaces.OpRead && !hit:
		a.observer.ObserveReadMiss(a.cpu)
	case op == interfaces.OpWrite && hit:
		a.observer.ObserveWriteHit(a.cpu)
	case op == interfaces.OpWrite && !hit:
		a.observer.ObserveWriteMiss(a.cpu)
	}
}

// snoop services a peer's broadcast while this agent waits for the bus: it
// invalidates the matching way only if the directory named this agent in
// the transaction's invalidate set. It never blocks the broadcasting
// agent — by the time it runs, the directory has already committed.
func (a *Agent) snoop(bc bus.Broadcast) {
	if bc.InvalidateSet == nil || !bc.InvalidateSet[a.cpu] {
		return
	}
	blockAddr := cache.BlockAddr(bc.Addr)
	res := a.array.Probe(blockAddr)
	if res.Hit {
		a.array.Invalidate(blockAddr, res.Way)
	}
}
