// Package directory implements the MOESI coherence directory: the global
// per-block-address state record and the state-transition function that
// drives invalidation, writeback, and cache-to-cache transfer side effects.
package directory

import (
	"fmt"
	"sync"

	"github.com/cachesim/moesi-sim/internal/interfaces"
)

// State is one of the MOESI states. Invalid is never stored explicitly —
// the absence of an entry for a block address means Invalid.
type State int

const (
	StateExclusive State = iota
	StateModified
	StateOwned
	StateShared
)

func (s State) String() string {
	switch s {
	case StateExclusive:
		return "E"
	case StateModified:
		return "M"
	case StateOwned:
		return "O"
	case StateShared:
		return "S"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// noCPU marks an absent modifier/owner.
const noCPU = -1

// InvariantViolation is panicked when a directory entry is found in a
// shape the MOESI transition table never produces — it indicates a bug in
// the protocol implementation, not a trace problem, and is fatal.
type InvariantViolation struct {
	BlockAddr uint64
	State     State
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("directory: entry for block %#x in impossible state %v", e.BlockAddr, e.State)
}

// Entry is the directory's record for one ever-touched block address.
type Entry struct {
	BlockAddr  uint64
	State      State
	Sharers    map[int]bool
	ModifierID int // noCPU if not applicable
	OwnerID    int // noCPU if not applicable
}

// Outcome reports the side effects of a directory update that the
// requesting cache agent must carry out.
type Outcome struct {
	NeedsFill           bool
	NeedsWriteback      bool
	InvalidateSet       map[int]bool
	CacheToCacheSource  int // noCPU if there is no cache-to-cache transfer
}

// HasCacheToCacheTransfer reports whether this outcome names a source for
// a cache-to-cache transfer.
func (o Outcome) HasCacheToCacheTransfer() bool {
	return o.CacheToCacheSource != noCPU
}

// Directory holds one Entry per touched block address, mutated only by
// whichever agent currently holds the bus — consultation is therefore
// globally serialized by the caller's bus-held invariant, but the mutex
// here guards against misuse and keeps the type safe to share.
type Directory struct {
	mu       sync.Mutex
	entries  map[uint64]*Entry
	observer interfaces.Observer
	logger   interfaces.Logger
}

// New creates an empty directory.
func New(observer interfaces.Observer, logger interfaces.Logger) *Directory {
	return &Directory{
		entries:  make(map[uint64]*Entry),
		observer: observer,
		logger:   logger,
	}
}

// Lookup returns the entry for a block address, if any, for invariant
// checks and tests. The returned Entry is a copy.
func (d *Directory) Lookup(blockAddr uint64) (Entry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[blockAddr]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func others(sharers map[int]bool, exclude int) map[int]bool {
	out := make(map[int]bool, len(sharers))
	for cpu := range sharers {
		if cpu != exclude {
			out[cpu] = true
		}
	}
	return out
}

func soleSharer(sharers map[int]bool) int {
	for cpu := range sharers {
		return cpu
	}
	return noCPU
}

// Update applies the MOESI transition table for a request against the
// entry for addr's block, returning the side effects the caller — which
// must currently hold the bus — is responsible for carrying out.
func (d *Directory) Update(blockAddr uint64, requester int, op interfaces.Op, localHit bool, transID uint64) Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, exists := d.entries[blockAddr]
	if !exists {
		return d.updateAbsent(blockAddr, requester, op)
	}

	shapeOK := len(entry.Sharers) >= 1
	switch entry.State {
	case StateExclusive:
		shapeOK = len(entry.Sharers) == 1 && entry.ModifierID == noCPU && entry.OwnerID == noCPU
	case StateModified:
		shapeOK = len(entry.Sharers) == 1 && entry.Sharers[entry.ModifierID] && entry.OwnerID == noCPU
	case StateOwned:
		shapeOK = shapeOK && entry.Sharers[entry.OwnerID] && entry.ModifierID == noCPU
	case StateShared:
		shapeOK = shapeOK && entry.ModifierID == noCPU && entry.OwnerID == noCPU
	}
	if !shapeOK {
		panic(&InvariantViolation{BlockAddr: blockAddr, State: entry.State})
	}

	var outcome Outcome
	switch entry.State {
	case StateExclusive:
		outcome = d.updateExclusive(entry, requester, op)
	case StateShared:
		outcome = d.updateShared(entry, requester, op, localHit)
	case StateModified:
		outcome = d.updateModified(entry, requester, op)
	case StateOwned:
		outcome = d.updateOwned(entry, requester, op)
	default:
		panic(&InvariantViolation{BlockAddr: blockAddr, State: entry.State})
	}

	if len(entry.Sharers) == 0 {
		delete(d.entries, blockAddr)
	}

	if d.observer != nil {
		for cpu := range outcome.InvalidateSet {
			d.observer.ObserveInvalidation(cpu)
		}
		if outcome.HasCacheToCacheTransfer() {
			d.observer.ObserveCacheToCacheTransfer(outcome.CacheToCacheSource, requester)
		}
	}
	if d.logger != nil {
		d.logger.Trans(transID, "directory update", "block", fmt.Sprintf("%#x", blockAddr), "requester", requester, "op", op, "state", entry.State)
	}
	return outcome
}

func (d *Directory) updateAbsent(blockAddr uint64, requester int, op interfaces.Op) Outcome {
	entry := &Entry{
		BlockAddr:  blockAddr,
		Sharers:    map[int]bool{requester: true},
		ModifierID: noCPU,
		OwnerID:    noCPU,
	}
	if op == interfaces.OpRead {
		entry.State = StateExclusive
	} else {
		entry.State = StateModified
		entry.ModifierID = requester
	}
	d.entries[blockAddr] = entry
	return Outcome{NeedsFill: true, CacheToCacheSource: noCPU}
}

func (d *Directory) updateExclusive(entry *Entry, requester int, op interfaces.Op) Outcome {
	x := soleSharer(entry.Sharers)
	if op == interfaces.OpRead {
		if requester == x {
			return Outcome{CacheToCacheSource: noCPU}
		}
		entry.State = StateShared
		entry.Sharers[requester] = true
		return Outcome{NeedsFill: true, CacheToCacheSource: noCPU}
	}
	// WRITE
	if requester == x {
		entry.State = StateModified
		entry.ModifierID = requester
		return Outcome{CacheToCacheSource: noCPU}
	}
	invalidated := map[int]bool{x: true}
	entry.State = StateModified
	entry.ModifierID = requester
	entry.Sharers = map[int]bool{requester: true}
	return Outcome{NeedsFill: true, InvalidateSet: invalidated, CacheToCacheSource: noCPU}
}

func (d *Directory) updateShared(entry *Entry, requester int, op interfaces.Op, localHit bool) Outcome {
	if op == interfaces.OpRead {
		if localHit {
			return Outcome{CacheToCacheSource: noCPU}
		}
		entry.Sharers[requester] = true
		return Outcome{NeedsFill: true, CacheToCacheSource: noCPU}
	}
	// WRITE: invalidate every other sharer, always emit a writeback per the
	// stricter behavior documented for the S->M transition, and only need a
	// fresh fill if the requester did not already hold the block.
	invalidated := others(entry.Sharers, requester)
	needsFill := !localHit
	entry.State = StateModified
	entry.ModifierID = requester
	entry.Sharers = map[int]bool{requester: true}
	return Outcome{NeedsFill: needsFill, NeedsWriteback: true, InvalidateSet: invalidated, CacheToCacheSource: noCPU}
}

func (d *Directory) updateModified(entry *Entry, requester int, op interfaces.Op) Outcome {
	x := entry.ModifierID
	if op == interfaces.OpRead {
		if requester == x {
			return Outcome{CacheToCacheSource: noCPU}
		}
		entry.State = StateOwned
		entry.OwnerID = x
		entry.Sharers = map[int]bool{x: true, requester: true}
		entry.ModifierID = noCPU
		return Outcome{CacheToCacheSource: x}
	}
	// WRITE
	if requester == x {
		return Outcome{CacheToCacheSource: noCPU}
	}
	invalidated := map[int]bool{x: true}
	entry.State = StateModified
	entry.ModifierID = requester
	entry.Sharers = map[int]bool{requester: true}
	return Outcome{NeedsFill: true, NeedsWriteback: true, InvalidateSet: invalidated, CacheToCacheSource: noCPU}
}

func (d *Directory) updateOwned(entry *Entry, requester int, op interfaces.Op) Outcome {
	o := entry.OwnerID
	if op == interfaces.OpRead {
		if entry.Sharers[requester] {
			return Outcome{CacheToCacheSource: noCPU}
		}
		entry.Sharers[requester] = true
		return Outcome{CacheToCacheSource: o}
	}
	// WRITE
	invalidated := others(entry.Sharers, requester)
	needsWriteback := requester != o
	entry.State = StateModified
	entry.ModifierID = requester
	entry.OwnerID = noCPU
	entry.Sharers = map[int]bool{requester: true}
	return Outcome{NeedsWriteback: needsWriteback, InvalidateSet: invalidated, CacheToCacheSource: noCPU}
}
