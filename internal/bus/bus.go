// Package bus implements the single shared interconnect: round-robin
// arbitration among cache agents, a simulated cycle clock, and broadcast
// delivery of the winning transaction to all agents for snooping.
package bus

import (
	"fmt"
	"sync"

	"github.com/cachesim/moesi-sim/internal/interfaces"
)

// Clock is a shared, monotonic, simulated-cycle counter. The current bus
// owner advances it while serving a request, and every CPU's driver loop
// also advances it by one cycle between trace entries without holding the
// bus, so Clock guards its counter with its own mutex. Now can be read
// without holding the bus lock.
type Clock struct {
	mu  sync.Mutex
	now uint64
}

// Now returns the current simulated cycle.
func (c *Clock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by n simulated cycles and returns the
// new value.
func (c *Clock) Advance(n uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += n
	return c.now
}

// Broadcast is the last transaction published to the bus. Agents compare
// TransID against their own snoop cursor to detect a new broadcast.
type Broadcast struct {
	TransID       uint64
	Requester     int
	Op            interfaces.Op
	Addr          uint64
	InvalidateSet map[int]bool
}

// Bus is the single shared resource serializing all coherence traffic.
// Exactly one cache agent holds it at a time; release hands ownership to
// the next CPU in round-robin order.
type Bus struct {
	mu            sync.Mutex
	cond          *sync.Cond
	numCPUs       int
	currentOwner  int
	nextTransID   uint64
	lastBroadcast Broadcast
	retired       map[int]bool
	clock         *Clock
	logger        interfaces.Logger
	observer      interfaces.Observer
}

// New creates a Bus for numCPUs agents, granting CPU 0 first as required
// by the round-robin discipline's initial condition.
func New(numCPUs int, clock *Clock, logger interfaces.Logger, observer interfaces.Observer) *Bus {
	b := &Bus{
		numCPUs:      numCPUs,
		currentOwner: 0,
		retired:      make(map[int]bool, numCPUs),
		clock:        clock,
		logger:       logger,
		observer:     observer,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Clock returns the bus's shared simulated clock.
func (b *Bus) Clock() *Clock { return b.clock }

// Acquire blocks until cpu becomes the current bus owner, invoking snoop
// for every new broadcast observed while waiting so the caller can service
// snoop-driven invalidation without ever blocking the transaction that
// triggered it. It returns the number of simulated cycles spent waiting,
// measured on the shared clock between the call and the grant.
func (b *Bus) Acquire(cpu int, snoop func(Broadcast)) uint64 {
	b.mu.Lock()
	start := b.clock.Now()
	lastSeen := b.lastBroadcast.TransID
	for b.currentOwner != cpu {
		b.cond.Wait()
		if b.lastBroadcast.TransID != lastSeen && b.lastBroadcast.Requester != cpu {
			bc := b.lastBroadcast
			lastSeen = bc.TransID
			if snoop != nil {
				b.mu.Unlock()
				snoop(bc)
				b.mu.Lock()
			}
		}
	}
	b.mu.Unlock()

	waited := b.clock.Now()
	if waited < start {
		waited = start
	}
	waitCycles := waited - start
	if b.observer != nil {
		b.observer.ObserveBusAcquisition(cpu, waitCycles)
	}
	return waitCycles
}

// NextTransID reserves the next monotonic transaction ID. Must only be
// called by the current bus owner, so no additional locking beyond the
// bus's serialization is needed for the counter to stay gap-free and
// strictly increasing.
func (b *Bus) NextTransID() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextTransID++
	return b.nextTransID
}

// Broadcast publishes the winning transaction to every agent. Must be
// called by the current bus owner, after the directory has computed the
// invalidate set for this transaction, so snoopers see a fully resolved
// broadcast.
func (b *Bus) Broadcast(transID uint64, requester int, op interfaces.Op, addr uint64, invalidateSet map[int]bool) {
	b.mu.Lock()
	b.lastBroadcast = Broadcast{
		TransID:       transID,
		Requester:     requester,
		Op:            op,
		Addr:          addr,
		InvalidateSet: invalidateSet,
	}
	b.mu.Unlock()
	b.cond.Broadcast()

	if b.logger != nil {
		b.logger.Trans(transID, "bus broadcast", "requester", requester, "op", op, "addr", fmt.Sprintf("%#x", addr))
	}
}

// Release hands bus ownership to the next live CPU in round-robin order.
// Ownership cycles strictly as (owner+1) mod N among CPUs that have not
// retired, so a live agent cannot be granted the bus again until the token
// has visited every other live agent — the "wait for global round" rule
// from the source is satisfied by this single counter, skipping any CPU
// that has already exhausted its trace stream.
func (b *Bus) Release(cpu int) {
	b.mu.Lock()
	if b.currentOwner != cpu {
		b.mu.Unlock()
		panic("bus: release by non-owner")
	}
	b.advanceOwnerLocked()
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Retire permanently removes cpu from round-robin arbitration: its trace
// stream has reached EOF, hit a read error, or its agent panicked, so it
// will never call Acquire or Release again. If cpu currently holds the
// bus, ownership is handed to the next live CPU immediately — otherwise
// every other live CPU would block on Acquire forever waiting for a turn
// that will never come.
func (b *Bus) Retire(cpu int) {
	b.mu.Lock()
	b.retired[cpu] = true
	if b.currentOwner == cpu {
		b.advanceOwnerLocked()
	}
	b.mu.Unlock()
	b.cond.Broadcast()
}

// advanceOwnerLocked moves currentOwner to the next CPU that has not
// retired, in round-robin order. Must be called with b.mu held. It
// advances at most numCPUs steps; if every CPU has retired, currentOwner
// ends up unchanged — there is no one left to acquire the bus anyway.
func (b *Bus) advanceOwnerLocked() {
	for i := 0; i < b.numCPUs; i++ {
		b.currentOwner = (b.currentOwner + 1) % b.numCPUs
		if !b.retired[b.currentOwner] {
			return
		}
	}
}

// CurrentOwner reports the current bus owner, for tests.
func (b *Bus) CurrentOwner() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentOwner
}
