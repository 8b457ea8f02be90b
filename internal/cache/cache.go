// Package cache implements the set-associative cache line array with LRU
// replacement that backs each CPU's private cache agent.
package cache

import (
	"fmt"
	"io"
	"math"

	"github.com/cachesim/moesi-sim/internal/constants"
)

// Line holds the metadata for one cache way. No data bytes are stored —
// addresses stand in for payload.
type Line struct {
	Tag      uint64
	LastUsed uint64
	Valid    bool
	Dirty    bool
}

// Set is a fixed-length sequence of Assoc ways.
type Set [constants.Assoc]Line

// Array is a fixed-length sequence of NSets sets: a complete private cache.
type Array struct {
	sets [constants.NSets]Set
}

// New returns a cache array with every way invalid and its LastUsed
// sentinel set to the maximum uint64, so an empty way is never mistaken
// for the least-recently-used occupant of a full set.
func New() *Array {
	a := &Array{}
	for s := range a.sets {
		for w := range a.sets[s] {
			a.sets[s][w].LastUsed = math.MaxUint64
		}
	}
	return a
}

// BlockAddr returns the block address for a byte address: the address with
// line-offset bits removed.
func BlockAddr(addr uint64) uint64 {
	return addr >> constants.LineOffsetBits
}

// SetIndex returns the set a block address maps to.
func SetIndex(blockAddr uint64) int {
	return int(blockAddr % constants.NSets)
}

// ProbeResult is the outcome of a non-mutating probe.
type ProbeResult struct {
	Hit  bool
	Way  int
	Line Line
}

// Probe scans the set for blockAddr. On a miss it also reports the way
// that would be evicted to make room: the first invalid way, or else the
// way with the smallest LastUsed, ties broken by lowest index.
func (a *Array) Probe(blockAddr uint64) ProbeResult {
	set := &a.sets[SetIndex(blockAddr)]

	for way := range set {
		line := set[way]
		if line.Valid && line.Tag == blockAddr {
			return ProbeResult{Hit: true, Way: way, Line: line}
		}
	}

	victim := 0
	for way := range set {
		if !set[way].Valid {
			victim = way
			break
		}
		if set[way].LastUsed < set[victim].LastUsed {
			victim = way
		}
	}
	return ProbeResult{Hit: false, Way: victim, Line: set[victim]}
}

// Touch refreshes the LRU timestamp of a way, called on a hit.
func (a *Array) Touch(blockAddr uint64, way int, now uint64) {
	a.sets[SetIndex(blockAddr)][way].LastUsed = now
}

// Install overwrites a way with a fresh block. The caller is responsible
// for having already emitted any writeback side-effect the prior occupant
// required (a valid, dirty line with a different tag).
func (a *Array) Install(blockAddr uint64, way int, dirty bool, now uint64) {
	a.sets[SetIndex(blockAddr)][way] = Line{
		Tag:      blockAddr,
		LastUsed: now,
		Valid:    true,
		Dirty:    dirty,
	}
}

// Invalidate marks a way invalid. Used for snoop-driven coherence
// invalidation; a local eviction simply overwrites the way via Install.
func (a *Array) Invalidate(blockAddr uint64, way int) {
	a.sets[SetIndex(blockAddr)][way].Valid = false
}

// SetDirty marks an already-valid way dirty. It is a programming error to
// call this on an invalid way.
func (a *Array) SetDirty(blockAddr uint64, way int) {
	set := &a.sets[SetIndex(blockAddr)]
	if !set[way].Valid {
		panic(fmt.Sprintf("cache: set_dirty on invalid way %d in set %d", way, SetIndex(blockAddr)))
	}
	set[way].Dirty = true
}

// LineAt returns the current contents of a way, for invariant checks and
// tests.
func (a *Array) LineAt(blockAddr uint64, way int) Line {
	return a.sets[SetIndex(blockAddr)][way]
}

// Dump writes a line per set/way with tag/lru/dirty, restricted to valid
// ways. Grounded on the original's Cache::dump() debug helper; nothing in
// the simulator itself calls it.
func (a *Array) Dump(w io.Writer) {
	for s := range a.sets {
		for way, line := range a.sets[s] {
			if !line.Valid {
				continue
			}
			fmt.Fprintf(w, "set=%d way=%d tag=%#x lru=%d dirty=%t\n", s, way, line.Tag, line.LastUsed, line.Dirty)
		}
	}
}
