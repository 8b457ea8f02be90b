package cache

import (
	"bytes"
	"testing"

	"github.com/cachesim/moesi-sim/internal/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeMissOnEmptyArray(t *testing.T) {
	a := New()
	res := a.Probe(BlockAddr(0x100))
	assert.False(t, res.Hit)
	assert.Equal(t, 0, res.Way, "first invalid way should be chosen on an empty set")
}

func TestInstallThenProbeHits(t *testing.T) {
	a := New()
	block := BlockAddr(0x100)
	res := a.Probe(block)
	require.False(t, res.Hit)

	a.Install(block, res.Way, false, 10)

	res = a.Probe(block)
	assert.True(t, res.Hit)
	assert.Equal(t, uint64(10), res.Line.LastUsed)
	assert.False(t, res.Line.Dirty)
}

func TestTouchUpdatesLRU(t *testing.T) {
	a := New()
	block := BlockAddr(0x100)
	res := a.Probe(block)
	a.Install(block, res.Way, false, 1)

	a.Touch(block, res.Way, 99)
	res = a.Probe(block)
	require.True(t, res.Hit)
	assert.Equal(t, uint64(99), res.Line.LastUsed, "a hit must leave last_used as the set maximum")
}

func TestSetDirtyRequiresValid(t *testing.T) {
	a := New()
	assert.Panics(t, func() {
		a.SetDirty(BlockAddr(0x100), 0)
	})
}

func TestLRUEvictsSmallestLastUsed(t *testing.T) {
	a := New()
	set := SetIndex(BlockAddr(0x100))

	// Fill every way of the target set with increasing last_used values,
	// leaving way 3 as the oldest.
	for way := 0; way < constants.Assoc; way++ {
		block := uint64(set) + uint64(way)*constants.NSets
		lastUsed := uint64(way + 1)
		if way == 3 {
			lastUsed = 0
		}
		a.Install(block, way, false, lastUsed)
	}

	victimBlock := uint64(set) + uint64(constants.Assoc)*constants.NSets
	res := a.Probe(victimBlock)
	require.False(t, res.Hit)
	assert.Equal(t, 3, res.Way)
}

func TestInvalidateFreesWay(t *testing.T) {
	a := New()
	block := BlockAddr(0x200)
	res := a.Probe(block)
	a.Install(block, res.Way, false, 1)

	a.Invalidate(block, res.Way)

	res = a.Probe(block)
	assert.False(t, res.Hit)
	assert.False(t, a.LineAt(block, res.Way).Valid)
}

func TestSetAssociativeInvariantNoDuplicateTags(t *testing.T) {
	a := New()
	block := BlockAddr(0x300)
	res := a.Probe(block)
	a.Install(block, res.Way, false, 1)

	// Re-probing the same block must return the same way as a hit, never
	// install a duplicate tag elsewhere in the set.
	res2 := a.Probe(block)
	assert.True(t, res2.Hit)
	assert.Equal(t, res.Way, res2.Way)
}

func TestDumpOnlyListsValidLines(t *testing.T) {
	a := New()
	block := BlockAddr(0x400)
	res := a.Probe(block)
	a.Install(block, res.Way, true, 5)

	var buf bytes.Buffer
	a.Dump(&buf)
	assert.Contains(t, buf.String(), "dirty=true")
}
