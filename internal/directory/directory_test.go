package directory

import (
	"testing"

	"github.com/cachesim/moesi-sim/internal/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blockAddr = 0x100 >> 5

func TestAbsentReadGrantsExclusive(t *testing.T) {
	d := New(nil, nil)
	outcome := d.Update(blockAddr, 0, interfaces.OpRead, false, 1)

	assert.True(t, outcome.NeedsFill)
	assert.False(t, outcome.HasCacheToCacheTransfer())

	entry, ok := d.Lookup(blockAddr)
	require.True(t, ok)
	assert.Equal(t, StateExclusive, entry.State)
	assert.True(t, entry.Sharers[0])
}

func TestExclusiveReadBySameCPUStaysExclusive(t *testing.T) {
	d := New(nil, nil)
	d.Update(blockAddr, 0, interfaces.OpRead, false, 1)

	outcome := d.Update(blockAddr, 0, interfaces.OpRead, true, 2)
	assert.False(t, outcome.NeedsFill)

	entry, _ := d.Lookup(blockAddr)
	assert.Equal(t, StateExclusive, entry.State)
}

func TestExclusiveReadByPeerGoesShared(t *testing.T) {
	d := New(nil, nil)
	d.Update(blockAddr, 0, interfaces.OpRead, false, 1)

	outcome := d.Update(blockAddr, 1, interfaces.OpRead, false, 2)
	assert.True(t, outcome.NeedsFill)
	assert.Empty(t, outcome.InvalidateSet)

	entry, _ := d.Lookup(blockAddr)
	assert.Equal(t, StateShared, entry.State)
	assert.True(t, entry.Sharers[0])
	assert.True(t, entry.Sharers[1])
}

func TestExclusiveWriteByPeerInvalidatesAndModifies(t *testing.T) {
	d := New(nil, nil)
	d.Update(blockAddr, 0, interfaces.OpRead, false, 1)

	outcome := d.Update(blockAddr, 1, interfaces.OpWrite, false, 2)
	assert.True(t, outcome.NeedsFill)
	assert.True(t, outcome.InvalidateSet[0])

	entry, _ := d.Lookup(blockAddr)
	assert.Equal(t, StateModified, entry.State)
	assert.Equal(t, 1, entry.ModifierID)
}

func TestSharedWriteInvalidatesOthersAndWritesBack(t *testing.T) {
	d := New(nil, nil)
	d.Update(blockAddr, 0, interfaces.OpRead, false, 1)
	d.Update(blockAddr, 1, interfaces.OpRead, false, 2)

	outcome := d.Update(blockAddr, 1, interfaces.OpWrite, true, 3)
	assert.True(t, outcome.NeedsWriteback)
	assert.True(t, outcome.InvalidateSet[0])
	assert.False(t, outcome.InvalidateSet[1])

	entry, _ := d.Lookup(blockAddr)
	assert.Equal(t, StateModified, entry.State)
	assert.Equal(t, 1, entry.ModifierID)
}

func TestModifiedReadByPeerGoesOwnedWithCacheToCacheTransfer(t *testing.T) {
	d := New(nil, nil)
	d.Update(blockAddr, 0, interfaces.OpWrite, false, 1)

	outcome := d.Update(blockAddr, 1, interfaces.OpRead, false, 2)
	assert.False(t, outcome.NeedsFill)
	assert.True(t, outcome.HasCacheToCacheTransfer())
	assert.Equal(t, 0, outcome.CacheToCacheSource)

	entry, _ := d.Lookup(blockAddr)
	assert.Equal(t, StateOwned, entry.State)
	assert.Equal(t, 0, entry.OwnerID)
	assert.True(t, entry.Sharers[0])
	assert.True(t, entry.Sharers[1])
}

func TestOwnedWriteByNonOwnerWritesBack(t *testing.T) {
	d := New(nil, nil)
	d.Update(blockAddr, 0, interfaces.OpWrite, false, 1)
	d.Update(blockAddr, 1, interfaces.OpRead, false, 2)

	outcome := d.Update(blockAddr, 1, interfaces.OpWrite, true, 3)
	assert.True(t, outcome.NeedsWriteback)
	assert.True(t, outcome.InvalidateSet[0])

	entry, _ := d.Lookup(blockAddr)
	assert.Equal(t, StateModified, entry.State)
	assert.Equal(t, 1, entry.ModifierID)
}

func TestOwnedWriteByOwnerSkipsWriteback(t *testing.T) {
	d := New(nil, nil)
	d.Update(blockAddr, 0, interfaces.OpWrite, false, 1)
	d.Update(blockAddr, 1, interfaces.OpRead, false, 2)

	outcome := d.Update(blockAddr, 0, interfaces.OpWrite, true, 3)
	assert.False(t, outcome.NeedsWriteback)
	assert.True(t, outcome.InvalidateSet[1])
}

func TestImpossibleStateInvariantPanics(t *testing.T) {
	d := New(nil, nil)
	// Directly corrupt an entry to an invalid State value and confirm the
	// directory refuses to proceed rather than silently misbehaving.
	d.entries[blockAddr] = &Entry{State: State(99), Sharers: map[int]bool{0: true}}

	assert.Panics(t, func() {
		d.Update(blockAddr, 0, interfaces.OpRead, true, 1)
	})
}
