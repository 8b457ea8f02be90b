package moesi

import (
	"testing"

	"github.com/cachesim/moesi-sim/internal/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheSize = 1
	src := NewMockTraceSource([][]interfaces.TraceEntry{{}})

	_, err := Run(src, cfg, nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeConfig))
}

func TestRunInfersNumCPUsFromTrace(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumCPUs = 0
	src := NewMockTraceSource([][]interfaces.TraceEntry{
		{Read(0x100)},
		{Read(0x200)},
		{Read(0x300)},
	})

	sim, err := Run(src, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, sim.NumCPUs())
}

func TestRunCollectsDefaultStats(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumCPUs = 1
	src := NewMockTraceSource([][]interfaces.TraceEntry{
		{Read(0x100), Read(0x100)},
	})

	sim, err := Run(src, cfg, nil)
	require.NoError(t, err)

	snap := sim.Stats.CPU(0).Snapshot()
	assert.Equal(t, uint64(1), snap.ReadMisses)
	assert.Equal(t, uint64(1), snap.ReadHits)
	assert.NotZero(t, sim.TotalCycles)
}

func TestRunReportsAlignmentViolation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumCPUs = 1
	src := NewMockTraceSource([][]interfaces.TraceEntry{
		{Read(0x101)},
	})

	_, err := Run(src, cfg, nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeAlignment))
}

func TestRunUsesCustomObserver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumCPUs = 1
	src := NewMockTraceSource([][]interfaces.TraceEntry{
		{Read(0x100)},
	})
	custom := NewStats(1)

	sim, err := Run(src, cfg, &Options{Observer: custom})
	require.NoError(t, err)
	assert.Nil(t, sim.Stats)
	assert.Equal(t, uint64(1), custom.CPU(0).Snapshot().ReadMisses)
}
