package moesi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsInconsistentGeometry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheSize = cfg.CacheSize + 1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPowerOfTwoLineSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LineSize = 30
	cfg.CacheSize = cfg.LineSize * cfg.Assoc * cfg.NSets
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativeTiming(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemFetchLatencyCycles = -1
	assert.Error(t, cfg.Validate())
}
