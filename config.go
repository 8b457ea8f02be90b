package moesi

import "github.com/cachesim/moesi-sim/internal/constants"

// Config configures a Simulation: cache geometry, CPU count, and timing
// parameters. The zero value is not valid; use DefaultConfig and override
// only the fields a caller needs to change.
//
// Run checks every field with Validate but reads only NumCPUs. The cache
// geometry and timing actually simulated are the fixed values in
// internal/constants (those DefaultConfig returns); other values of the
// geometry and timing fields do not change the simulation.
type Config struct {
	// NumCPUs is the number of cache agents to simulate. If 0, it is
	// inferred from the trace's NumCPUs().
	NumCPUs int

	// Cache geometry, in bytes/lines. All four must agree:
	// CacheSize == LineSize * Assoc * NSets.
	CacheSize int
	LineSize  int
	Assoc     int
	NSets     int

	// Timing, in simulated cycles.
	LocalHitCycles        int
	BusArbMinWaitCycles   int
	MemFetchLatencyCycles int
	WritebackLatencyCycles int
}

// DefaultConfig returns the geometry and timing parameters: a 32KB,
// 8-way set-associative cache with 32-byte lines, a 1-cycle local hit, a
// 100-cycle memory fetch, and a 100-cycle writeback.
func DefaultConfig() Config {
	return Config{
		NumCPUs:                constants.DefaultNumCPUs,
		CacheSize:               constants.CacheSize,
		LineSize:                constants.LineSize,
		Assoc:                   constants.Assoc,
		NSets:                   constants.NSets,
		LocalHitCycles:          constants.LocalHitCycles,
		BusArbMinWaitCycles:     constants.BusArbMinWaitCycles,
		MemFetchLatencyCycles:   constants.MemFetchLatencyCycles,
		WritebackLatencyCycles:  constants.WritebackLatencyCycles,
	}
}

// Validate checks that the cache geometry is internally consistent and
// every timing parameter is non-negative.
func (c Config) Validate() error {
	if c.CacheSize != c.LineSize*c.Assoc*c.NSets {
		return NewError("Validate", ErrCodeConfig, "cache size does not equal line_size * assoc * n_sets")
	}
	if c.LineSize <= 0 || (c.LineSize&(c.LineSize-1)) != 0 {
		return NewError("Validate", ErrCodeConfig, "line size must be a positive power of two")
	}
	if c.NSets <= 0 || (c.NSets&(c.NSets-1)) != 0 {
		return NewError("Validate", ErrCodeConfig, "number of sets must be a positive power of two")
	}
	if c.Assoc <= 0 {
		return NewError("Validate", ErrCodeConfig, "associativity must be positive")
	}
	if c.LocalHitCycles < 0 || c.BusArbMinWaitCycles < 0 || c.MemFetchLatencyCycles < 0 || c.WritebackLatencyCycles < 0 {
		return NewError("Validate", ErrCodeConfig, "timing parameters must be non-negative")
	}
	return nil
}
