package moesi

import (
	"fmt"
	"io"
	"sync/atomic"
)

// CPUStats tracks per-CPU request counters.
type CPUStats struct {
	ReadHits    atomic.Uint64
	ReadMisses  atomic.Uint64
	WriteHits   atomic.Uint64
	WriteMisses atomic.Uint64
	Invalidated atomic.Uint64 // times the directory named this CPU in a peer's invalidate set
}

// CPUSnapshot is a point-in-time copy of CPUStats.
type CPUSnapshot struct {
	ReadHits    uint64
	ReadMisses  uint64
	WriteHits   uint64
	WriteMisses uint64
	Invalidated uint64
}

// Snapshot returns a point-in-time copy of s.
func (s *CPUStats) Snapshot() CPUSnapshot {
	return CPUSnapshot{
		ReadHits:    s.ReadHits.Load(),
		ReadMisses:  s.ReadMisses.Load(),
		WriteHits:   s.WriteHits.Load(),
		WriteMisses: s.WriteMisses.Load(),
		Invalidated: s.Invalidated.Load(),
	}
}

// TotalAccesses returns the number of requests this CPU issued.
func (snap CPUSnapshot) TotalAccesses() uint64 {
	return snap.ReadHits + snap.ReadMisses + snap.WriteHits + snap.WriteMisses
}

// HitRate returns the fraction of accesses that hit locally, or 0 when no
// accesses were recorded.
func (snap CPUSnapshot) HitRate() float64 {
	total := snap.TotalAccesses()
	if total == 0 {
		return 0
	}
	hits := snap.ReadHits + snap.WriteHits
	return float64(hits) / float64(total)
}

// BusStats tracks bus-wide coherence activity shared across all CPUs.
type BusStats struct {
	Acquisitions          atomic.Uint64
	TotalWaitCycles       atomic.Uint64 // sum of per-acquisition wait cycles
	CacheToCacheTransfers atomic.Uint64
}

// BusSnapshot is a point-in-time copy of BusStats.
type BusSnapshot struct {
	Acquisitions          uint64
	TotalWaitCycles       uint64
	CacheToCacheTransfers uint64
}

// AverageWaitCycles returns the mean bus-arbitration wait per acquisition,
// or 0 when no acquisitions were recorded.
func (snap BusSnapshot) AverageWaitCycles() float64 {
	if snap.Acquisitions == 0 {
		return 0
	}
	return float64(snap.TotalWaitCycles) / float64(snap.Acquisitions)
}

// Snapshot returns a point-in-time copy of s.
func (s *BusStats) Snapshot() BusSnapshot {
	return BusSnapshot{
		Acquisitions:          s.Acquisitions.Load(),
		TotalWaitCycles:       s.TotalWaitCycles.Load(),
		CacheToCacheTransfers: s.CacheToCacheTransfers.Load(),
	}
}

// Stats aggregates per-CPU and bus-wide simulation statistics. It
// implements the internal Observer contract and is safe for concurrent use
// by every CPU's agent goroutine.
type Stats struct {
	perCPU []*CPUStats
	bus    BusStats
}

// NewStats creates a Stats sized for numCPUs.
func NewStats(numCPUs int) *Stats {
	s := &Stats{perCPU: make([]*CPUStats, numCPUs)}
	for i := range s.perCPU {
		s.perCPU[i] = &CPUStats{}
	}
	return s
}

// CPU returns the per-CPU counters for cpu.
func (s *Stats) CPU(cpu int) *CPUStats {
	return s.perCPU[cpu]
}

// Bus returns the bus-wide counters.
func (s *Stats) Bus() *BusStats {
	return &s.bus
}

// Print writes a per-CPU hit/miss report followed by an aggregate bus
// statistics line, matching the statistics sink surface: four
// counter-incrementers per CPU, plus a bus print of total reads/writes,
// invalidations, acquisitions, and acquisition wait time.
func (s *Stats) Print(w io.Writer) {
	var totalReads, totalWrites, totalInvalidations uint64
	for cpu, c := range s.perCPU {
		snap := c.Snapshot()
		fmt.Fprintf(w, "cpu%d: read_hit=%d read_miss=%d write_hit=%d write_miss=%d invalidated=%d hit_rate=%.2f%%\n",
			cpu, snap.ReadHits, snap.ReadMisses, snap.WriteHits, snap.WriteMisses, snap.Invalidated, snap.HitRate()*100)
		totalReads += snap.ReadHits + snap.ReadMisses
		totalWrites += snap.WriteHits + snap.WriteMisses
		totalInvalidations += snap.Invalidated
	}

	busSnap := s.bus.Snapshot()
	fmt.Fprintf(w, "bus: total_reads=%d total_writes=%d total_invalidations=%d acquisitions=%d total_wait_cycles=%d avg_wait_cycles=%.2f cache_to_cache_transfers=%d\n",
		totalReads, totalWrites, totalInvalidations, busSnap.Acquisitions, busSnap.TotalWaitCycles, busSnap.AverageWaitCycles(), busSnap.CacheToCacheTransfers)
}

func (s *Stats) ObserveReadHit(cpu int)    { s.perCPU[cpu].ReadHits.Add(1) }
func (s *Stats) ObserveReadMiss(cpu int)   { s.perCPU[cpu].ReadMisses.Add(1) }
func (s *Stats) ObserveWriteHit(cpu int)   { s.perCPU[cpu].WriteHits.Add(1) }
func (s *Stats) ObserveWriteMiss(cpu int)  { s.perCPU[cpu].WriteMisses.Add(1) }
func (s *Stats) ObserveInvalidation(cpu int) {
	s.perCPU[cpu].Invalidated.Add(1)
}
func (s *Stats) ObserveCacheToCacheTransfer(src, dst int) {
	s.bus.CacheToCacheTransfers.Add(1)
}
func (s *Stats) ObserveBusAcquisition(cpu int, waitCycles uint64) {
	s.bus.Acquisitions.Add(1)
	s.bus.TotalWaitCycles.Add(waitCycles)
}

// NoOpObserver discards every event. Run does not use it by default: without
// an explicit Observer, Run installs a Stats.
type NoOpObserver struct{}

func (NoOpObserver) ObserveReadHit(int)                  {}
func (NoOpObserver) ObserveReadMiss(int)                 {}
func (NoOpObserver) ObserveWriteHit(int)                 {}
func (NoOpObserver) ObserveWriteMiss(int)                {}
func (NoOpObserver) ObserveInvalidation(int)             {}
func (NoOpObserver) ObserveCacheToCacheTransfer(int, int) {}
func (NoOpObserver) ObserveBusAcquisition(int, uint64)   {}

// Observer receives coherence and cache events as a simulation runs.
type Observer interface {
	ObserveReadHit(cpu int)
	ObserveReadMiss(cpu int)
	ObserveWriteHit(cpu int)
	ObserveWriteMiss(cpu int)
	ObserveInvalidation(cpu int)
	ObserveCacheToCacheTransfer(src, dst int)
	ObserveBusAcquisition(cpu int, waitCycles uint64)
}

var (
	_ Observer = (*Stats)(nil)
	_ Observer = NoOpObserver{}
)
