// Command moesi-sim replays a multiprocessor memory-access trace against a
// MOESI cache-coherence simulation and prints per-CPU and bus statistics.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cachesim/moesi-sim"
	"github.com/cachesim/moesi-sim/internal/logging"
	"github.com/cachesim/moesi-sim/internal/tracefile"
)

func main() {
	pinCPUs := flag.String("pin-cpus", "", "comma-separated OS CPU ids to pin simulated CPUs to, round-robin (e.g. 0,1,2,3)")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: moesi-sim <trace-file> [verbosity]")
		os.Exit(1)
	}
	tracePath := args[0]

	verbose := true
	if len(args) >= 2 {
		v, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "moesi-sim: invalid verbosity %q: %v\n", args[1], err)
			os.Exit(1)
		}
		verbose = v != 0
	}

	logConfig := logging.DefaultConfig()
	if !verbose {
		logConfig.Level = logging.LevelWarn
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	pins, err := parsePinCPUs(*pinCPUs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "moesi-sim: %v\n", err)
		os.Exit(1)
	}

	trace, err := tracefile.Load(tracePath)
	if err != nil {
		logger.Error("failed to load trace", "path", tracePath, "error", err)
		os.Exit(1)
	}

	cfg := moesi.DefaultConfig()
	cfg.NumCPUs = trace.NumCPUs()
	sim, err := moesi.Run(trace, cfg, &moesi.Options{Logger: logger, PinCPUs: pins})
	if err != nil {
		logger.Error("simulation aborted", "error", err)
		os.Exit(1)
	}

	logger.Info("simulation complete", "total_cycles", sim.TotalCycles, "num_cpus", sim.NumCPUs())
	if sim.Stats != nil {
		sim.Stats.Print(os.Stdout)
	}
}

// parsePinCPUs parses a comma-separated list of OS CPU ids, or returns nil
// for an empty string.
func parsePinCPUs(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	cpus := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("invalid -pin-cpus entry %q: %w", f, err)
		}
		cpus = append(cpus, n)
	}
	return cpus, nil
}
