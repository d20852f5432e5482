// Command mxbench drives a mxtasking runtime through a handful of
// demonstration workloads. It is a correctness harness, not a
// benchmark suite: each subcommand exercises one architectural corner
// (a latched/optimistic resource, a partitioned dataflow join, a
// dependent pipeline chain) and reports whether the runtime's
// invariants held, the way the teacher's own node CLI reports cluster
// status rather than raw throughput numbers.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "mxbench",
		Short:   "Demonstration workloads for the mxtasking runtime",
		Version: version,
		Long: `mxbench drives a mxtasking runtime through demonstration workloads
that exercise its NUMA-aware allocator, synchronization selector, and
dataflow graph.

Quick start:
  mxbench start                 # boot a runtime and its admin/metrics endpoints
  mxbench blinktree --keys 1000 # tagged-resource insert/read-back demo
  mxbench radixjoin --n 100000  # partitioned sum-reduce demo
  mxbench graph-demo            # three-stage dependent pipeline demo`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: search . ./config /etc/mxtasking)")

	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(blinktreeCmd())
	rootCmd.AddCommand(radixJoinCmd())
	rootCmd.AddCommand(graphDemoCmd())
	rootCmd.AddCommand(configInitCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}
