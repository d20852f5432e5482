package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/khryptorgraphics/mxtasking/pkg/dataflow"
	"github.com/khryptorgraphics/mxtasking/pkg/tasking"
)

// tuple is one row of either the build-side or probe-side relation.
type tuple struct {
	key   int64
	value int64
}

func radixJoinCmd() *cobra.Command {
	var n int
	var workers int
	var partitions int

	cmd := &cobra.Command{
		Use:   "radixjoin",
		Short: "Partition and sum a build/probe relation pair, verifying against the known total",
		Long: `Builds R = {(i, i) | i in 1..N} and S = {(i, -i) | i in 1..N}, radix-partitions
both relations by key, sums every partition's keys through a reduce
tree driven by the dataflow package, and checks the grand total
against sum(R.key) + sum(S.key) and the tuple count against |R| + |S|.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRadixJoin(n, workers, partitions)
		},
	}
	cmd.Flags().IntVar(&n, "n", 1_000_000, "relation size N")
	cmd.Flags().IntVar(&workers, "workers", 4, "worker count")
	cmd.Flags().IntVar(&partitions, "partitions", 16, "number of radix partitions")
	return cmd
}

func runRadixJoin(n, workers, partitions int) error {
	topo := flatTopology(workers)
	rt := tasking.New(tasking.Config{WorkerCount: workers, MaintenanceInterval: 256}, topo)
	if err := rt.Start(); err != nil {
		return err
	}
	defer func() {
		rt.Stop()
		_ = rt.Release()
	}()

	buckets := partitionRelations(n, partitions)

	partitionSums := make([]int64, partitions)
	partitionCounts := make([]int, partitions)
	for p, bucket := range buckets {
		var sum int64
		for _, t := range bucket {
			sum += t.key
		}
		partitionSums[p] = sum
		partitionCounts[p] = len(bucket)
	}

	resultCh := dataflow.SpawnReduceTree(rt, 0, partitionSums, func(a, b int64) int64 { return a + b })
	total := <-resultCh

	var tupleCount int
	for _, c := range partitionCounts {
		tupleCount += c
	}

	wantSum := 2 * sumRange(n) // sum(R.key) + sum(S.key): both relations key on i, not on the value column
	wantCount := 2 * n

	fmt.Fprintln(os.Stdout, color.GreenString("radix join: %d partitions, %d total tuples", partitions, tupleCount))
	if total == wantSum && tupleCount == wantCount {
		fmt.Fprintln(os.Stdout, color.GreenString("verification passed: partition sum %d matches expected %d, tuple count matches", total, wantSum))
		return nil
	}
	return fmt.Errorf("verification failed: got sum=%d count=%d, want sum=%d count=%d", total, tupleCount, wantSum, wantCount)
}

// partitionRelations builds R and S and radix-partitions their union by
// key, as a single call executed on the calling goroutine: the
// partitioning pass itself is a one-shot fan-in that the rest of the
// demo's reduce tree runs concurrently over.
func partitionRelations(n, partitions int) [][]tuple {
	buckets := make([][]tuple, partitions)
	for i := 1; i <= n; i++ {
		r := tuple{key: int64(i), value: int64(i)}
		s := tuple{key: int64(i), value: int64(-i)}
		buckets[radixOf(r.key, partitions)] = append(buckets[radixOf(r.key, partitions)], r)
		buckets[radixOf(s.key, partitions)] = append(buckets[radixOf(s.key, partitions)], s)
	}
	return buckets
}

func radixOf(key int64, partitions int) int {
	return int(key) % partitions
}

func sumRange(n int) int64 {
	return int64(n) * int64(n+1) / 2
}
