package main

import "testing"

func TestBlinktreeInsertAndVerify(t *testing.T) {
	if err := runBlinktree(2000, 1); err != nil {
		t.Fatalf("blinktree demo failed: %v", err)
	}
}

func TestRadixJoinMatchesExpectedTotals(t *testing.T) {
	if err := runRadixJoin(10_000, 2, 8); err != nil {
		t.Fatalf("radix join demo failed: %v", err)
	}
}

func TestGraphDemoRunsInDependencyOrder(t *testing.T) {
	if err := runGraphDemo(2); err != nil {
		t.Fatalf("graph demo failed: %v", err)
	}
}
