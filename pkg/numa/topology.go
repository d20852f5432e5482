// Package numa discovers the NUMA topology of the host and provides
// best-effort CPU pinning and memory-node binding on top of it. No
// operation degrades silently when the underlying OS facility is
// unavailable: Discover marks a fallback topology Degraded with the
// reason in DegradedWhy, and pinning and binding report an error to
// their caller. The package itself logs nothing; the allocator and
// worker runtime decide how to record a placement request that was not
// honored.
package numa

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

// CPU describes one logical CPU as seen by the process.
type CPU struct {
	ID   int
	Node int
}

// Topology is the set of logical CPUs available to the runtime, grouped
// by NUMA node.
type Topology struct {
	CPUs        []CPU
	NodeCPUs    map[int][]int
	Degraded    bool // true when sysfs NUMA info was unavailable
	DegradedWhy string
}

const sysNodeDir = "/sys/devices/system/node"

// Discover builds a Topology from sysfs, falling back to a single
// synthetic NUMA node spanning every GOMAXPROCS-visible CPU when sysfs is
// absent (containers, non-Linux hosts, restricted sandboxes).
func Discover() *Topology {
	entries, err := os.ReadDir(sysNodeDir)
	if err != nil {
		return fallbackTopology(fmt.Sprintf("reading %s: %v", sysNodeDir, err))
	}

	nodeDirRe := regexp.MustCompile(`^node(\d+)$`)
	topo := &Topology{NodeCPUs: make(map[int][]int)}

	for _, e := range entries {
		m := nodeDirRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		nodeID, _ := strconv.Atoi(m[1])
		cpus, err := readCPUList(filepath.Join(sysNodeDir, e.Name(), "cpulist"))
		if err != nil {
			continue
		}
		for _, cpu := range cpus {
			topo.CPUs = append(topo.CPUs, CPU{ID: cpu, Node: nodeID})
			topo.NodeCPUs[nodeID] = append(topo.NodeCPUs[nodeID], cpu)
		}
	}

	if len(topo.CPUs) == 0 {
		return fallbackTopology("no node*/cpulist entries found under " + sysNodeDir)
	}

	sort.Slice(topo.CPUs, func(i, j int) bool { return topo.CPUs[i].ID < topo.CPUs[j].ID })
	return topo
}

func fallbackTopology(why string) *Topology {
	n := runtime.NumCPU()
	topo := &Topology{
		NodeCPUs:    map[int][]int{0: make([]int, n)},
		Degraded:    true,
		DegradedWhy: why,
	}
	for i := 0; i < n; i++ {
		topo.CPUs = append(topo.CPUs, CPU{ID: i, Node: 0})
		topo.NodeCPUs[0][i] = i
	}
	return topo
}

// readCPUList parses a Linux cpulist range expression such as
// "0-3,8,10-11" into a sorted slice of CPU ids.
func readCPUList(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var out []int
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		for _, part := range strings.Split(line, ",") {
			if part == "" {
				continue
			}
			if lo, hi, ok := strings.Cut(part, "-"); ok {
				loN, err1 := strconv.Atoi(lo)
				hiN, err2 := strconv.Atoi(hi)
				if err1 != nil || err2 != nil {
					continue
				}
				for c := loN; c <= hiN; c++ {
					out = append(out, c)
				}
			} else {
				c, err := strconv.Atoi(part)
				if err != nil {
					continue
				}
				out = append(out, c)
			}
		}
	}
	return out, scanner.Err()
}

// NodeOf returns the NUMA node owning cpuID, or -1 if unknown.
func (t *Topology) NodeOf(cpuID int) int {
	for _, c := range t.CPUs {
		if c.ID == cpuID {
			return c.Node
		}
	}
	return -1
}

// Nodes returns the sorted list of NUMA node ids present in the
// topology.
func (t *Topology) Nodes() []int {
	nodes := make([]int, 0, len(t.NodeCPUs))
	for n := range t.NodeCPUs {
		nodes = append(nodes, n)
	}
	sort.Ints(nodes)
	return nodes
}

// NumCPU is the number of logical CPUs in the topology.
func (t *Topology) NumCPU() int { return len(t.CPUs) }
