// Package resourceguard samples process CPU% and resident memory, one
// reading per Check(), used by the scheduler's tick loop to throttle
// admission when the process exceeds configured ceilings.
package resourceguard

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Sample is one CPU%/memory-MB reading.
type Sample struct {
	CPUPercent float64
	MemoryMB   float64
}

// Guard samples process resource usage and checks it against ceilings.
// No smoothing: the scheduler polls at tick cadence and sleeps on
// failure rather than sub-sampling.
type Guard struct {
	cpuLimitPercent float64
	memoryLimitMB   float64

	mu       sync.Mutex
	lastCPU  cpuTimes
	lastWall time.Time
}

// New constructs a Guard with the given ceilings.
func New(cpuLimitPercent, memoryLimitMB float64) *Guard {
	return &Guard{cpuLimitPercent: cpuLimitPercent, memoryLimitMB: memoryLimitMB}
}

// Check samples the process and returns ok iff both cpu% and
// memory-MB are within their configured ceilings.
func (g *Guard) Check(ctx context.Context) (bool, error) {
	s, err := g.Sample()
	if err != nil {
		return false, err
	}
	ok := s.CPUPercent <= g.cpuLimitPercent && s.MemoryMB <= g.memoryLimitMB
	return ok, nil
}

// Sample takes a single CPU%/memory-MB reading.
func (g *Guard) Sample() (Sample, error) {
	mem := memoryMB()

	cpu, err := g.cpuPercent()
	if err != nil {
		// CPU sampling is best-effort on non-Linux platforms; fall
		// back to a goroutine-scaled estimate rather than failing.
		cpu = goroutineEstimate()
	}

	return Sample{CPUPercent: cpu, MemoryMB: mem}, nil
}

func memoryMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.Sys) / (1024 * 1024)
}

func goroutineEstimate() float64 {
	// There is no portable process-CPU API without cgo; approximate
	// load by goroutine count relative to GOMAXPROCS as a coarse
	// signal.
	return float64(runtime.NumGoroutine()) / float64(runtime.GOMAXPROCS(0)) * 10
}

type cpuTimes struct {
	utime int64
	stime int64
}

// cpuPercent reads /proc/self/stat once per call and derives a CPU
// utilization percentage from the delta against the previous call's
// reading (Linux only); the first call returns 0.
func (g *Guard) cpuPercent() (float64, error) {
	if runtime.GOOS != "linux" {
		return 0, fmt.Errorf("cpu sampling unsupported on %s", runtime.GOOS)
	}

	now := time.Now()
	cur, err := readProcSelfStat()
	if err != nil {
		return 0, err
	}

	g.mu.Lock()
	prev, prevWall := g.lastCPU, g.lastWall
	g.lastCPU, g.lastWall = cur, now
	g.mu.Unlock()

	if prevWall.IsZero() {
		return 0, nil // first sample has no delta to compare against
	}

	clockTicksPerSec := 100.0 // USER_HZ; standard Linux value
	deltaTicks := float64((cur.utime + cur.stime) - (prev.utime + prev.stime))
	deltaWall := now.Sub(prevWall).Seconds()
	if deltaWall <= 0 {
		return 0, nil
	}

	cpuSeconds := deltaTicks / clockTicksPerSec
	return (cpuSeconds / deltaWall) * 100.0 * float64(runtime.NumCPU()), nil
}

func readProcSelfStat() (cpuTimes, error) {
	f, err := os.Open("/proc/self/stat")
	if err != nil {
		return cpuTimes{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 4096), 4096)
	if !scanner.Scan() {
		return cpuTimes{}, fmt.Errorf("empty /proc/self/stat")
	}
	line := scanner.Text()

	// Fields after the process name (which may contain spaces/parens)
	// start right after the last ')'.
	end := strings.LastIndex(line, ")")
	if end == -1 {
		return cpuTimes{}, fmt.Errorf("malformed /proc/self/stat")
	}
	fields := strings.Fields(line[end+1:])
	// utime is field 14, stime is field 15 overall; the slice after
	// ')' starts at state (field 3), so utime=index 11, stime=12.
	const utimeIdx, stimeIdx = 11, 12
	if len(fields) <= stimeIdx {
		return cpuTimes{}, fmt.Errorf("unexpected /proc/self/stat field count")
	}
	utime, err := strconv.ParseInt(fields[utimeIdx], 10, 64)
	if err != nil {
		return cpuTimes{}, err
	}
	stime, err := strconv.ParseInt(fields[stimeIdx], 10, 64)
	if err != nil {
		return cpuTimes{}, err
	}
	return cpuTimes{utime: utime, stime: stime}, nil
}
