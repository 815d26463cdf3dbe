// Package profiler - per-stage timing for the detection pipeline.
package profiler

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// DefaultMaxSamples is the number of recent durations kept per operation.
const DefaultMaxSamples = 600

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	name      string
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// OperationStats is a snapshot of one operation's timings.
type OperationStats struct {
	Name  string        `json:"name"`
	Count int64         `json:"count"`
	Avg   time.Duration `json:"avg_ns"`
	Min   time.Duration `json:"min_ns"`
	Max   time.Duration `json:"max_ns"`
}

// StageTimer records how long named operations take. It is safe for
// concurrent use. A nil *StageTimer still measures durations but records
// nothing.
type StageTimer struct {
	mu             sync.RWMutex
	maxSamples     int
	operationTimes map[string]*TimeTracker
}

// NewStageTimer creates a timer keeping up to maxSamples durations per
// operation for the running average. Zero selects DefaultMaxSamples.
//
// Arguments:
//   - maxSamples: Window size for the average.
//
// Returns:
//   - *StageTimer: The timer.
func NewStageTimer(maxSamples int) *StageTimer {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &StageTimer{
		maxSamples:     maxSamples,
		operationTimes: make(map[string]*TimeTracker),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - A function to call when the operation completes. It records and
//     returns the elapsed time.
func (st *StageTimer) StartOperation(name string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		duration := time.Since(start)
		st.Record(name, duration)
		return duration
	}
}

// Record adds a completed operation duration.
func (st *StageTimer) Record(name string, duration time.Duration) {
	if st == nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	tracker, exists := st.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{
			name:    name,
			minTime: duration,
			maxTime: duration,
		}
		st.operationTimes[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	if len(tracker.durations) > st.maxSamples {
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}

	tracker.totalTime += duration
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Stats returns a snapshot of every operation, sorted by name.
func (st *StageTimer) Stats() []OperationStats {
	if st == nil {
		return nil
	}

	st.mu.RLock()
	defer st.mu.RUnlock()

	stats := make([]OperationStats, 0, len(st.operationTimes))
	for name, tracker := range st.operationTimes {
		if len(tracker.durations) == 0 {
			continue
		}
		stats = append(stats, OperationStats{
			Name:  name,
			Count: tracker.count,
			Avg:   tracker.totalTime / time.Duration(len(tracker.durations)),
			Min:   tracker.minTime,
			Max:   tracker.maxTime,
		})
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Report writes a human-readable summary of the operation timings.
func (st *StageTimer) Report(w io.Writer) {
	stats := st.Stats()
	if len(stats) == 0 {
		return
	}

	fmt.Fprintf(w, "OPERATION TIMINGS:\n")
	for _, s := range stats {
		fmt.Fprintf(w, "  %s: avg=%v, min=%v, max=%v, count=%d\n",
			s.Name,
			s.Avg.Truncate(time.Microsecond),
			s.Min.Truncate(time.Microsecond),
			s.Max.Truncate(time.Microsecond),
			s.Count)
	}
}
