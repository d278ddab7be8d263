// Package metrics collects in-process counters and value series. The
// collector feeds the end-of-run report; it does not export anything.
package metrics

import (
	"sync"
	"time"
)

type Collector struct {
	mu       sync.Mutex
	series   map[string][]float64
	counters map[string]int
	start    time.Time
}

// SeriesStats summarizes one recorded value series.
type SeriesStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Sum   float64 `json:"sum"`
}

// Snapshot is the point-in-time view included in the run report.
type Snapshot struct {
	Metrics       map[string]SeriesStats `json:"metrics"`
	Counters      map[string]int         `json:"counters"`
	UptimeSeconds float64                `json:"uptime_seconds"`
}

func NewCollector() *Collector {
	return &Collector{
		series:   make(map[string][]float64),
		counters: make(map[string]int),
		start:    time.Now(),
	}
}

// Record appends a value to the named series.
func (c *Collector) Record(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.series[name] = append(c.series[name], value)
}

// Inc increments the named counter by one.
func (c *Collector) Inc(name string) {
	c.Add(name, 1)
}

// Add increments the named counter by n.
func (c *Collector) Add(name string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name] += n
}

// Counter returns the current value of the named counter.
func (c *Collector) Counter(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[name]
}

// SeriesStats summarizes the named series; zero value when unrecorded.
func (c *Collector) SeriesStats(name string) SeriesStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return summarize(c.series[name])
}

func summarize(values []float64) SeriesStats {
	if len(values) == 0 {
		return SeriesStats{}
	}
	s := SeriesStats{Count: len(values), Min: values[0], Max: values[0]}
	for _, v := range values {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
		s.Sum += v
	}
	s.Avg = s.Sum / float64(len(values))
	return s
}

func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Metrics:       make(map[string]SeriesStats, len(c.series)),
		Counters:      make(map[string]int, len(c.counters)),
		UptimeSeconds: time.Since(c.start).Seconds(),
	}
	for name, values := range c.series {
		snap.Metrics[name] = summarize(values)
	}
	for name, n := range c.counters {
		snap.Counters[name] = n
	}
	return snap
}

// Reset clears all series and counters and restarts the uptime clock.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.series = make(map[string][]float64)
	c.counters = make(map[string]int)
	c.start = time.Now()
}
