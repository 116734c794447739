// Package profiler - Lightweight throughput and latency tracking for the
// detection pipeline.
package profiler

import (
	"log"
	"runtime"
	"sort"
	"sync"
	"time"
)

// StageProfiler accumulates per-frame timings for the named pipeline stages
// (inference, decode, suppression, ...) and reports throughput periodically.
// It is safe for concurrent use.
type StageProfiler struct {
	mu        sync.Mutex
	startTime time.Time
	frames    int64
	stages    map[string]*stageStats

	reportInterval time.Duration
	lastReport     time.Time
}

type stageStats struct {
	durations []time.Duration
	total     time.Duration
	min       time.Duration
	max       time.Duration
	count     int64
}

// New creates a profiler. A zero reportInterval disables periodic reports;
// timings are still accumulated for Snapshot.
func New(reportInterval time.Duration) *StageProfiler {
	now := time.Now()
	return &StageProfiler{
		startTime:      now,
		stages:         make(map[string]*stageStats),
		reportInterval: reportInterval,
		lastReport:     now,
	}
}

// Track records the duration of one stage execution. Use with defer:
//
//	defer p.Track("inference")()
func (p *StageProfiler) Track(stage string) func() {
	start := time.Now()
	return func() {
		p.record(stage, time.Since(start))
	}
}

// FrameDone marks one frame as fully processed and emits a periodic report
// when the report interval has elapsed.
func (p *StageProfiler) FrameDone() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frames++
	if p.reportInterval <= 0 || time.Since(p.lastReport) < p.reportInterval {
		return
	}
	p.lastReport = time.Now()

	elapsed := time.Since(p.startTime).Seconds()
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	log.Printf("📊 %d frames in %.1fs (%.1f fps), heap %.1f MiB, goroutines %d",
		p.frames, elapsed, float64(p.frames)/elapsed,
		float64(mem.HeapAlloc)/(1024*1024), runtime.NumGoroutine())
	for name, stats := range p.stages {
		log.Printf("   %s: avg %s, min %s, max %s, p95 %s",
			name, stats.avg(), stats.min, stats.max, stats.percentile(0.95))
	}
}

// StageReport summarizes one stage for Snapshot.
type StageReport struct {
	Name  string
	Count int64
	Avg   time.Duration
	Min   time.Duration
	Max   time.Duration
	P95   time.Duration
}

// Snapshot returns the frame count and per-stage summaries, sorted by stage
// name.
func (p *StageProfiler) Snapshot() (frames int64, reports []StageReport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.stages))
	for name := range p.stages {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		stats := p.stages[name]
		reports = append(reports, StageReport{
			Name:  name,
			Count: stats.count,
			Avg:   stats.avg(),
			Min:   stats.min,
			Max:   stats.max,
			P95:   stats.percentile(0.95),
		})
	}
	return p.frames, reports
}

func (p *StageProfiler) record(stage string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats, ok := p.stages[stage]
	if !ok {
		stats = &stageStats{min: d, max: d}
		p.stages[stage] = stats
	}

	stats.durations = append(stats.durations, d)
	stats.total += d
	stats.count++
	if d < stats.min {
		stats.min = d
	}
	if d > stats.max {
		stats.max = d
	}

	// Bound memory for long-running pipelines.
	const maxSamples = 4096
	if len(stats.durations) > maxSamples {
		stats.durations = stats.durations[len(stats.durations)-maxSamples:]
	}
}

func (s *stageStats) avg() time.Duration {
	if s.count == 0 {
		return 0
	}
	return s.total / time.Duration(s.count)
}

func (s *stageStats) percentile(q float64) time.Duration {
	if len(s.durations) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), s.durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}
