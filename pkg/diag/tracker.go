package diag

import (
	"sort"
	"sync"
	"time"
)

// Defaults bounding the tracker.
const (
	// DefaultHistoryWindow is how much activity history is retained.
	DefaultHistoryWindow = 5 * time.Minute

	// DefaultActivityWindow is the window rolling rates average over.
	DefaultActivityWindow = 10 * time.Second

	// DefaultBucket is the timeline bucket width.
	DefaultBucket = time.Second

	// MaxSamples bounds memory when a guest floods batches faster
	// than the history window trims.
	MaxSamples = 2000
)

// Sample is one batch-flush observation.
type Sample struct {
	At            time.Time
	BatchID       uint64
	Ops           int
	Applied       int
	Skipped       int
	Failed        int
	ApplyDuration time.Duration
	Bytes         int // structural JSON length; -1 when not serializable
	Growth        int // nodes created minus nodes deleted
	OpsByType     map[string]int
	SkippedByType map[string]int
	NodeTypeOps   map[string]int // op counts attributed to node types
}

// BatchRecord is a sample rendered for snapshots.
type BatchRecord struct {
	BatchID    uint64  `json:"batchId"`
	At         int64   `json:"at"` // unix milliseconds
	Ops        int     `json:"ops"`
	Applied    int     `json:"applied"`
	Skipped    int     `json:"skipped"`
	Failed     int     `json:"failed"`
	DurationMs float64 `json:"durationMs"`
	Bytes      int     `json:"bytes"`
	Growth     int     `json:"growth"`
}

// EventRecord describes the last host or guest event seen.
type EventRecord struct {
	Name  string `json:"name"`
	At    int64  `json:"at"`
	Bytes int    `json:"bytes"` // -1 when the payload was not serializable
}

// TimelinePoint is one fixed-width bucket of the activity timeline.
type TimelinePoint struct {
	StartMs int64 `json:"startMs"` // offset from window start
	Ops     int   `json:"ops"`
	Batches int   `json:"batches"`
	Skipped int   `json:"skipped"`
	Failed  int   `json:"failed"`
}

// Timeline is the bucketized history. Buckets are left-open,
// right-closed: a sample at exactly a bucket boundary lands in the
// earlier bucket.
type Timeline struct {
	WindowMs int64           `json:"windowMs"`
	BucketMs int64           `json:"bucketMs"`
	Points   []TimelinePoint `json:"points"`
}

// Activity is the windowed view of batch traffic.
type Activity struct {
	WindowMs         int64        `json:"windowMs"`
	OpsPerSecond     float64      `json:"opsPerSecond"`
	BatchesPerSecond float64      `json:"batchesPerSecond"`
	TotalBatches     uint64       `json:"totalBatches"`
	TotalOps         uint64       `json:"totalOps"`
	LastBatch        *BatchRecord `json:"lastBatch,omitempty"`
	Timeline         Timeline     `json:"timeline"`
}

// TypeCount pairs a type name with a count, for top-N rankings.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// WorstBatches are the four attribution picks over the window.
type WorstBatches struct {
	Largest     *BatchRecord `json:"largest,omitempty"`
	Slowest     *BatchRecord `json:"slowest,omitempty"`
	MostSkipped *BatchRecord `json:"mostSkipped,omitempty"`
	MostGrowth  *BatchRecord `json:"mostGrowth,omitempty"`
}

// Attribution identifies offenders over the activity window.
type Attribution struct {
	WindowMs              int64          `json:"windowMs"`
	OpsByType             map[string]int `json:"opsByType"`
	SkippedByType         map[string]int `json:"skippedByType"`
	TopNodeTypesByOps     []TypeCount    `json:"topNodeTypesByOps"`
	TopNodeTypesBySkipped []TypeCount    `json:"topNodeTypesBySkipped"`
	Worst                 WorstBatches   `json:"worstBatches"`
}

// Config tunes a Tracker. Zero values take the package defaults.
type Config struct {
	HistoryWindow  time.Duration
	ActivityWindow time.Duration
	Bucket         time.Duration
	TopN           int
}

// Tracker keeps the rolling activity history for one engine.
type Tracker struct {
	mu             sync.Mutex
	cfg            Config
	samples        []Sample
	totalBatches   uint64
	totalOps       uint64
	lastHostEvent  *EventRecord
	lastGuestEvent *EventRecord
}

// NewTracker creates a tracker.
func NewTracker(cfg Config) *Tracker {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.ActivityWindow <= 0 {
		cfg.ActivityWindow = DefaultActivityWindow
	}
	if cfg.Bucket <= 0 {
		cfg.Bucket = DefaultBucket
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	return &Tracker{cfg: cfg}
}

// Record appends one sample and trims history outside the window.
func (t *Tracker) Record(s Sample) {
	if s.At.IsZero() {
		s.At = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = append(t.samples, s)
	t.totalBatches++
	t.totalOps += uint64(s.Ops)
	t.trim(s.At)
}

// RecordHostEvent notes a Host→Guest event.
func (t *Tracker) RecordHostEvent(name string, bytes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastHostEvent = &EventRecord{Name: name, At: time.Now().UnixMilli(), Bytes: bytes}
}

// RecordGuestEvent notes a Guest→Host event.
func (t *Tracker) RecordGuestEvent(name string, bytes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastGuestEvent = &EventRecord{Name: name, At: time.Now().UnixMilli(), Bytes: bytes}
}

// LastHostEvent returns the most recent Host→Guest event, or nil.
func (t *Tracker) LastHostEvent() *EventRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastHostEvent
}

// LastGuestEvent returns the most recent Guest→Host event, or nil.
func (t *Tracker) LastGuestEvent() *EventRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastGuestEvent
}

// trim drops samples older than the history window, then enforces the
// hard cap.
func (t *Tracker) trim(now time.Time) {
	cutoff := now.Add(-t.cfg.HistoryWindow)
	drop := 0
	for drop < len(t.samples) && t.samples[drop].At.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		t.samples = append(t.samples[:0], t.samples[drop:]...)
	}
	if excess := len(t.samples) - MaxSamples; excess > 0 {
		t.samples = append(t.samples[:0], t.samples[excess:]...)
	}
}

// SampleCount returns the retained history length.
func (t *Tracker) SampleCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}

// Snapshot computes the windowed activity and attribution views as of
// now.
func (t *Tracker) Snapshot(now time.Time) (Activity, Attribution) {
	t.mu.Lock()
	defer t.mu.Unlock()

	window := t.cfg.ActivityWindow
	cutoff := now.Add(-window)
	var inWindow []Sample
	for i := range t.samples {
		if !t.samples[i].At.Before(cutoff) {
			inWindow = t.samples[i:]
			break
		}
	}

	activity := Activity{
		WindowMs:     window.Milliseconds(),
		TotalBatches: t.totalBatches,
		TotalOps:     t.totalOps,
		Timeline:     t.timeline(now, inWindow),
	}
	var windowOps int
	for i := range inWindow {
		windowOps += inWindow[i].Ops
	}
	secs := window.Seconds()
	if secs > 0 {
		activity.OpsPerSecond = float64(windowOps) / secs
		activity.BatchesPerSecond = float64(len(inWindow)) / secs
	}
	if n := len(t.samples); n > 0 {
		activity.LastBatch = record(t.samples[n-1])
	}

	return activity, t.attribution(window, inWindow)
}

// timeline bucketizes the window's samples.
func (t *Tracker) timeline(now time.Time, inWindow []Sample) Timeline {
	window := t.cfg.ActivityWindow
	bucket := t.cfg.Bucket
	n := int(window / bucket)
	if n <= 0 {
		n = 1
	}
	points := make([]TimelinePoint, n)
	for i := range points {
		points[i].StartMs = int64(i) * bucket.Milliseconds()
	}
	windowStart := now.Add(-window)
	for i := range inWindow {
		s := &inWindow[i]
		offset := s.At.Sub(windowStart)
		// Left-open, right-closed: boundary samples land earlier.
		idx := int((offset + bucket - 1) / bucket)
		idx--
		if idx < 0 {
			idx = 0
		}
		if idx >= n {
			idx = n - 1
		}
		points[idx].Ops += s.Ops
		points[idx].Batches++
		points[idx].Skipped += s.Skipped
		points[idx].Failed += s.Failed
	}
	return Timeline{WindowMs: window.Milliseconds(), BucketMs: bucket.Milliseconds(), Points: points}
}

// attribution aggregates offenders over the window's samples.
func (t *Tracker) attribution(window time.Duration, inWindow []Sample) Attribution {
	attr := Attribution{
		WindowMs:      window.Milliseconds(),
		OpsByType:     make(map[string]int),
		SkippedByType: make(map[string]int),
	}
	nodeOps := make(map[string]int)
	nodeSkips := make(map[string]int)

	for i := range inWindow {
		s := &inWindow[i]
		for typ, n := range s.OpsByType {
			attr.OpsByType[typ] += n
		}
		for typ, n := range s.SkippedByType {
			attr.SkippedByType[typ] += n
		}
		for typ, n := range s.NodeTypeOps {
			nodeOps[typ] += n
			if s.Skipped > 0 {
				nodeSkips[typ] += min(n, s.Skipped)
			}
		}
		rec := record(*s)
		if attr.Worst.Largest == nil || s.Ops > attr.Worst.Largest.Ops {
			attr.Worst.Largest = rec
		}
		if attr.Worst.Slowest == nil || rec.DurationMs > attr.Worst.Slowest.DurationMs {
			attr.Worst.Slowest = rec
		}
		if attr.Worst.MostSkipped == nil || s.Skipped > attr.Worst.MostSkipped.Skipped {
			attr.Worst.MostSkipped = rec
		}
		if attr.Worst.MostGrowth == nil || s.Growth > attr.Worst.MostGrowth.Growth {
			attr.Worst.MostGrowth = rec
		}
	}
	attr.TopNodeTypesByOps = topN(nodeOps, t.cfg.TopN)
	attr.TopNodeTypesBySkipped = topN(nodeSkips, t.cfg.TopN)
	return attr
}

func record(s Sample) *BatchRecord {
	return &BatchRecord{
		BatchID:    s.BatchID,
		At:         s.At.UnixMilli(),
		Ops:        s.Ops,
		Applied:    s.Applied,
		Skipped:    s.Skipped,
		Failed:     s.Failed,
		DurationMs: float64(s.ApplyDuration.Microseconds()) / 1000,
		Bytes:      s.Bytes,
		Growth:     s.Growth,
	}
}

func topN(counts map[string]int, n int) []TypeCount {
	out := make([]TypeCount, 0, len(counts))
	for typ, count := range counts {
		out = append(out, TypeCount{Type: typ, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
