// Package summaryindex implements the coarse time-bucketed overview
// index described in spec.md §4.3: first/last event time, total
// count, and power-of-two granularity buckets for fast overview
// rendering.
package summaryindex

import "tracedb/pkg/types"

// BaseGranularity is the finest bucket width, in microseconds; wider
// granularities are powers of two multiples of this.
const BaseGranularity int64 = 1000 // 1ms buckets at the finest level

// Bucket tracks the coarse stats for one time window at one
// granularity level.
type Bucket struct {
	Count               int
	ApproximateDuration int64
}

// Index maintains first/last event time, total count, and a
// power-of-two pyramid of buckets for fast overview queries.
type Index struct {
	count           int
	firstTime       int64
	lastTime        int64
	hasEvents       bool
	inserting       bool
	pendingFirst    int64
	pendingLast     int64
	pendingHasAny   bool
	pendingCount    int
	// buckets[level] is a sparse map from bucket index (time /
	// (BaseGranularity<<level)) to that bucket's stats. Level 0 is the
	// finest granularity.
	buckets []map[int64]*Bucket
	levels  int
}

// New creates a summary index with the given number of granularity
// levels (power-of-two multiples of BaseGranularity).
func New(levels int) *Index {
	if levels < 1 {
		levels = 1
	}
	ix := &Index{levels: levels, buckets: make([]map[int64]*Bucket, levels)}
	for i := range ix.buckets {
		ix.buckets[i] = make(map[int64]*Bucket)
	}
	return ix
}

func (ix *Index) BeginInserting() {
	ix.inserting = true
	ix.pendingHasAny = false
	ix.pendingCount = 0
}

// InsertEvent updates the coarse buckets for e's time, deferring the
// first/last/count invariant maintenance to EndInserting as spec.md
// §4.3 prescribes.
func (ix *Index) InsertEvent(e types.Event) {
	if !ix.pendingHasAny || e.Time < ix.pendingFirst {
		ix.pendingFirst = e.Time
	}
	if !ix.pendingHasAny || e.Time > ix.pendingLast {
		ix.pendingLast = e.Time
	}
	ix.pendingHasAny = true
	ix.pendingCount++

	for level := 0; level < ix.levels; level++ {
		width := BaseGranularity << uint(level)
		key := e.Time / width
		b := ix.buckets[level][key]
		if b == nil {
			b = &Bucket{}
			ix.buckets[level][key] = b
		}
		b.Count++
	}
}

func (ix *Index) EndInserting() {
	ix.inserting = false
	if ix.pendingHasAny {
		if !ix.hasEvents || ix.pendingFirst < ix.firstTime {
			ix.firstTime = ix.pendingFirst
		}
		if !ix.hasEvents || ix.pendingLast > ix.lastTime {
			ix.lastTime = ix.pendingLast
		}
		ix.hasEvents = true
	}
	ix.count += ix.pendingCount

	// ApproximateDuration per bucket is re-derived from the bucket
	// width once counts settle; this keeps InsertEvent allocation-free
	// on the hot path.
	for level := 0; level < ix.levels; level++ {
		width := BaseGranularity << uint(level)
		for _, b := range ix.buckets[level] {
			b.ApproximateDuration = width
		}
	}
}

func (ix *Index) Count() int           { return ix.count }
func (ix *Index) FirstEventTime() (int64, bool) { return ix.firstTime, ix.hasEvents }
func (ix *Index) LastEventTime() (int64, bool)  { return ix.lastTime, ix.hasEvents }

// ForEach iterates the finest-granularity buckets overlapping
// [tStart, tEnd).
func (ix *Index) ForEach(tStart, tEnd int64, fn func(bucketStart int64, b Bucket) bool) {
	width := BaseGranularity
	lo := tStart / width
	hi := tEnd / width
	for k := lo; k <= hi; k++ {
		if k*width >= tEnd {
			break
		}
		if b, ok := ix.buckets[0][k]; ok {
			if !fn(k*width, *b) {
				return
			}
		}
	}
}
