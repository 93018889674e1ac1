package summaryindex

import (
	"testing"

	"tracedb/pkg/types"
)

func TestNew_ClampsLevelsToAtLeastOne(t *testing.T) {
	ix := New(0)
	if len(ix.buckets) != 1 {
		t.Fatalf("buckets levels = %d, want 1", len(ix.buckets))
	}
}

func TestInsertEvent_TracksFirstLastAndCount(t *testing.T) {
	ix := New(3)

	ix.BeginInserting()
	ix.InsertEvent(types.Event{Time: 500})
	ix.InsertEvent(types.Event{Time: 100})
	ix.InsertEvent(types.Event{Time: 900})
	ix.EndInserting()

	if first, ok := ix.FirstEventTime(); !ok || first != 100 {
		t.Fatalf("FirstEventTime() = %d, %v, want 100, true", first, ok)
	}
	if last, ok := ix.LastEventTime(); !ok || last != 900 {
		t.Fatalf("LastEventTime() = %d, %v, want 900, true", last, ok)
	}
	if ix.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", ix.Count())
	}
}

func TestInsertEvent_AccumulatesAcrossBatches(t *testing.T) {
	ix := New(1)

	ix.BeginInserting()
	ix.InsertEvent(types.Event{Time: 1000})
	ix.EndInserting()

	ix.BeginInserting()
	ix.InsertEvent(types.Event{Time: 50})
	ix.InsertEvent(types.Event{Time: 2000})
	ix.EndInserting()

	if ix.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", ix.Count())
	}
	if first, _ := ix.FirstEventTime(); first != 50 {
		t.Fatalf("FirstEventTime() = %d, want 50 (min across batches)", first)
	}
	if last, _ := ix.LastEventTime(); last != 2000 {
		t.Fatalf("LastEventTime() = %d, want 2000 (max across batches)", last)
	}
}

func TestForEach_VisitsBucketsOverlappingRange(t *testing.T) {
	ix := New(1)

	ix.BeginInserting()
	ix.InsertEvent(types.Event{Time: 0})
	ix.InsertEvent(types.Event{Time: BaseGranularity})
	ix.InsertEvent(types.Event{Time: BaseGranularity * 5})
	ix.EndInserting()

	var starts []int64
	ix.ForEach(0, BaseGranularity*2, func(bucketStart int64, b Bucket) bool {
		starts = append(starts, bucketStart)
		return true
	})

	if len(starts) != 2 {
		t.Fatalf("visited %d buckets, want 2: %v", len(starts), starts)
	}
}

func TestFirstLastEventTime_FalseWhenEmpty(t *testing.T) {
	ix := New(1)
	if _, ok := ix.FirstEventTime(); ok {
		t.Fatalf("expected FirstEventTime() ok=false on empty index")
	}
	if _, ok := ix.LastEventTime(); ok {
		t.Fatalf("expected LastEventTime() ok=false on empty index")
	}
}
