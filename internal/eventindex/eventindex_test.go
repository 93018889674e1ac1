package eventindex

import (
	"testing"

	"tracedb/pkg/types"
)

func newType(name string) *types.EventType {
	return &types.EventType{Name: name}
}

func TestInsertEvent_IgnoresNonMatchingType(t *testing.T) {
	ix := New("app.request#start")
	ix.BeginInserting()
	ix.InsertEvent(types.Event{Time: 1, Type: newType("app.request#end")})
	ix.EndInserting()

	if ix.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", ix.Count())
	}
}

func TestInsertEvent_KeepsMatchingEventsInTimeOrder(t *testing.T) {
	ix := New("app.request#start")
	ty := newType("app.request#start")

	ix.BeginInserting()
	ix.InsertEvent(types.Event{Time: 10, Type: ty})
	ix.InsertEvent(types.Event{Time: 5, Type: ty})
	ix.InsertEvent(types.Event{Time: 20, Type: ty})
	ix.EndInserting()

	all := ix.All()
	if len(all) != 3 {
		t.Fatalf("Count() = %d, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Time > all[i].Time {
			t.Fatalf("events not sorted by time: %+v", all)
		}
	}
}

func TestBackfill_MarksIndexBackfilledAndSeedsEvents(t *testing.T) {
	ix := New("app.request#start")
	ty := newType("app.request#start")

	ix.Backfill([]types.Event{{Time: 1, Type: ty}, {Time: 2, Type: ty}})

	if !ix.Backfilled() {
		t.Fatalf("expected Backfilled() to be true")
	}
	if ix.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", ix.Count())
	}
}

func TestForEach_RestrictsToTimeRange(t *testing.T) {
	ix := New("app.request#start")
	ty := newType("app.request#start")

	ix.BeginInserting()
	for _, tm := range []int64{5, 10, 15, 20, 25} {
		ix.InsertEvent(types.Event{Time: tm, Type: ty})
	}
	ix.EndInserting()

	var got []int64
	ix.ForEach(10, 21, func(e types.Event) bool {
		got = append(got, e.Time)
		return true
	})

	want := []int64{10, 15, 20}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestForEach_StopsWhenCallbackReturnsFalse(t *testing.T) {
	ix := New("app.request#start")
	ty := newType("app.request#start")

	ix.BeginInserting()
	for _, tm := range []int64{1, 2, 3} {
		ix.InsertEvent(types.Event{Time: tm, Type: ty})
	}
	ix.EndInserting()

	n := 0
	ix.ForEach(0, 100, func(types.Event) bool {
		n++
		return n < 2
	})
	if n != 2 {
		t.Fatalf("callback invoked %d times, want 2", n)
	}
}

func TestRenumber_RewritesPositionFromLookup(t *testing.T) {
	ix := New("app.request#start")
	ty := newType("app.request#start")

	ix.BeginInserting()
	ix.InsertEvent(types.Event{Time: 1, Type: ty, Seq: 42})
	ix.EndInserting()

	ix.Renumber(func(e types.Event) uint64 {
		if e.Seq == 42 {
			return 99
		}
		return 0
	})

	if got := ix.All()[0].Position; got != 99 {
		t.Fatalf("Position = %d, want 99", got)
	}
}
