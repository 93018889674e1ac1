// Package eventindex implements the per-event-name time-ordered index
// described in spec.md §4.2.
package eventindex

import (
	"sort"

	"tracedb/pkg/types"
)

// Index is a time-ordered sequence of events whose type name matches
// exactly one string.
type Index struct {
	name      string
	events    []types.Event
	inserting bool
	dirty     bool
	// backfilled records whether this index was populated from
	// existing zone indices at construction time (the "createEventIndex
	// on an already-ingested stream" open question; see DESIGN.md).
	backfilled bool
}

// New creates an empty index for name. Population, if any, happens via
// Backfill before the index is handed to a caller; an index created
// mid-session without a backfill starts empty and only observes
// events from the next batch onward (spec.md §4.2, open question —
// this implementation backfills, see DESIGN.md).
func New(name string) *Index {
	return &Index{name: name}
}

func (ix *Index) Name() string { return ix.name }

// Backfill seeds the index from events already known to the database
// at creation time (e.g. scanned out of existing zone indices by the
// listener). It must be called before the index observes any live
// batch.
func (ix *Index) Backfill(events []types.Event) {
	ix.events = append(ix.events, events...)
	ix.backfilled = true
	ix.dirty = true // force a sort pass even if events arrived in order
}

func (ix *Index) Backfilled() bool { return ix.backfilled }

func (ix *Index) BeginInserting() {
	ix.inserting = true
}

// InsertEvent appends e if it matches this index's name. Out-of-order
// arrival relative to the current tail sets dirty so EndInserting
// knows to sort.
func (ix *Index) InsertEvent(e types.Event) {
	if e.Type == nil || e.Type.Name != ix.name {
		return
	}
	if n := len(ix.events); n > 0 && e.Time < ix.events[n-1].Time {
		ix.dirty = true
	}
	ix.events = append(ix.events, e)
}

func (ix *Index) EndInserting() {
	ix.inserting = false
	if ix.dirty {
		sort.SliceStable(ix.events, func(i, j int) bool {
			return ix.events[i].Time < ix.events[j].Time
		})
		ix.dirty = false
	}
}

// Renumber rewrites Position on every held event from a position map
// the listener builds during its global renumber pass. Called after
// every EndInserting in the listener's renumber phase.
func (ix *Index) Renumber(positionOf func(types.Event) uint64) {
	for i := range ix.events {
		ix.events[i].Position = positionOf(ix.events[i])
	}
}

func (ix *Index) Count() int { return len(ix.events) }

// ForEach iterates events with tStart <= Time < tEnd, locating the
// lower bound with binary search.
func (ix *Index) ForEach(tStart, tEnd int64, fn func(types.Event) bool) {
	lo, hi := 0, len(ix.events)
	for lo < hi {
		mid := (lo + hi) / 2
		if ix.events[mid].Time < tStart {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	for i := lo; i < len(ix.events); i++ {
		e := ix.events[i]
		if e.Time >= tEnd {
			break
		}
		if !fn(e) {
			return
		}
	}
}

// All returns a copy of every event held, in index order.
func (ix *Index) All() []types.Event {
	out := make([]types.Event, len(ix.events))
	copy(out, ix.events)
	return out
}
