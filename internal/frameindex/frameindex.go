// Package frameindex implements the per-zone frame index of spec.md
// §4.4: the subset of events representing a repeating "frame" of work
// (a start/end pair, or an instant marker), with per-frame duration
// and point-in-time lookup.
package frameindex

import (
	"sort"

	"tracedb/internal/registry"
	"tracedb/pkg/types"
)

// Frame is one reconstructed frame: either a [Start, End) pair or a
// single instant marker (Start == End, HasEnd false).
type Frame struct {
	Start    types.Event
	End      types.Event
	HasEnd   bool
	Duration int64
}

// Index holds the ordered frame list for one zone.
type Index struct {
	reg       *registry.Registry
	frames    []Frame
	openStart *types.Event
	inserting bool
	pending   []types.Event
}

func New(reg *registry.Registry) *Index {
	return &Index{reg: reg}
}

func (ix *Index) BeginInserting() {
	ix.inserting = true
	ix.pending = ix.pending[:0]
}

// InsertEvent buffers frame-shaped events (frame#start/end/instant);
// everything else is ignored, mirroring how the zone index ignores
// events it does not classify as scope enter/leave.
func (ix *Index) InsertEvent(e types.Event) {
	if e.Type == nil {
		return
	}
	switch e.Type.Name {
	case registry.NameFrameStart, registry.NameFrameEnd, registry.NameFrameInstant:
		ix.pending = append(ix.pending, e)
	}
}

func (ix *Index) EndInserting() {
	ix.inserting = false
	if len(ix.pending) == 0 {
		return
	}
	sort.SliceStable(ix.pending, func(i, j int) bool { return ix.pending[i].Time < ix.pending[j].Time })
	for _, e := range ix.pending {
		switch e.Type.Name {
		case registry.NameFrameInstant:
			ix.frames = append(ix.frames, Frame{Start: e, End: e, HasEnd: false})
		case registry.NameFrameStart:
			ix.openStart = &e
		case registry.NameFrameEnd:
			if ix.openStart != nil {
				ix.frames = append(ix.frames, Frame{
					Start:    *ix.openStart,
					End:      e,
					HasEnd:   true,
					Duration: e.Time - ix.openStart.Time,
				})
				ix.openStart = nil
			}
		}
	}
	ix.pending = ix.pending[:0]
}

// GetFrameInRange returns the frame containing timestamp t, if any.
func (ix *Index) GetFrameInRange(t int64) (Frame, bool) {
	for _, f := range ix.frames {
		end := f.Start.Time
		if f.HasEnd {
			end = f.End.Time
		}
		if t >= f.Start.Time && (t < end || (!f.HasEnd && t == f.Start.Time)) {
			return f, true
		}
	}
	return Frame{}, false
}

func (ix *Index) All() []Frame {
	out := make([]Frame, len(ix.frames))
	copy(out, ix.frames)
	return out
}

func (ix *Index) Count() int { return len(ix.frames) }
