// Package zoneindex implements the core scope-tree reconstruction
// algorithm of spec.md §4.5: one ZoneIndex owns the ordered event
// list for a single zone and the scope forest derived from it,
// tolerating out-of-order batched insertion.
package zoneindex

import (
	"sort"

	"github.com/sirupsen/logrus"

	"tracedb/internal/errs"
	"tracedb/internal/frameindex"
	"tracedb/internal/registry"
	"tracedb/pkg/types"
)

// RebuildWarnThreshold is the number of events a dirty rebuild may
// touch before the index surfaces a warning instead of silently
// absorbing the cost (spec.md §9 open question: the rebuild window is
// capped at the full event list, with a warning above this size — see
// DESIGN.md).
const RebuildWarnThreshold = 4096

// ErrorReporter receives a human-readable message/detail pair whenever
// the zone index recovers from a data error, so the listener can
// surface it as a SOURCE_ERROR notification without the zone index
// depending on the listener's notification bus.
type ErrorReporter func(message, detail string)

// Index owns one zone's ordered event list and scope forest.
type Index struct {
	identity types.ZoneIdentity
	logger   *logrus.Logger
	onError  ErrorReporter

	events    []types.Event
	inserting bool
	dirty     bool

	scopes []types.Scope
	stack  []types.ScopeID
	roots  []types.ScopeID
	built  int // number of events already folded into the scope forest

	// enterIdx/leaveIdx record, per ScopeID, the index into zi.events
	// of the enter/leave event that built the scope. Scope.Enter and
	// Scope.Leave are snapshot copies taken before the listener's
	// global renumber pass assigns Position; Renumber uses these
	// indices to refresh the snapshots' Position afterward instead of
	// re-deriving the match from scratch.
	enterIdx []int
	leaveIdx []int // -1 until the scope closes

	// frames is this zone's FrameIndex, obtained via Frames(). It
	// receives the same events as the zone index itself, kept in
	// lockstep through the same BeginInserting/InsertEvent/EndInserting
	// protocol rather than rebuilt by replaying the full event list
	// every batch.
	frames *frameindex.Index
}

// New creates an empty zone index for identity. reg is forwarded to
// the zone's own FrameIndex so it can classify frame events by
// interned type.
func New(identity types.ZoneIdentity, logger *logrus.Logger, onError ErrorReporter, reg *registry.Registry) *Index {
	return &Index{identity: identity, logger: logger, onError: onError, frames: frameindex.New(reg)}
}

// Frames returns this zone's frame index (spec.md §4.4: "one FrameIndex
// per zone, obtained from ZoneIndex").
func (zi *Index) Frames() *frameindex.Index { return zi.frames }

func (zi *Index) Identity() types.ZoneIdentity { return zi.identity }

// reportError logs a recoverable data error and forwards it to the
// registered ErrorReporter (the listener turns it into a SOURCE_ERROR
// notification), per spec.md §7.
func (zi *Index) reportError(message string, t int64) {
	if zi.logger != nil {
		zi.logger.WithFields(logrus.Fields{
			"component": "zoneindex",
			"zone":      zi.identity.Name,
			"time":      t,
		}).Warn(message)
	}
	if zi.onError != nil {
		zi.onError(message, zi.identity.Name)
	}
}

func (zi *Index) BeginInserting() {
	if zi.inserting {
		errs.Fatal(errs.CodeIngestProtocol, "zoneindex", "BeginInserting", "nested BeginInserting on zone "+zi.identity.Name)
	}
	zi.inserting = true
	zi.frames.BeginInserting()
}

// InsertEvent appends e, tolerating out-of-order arrival. Setting
// dirty is cheap (a single comparison); the costlier sort and forest
// rebuild are deferred to EndInserting.
func (zi *Index) InsertEvent(e types.Event) {
	if !zi.inserting {
		errs.Fatal(errs.CodeIngestProtocol, "zoneindex", "InsertEvent", "insert outside a batch on zone "+zi.identity.Name)
	}
	if n := len(zi.events); n > 0 && e.Time < zi.events[n-1].Time {
		zi.dirty = true
	}
	zi.events = append(zi.events, e)
	zi.frames.InsertEvent(e)
}

// EndInserting sorts the event list if it went out of order, then
// rebuilds the scope forest. A dirty batch forces a full rebuild from
// the start of the event list (the degenerate but always-correct case
// spec.md §4.5/§9 permits); a clean batch only folds in the newly
// appended tail.
func (zi *Index) EndInserting() {
	if !zi.inserting {
		errs.Fatal(errs.CodeIngestProtocol, "zoneindex", "EndInserting", "EndInserting without BeginInserting on zone "+zi.identity.Name)
	}
	zi.inserting = false

	from := zi.built
	if zi.dirty {
		sort.SliceStable(zi.events, func(i, j int) bool { return zi.events[i].Time < zi.events[j].Time })
		zi.scopes = zi.scopes[:0]
		zi.stack = zi.stack[:0]
		zi.roots = zi.roots[:0]
		zi.enterIdx = zi.enterIdx[:0]
		zi.leaveIdx = zi.leaveIdx[:0]
		from = 0
		zi.dirty = false

		touched := len(zi.events)
		if touched > RebuildWarnThreshold {
			if zi.logger != nil {
				zi.logger.WithFields(logrus.Fields{
					"component": "zoneindex",
					"zone":      zi.identity.Name,
					"events":    touched,
				}).Warn("zone rebuild window widened to full event list")
			}
			if zi.onError != nil {
				zi.onError("zone rebuild window widened to full event list", zi.identity.Name)
			}
		}
	}

	zi.rebuildForest(from, len(zi.events))
	zi.built = len(zi.events)
	zi.computeUserDurations()
	zi.frames.EndInserting()
}

func (zi *Index) rebuildForest(from, to int) {
	for i := from; i < to; i++ {
		e := zi.events[i]
		switch {
		case e.IsScopeEnter():
			parent := types.NoScope
			depth := 0
			if n := len(zi.stack); n > 0 {
				parent = zi.stack[n-1]
				depth = zi.scopes[parent].Depth + 1
			}
			id := types.ScopeID(len(zi.scopes))
			zi.scopes = append(zi.scopes, types.Scope{
				ID:     id,
				Zone:   zi.identity,
				Parent: parent,
				Depth:  depth,
				Enter:  e,
			})
			if parent != types.NoScope {
				zi.scopes[parent].Children = append(zi.scopes[parent].Children, id)
			} else {
				zi.roots = append(zi.roots, id)
			}
			zi.stack = append(zi.stack, id)
			zi.enterIdx = append(zi.enterIdx, i)
			zi.leaveIdx = append(zi.leaveIdx, -1)
		case e.IsScopeLeave():
			zi.matchLeave(e, i)
		}
	}
}

func (zi *Index) matchLeave(e types.Event, idx int) {
	n := len(zi.stack)
	if n == 0 {
		zi.reportError("unmatched scope leave", e.Time)
		return
	}
	top := zi.stack[n-1]
	if e.Time < zi.scopes[top].Enter.Time {
		zi.reportError("scope leave precedes its matched enter", e.Time)
		return
	}
	zi.stack = zi.stack[:n-1]
	s := &zi.scopes[top]
	s.Leave = e
	s.HasLeave = true
	s.TotalDuration = e.Time - s.Enter.Time
	zi.leaveIdx[top] = idx
}

// computeUserDurations recomputes UserDuration for every closed scope
// whose children are all themselves closed. Because a child's
// TotalDuration is already known once the child itself closes, a
// single pass over the slab (not a recursive post-order walk) is
// enough.
func (zi *Index) computeUserDurations() {
	for i := range zi.scopes {
		s := &zi.scopes[i]
		if !s.HasLeave {
			continue
		}
		var childSum int64
		allClosed := true
		for _, cid := range s.Children {
			c := &zi.scopes[cid]
			if !c.HasLeave {
				allClosed = false
				break
			}
			childSum += c.TotalDuration
		}
		s.UserDurationValid = allClosed
		if allClosed {
			s.UserDuration = s.TotalDuration - childSum
		}
	}
}

// Renumber assigns Position to every held event in time order
// starting from startPosition, and returns the next free position.
//
// Scope.Enter/Scope.Leave are snapshot copies taken when the scope
// forest was built, before positions existed; enterIdx/leaveIdx (set
// alongside those snapshots) let this pass refresh them in O(scopes)
// instead of re-deriving the enter/leave match from the event stream.
func (zi *Index) Renumber(startPosition uint64) uint64 {
	pos := startPosition
	for i := range zi.events {
		zi.events[i].Position = pos
		pos++
	}
	for id := range zi.scopes {
		zi.scopes[id].Enter.Position = zi.events[zi.enterIdx[id]].Position
		if li := zi.leaveIdx[id]; li >= 0 {
			zi.scopes[id].Leave.Position = zi.events[li].Position
		}
	}
	return pos
}

// ForEach iterates events with tStart <= Time < tEnd, using binary
// search for the lower bound.
func (zi *Index) ForEach(tStart, tEnd int64, fn func(types.Event) bool) {
	lo, hi := 0, len(zi.events)
	for lo < hi {
		mid := (lo + hi) / 2
		if zi.events[mid].Time < tStart {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	for i := lo; i < len(zi.events); i++ {
		e := zi.events[i]
		if e.Time >= tEnd {
			break
		}
		if !fn(e) {
			return
		}
	}
}

// GetRootScopes returns the top-level scopes of the forest, in
// creation order.
func (zi *Index) GetRootScopes() []types.Scope {
	out := make([]types.Scope, len(zi.roots))
	for i, id := range zi.roots {
		out[i] = zi.scopes[id]
	}
	return out
}

// Scope returns a copy of the scope identified by id.
func (zi *Index) Scope(id types.ScopeID) (types.Scope, bool) {
	if int(id) >= len(zi.scopes) {
		return types.Scope{}, false
	}
	return zi.scopes[id], true
}

// GetScopeAt returns the innermost scope whose [enter, leave) window
// contains t, descending the forest from the roots.
func (zi *Index) GetScopeAt(t int64) (types.Scope, bool) {
	var best types.ScopeID = types.NoScope
	candidates := zi.roots
	for {
		found := types.NoScope
		for _, id := range candidates {
			if zi.scopes[id].ContainsTime(t) {
				found = id
				break
			}
		}
		if found == types.NoScope {
			break
		}
		best = found
		candidates = zi.scopes[found].Children
	}
	if best == types.NoScope {
		return types.Scope{}, false
	}
	return zi.scopes[best], true
}

func (zi *Index) Count() int      { return len(zi.events) }
func (zi *Index) ScopeCount() int { return len(zi.scopes) }

// OpenScopeCount returns the number of scopes with no matching leave
// yet, used by the metrics package's open-scope gauge.
func (zi *Index) OpenScopeCount() int {
	n := 0
	for i := range zi.scopes {
		if !zi.scopes[i].HasLeave {
			n++
		}
	}
	return n
}

// AllEvents returns a copy of the zone's full ordered event list, used
// by the listener to back-fill an event-name index created mid-session
// (spec.md §9 open question).
func (zi *Index) AllEvents() []types.Event {
	out := make([]types.Event, len(zi.events))
	copy(out, zi.events)
	return out
}
