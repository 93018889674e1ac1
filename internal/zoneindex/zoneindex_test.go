package zoneindex

import (
	"testing"

	"github.com/sirupsen/logrus"

	"tracedb/internal/registry"
	"tracedb/pkg/types"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel) // quiet during tests
	return l
}

func scopeEnter(reg *registry.Registry, t int64, name string) types.Event {
	return types.Event{Time: t, Type: reg.ScopeEnter, Args: []types.Value{types.StringValue(name)}}
}

func scopeLeave(t int64) types.Event {
	return types.Event{Time: t}
}

// TestSingleZoneNesting covers seed scenario S1: a parent scope
// containing a child scope, both closed in order.
func TestSingleZoneNesting(t *testing.T) {
	reg := registry.New()
	identity := types.ZoneIdentity{Name: "z1", Type: "goroutine", Location: "host"}
	zi := New(identity, testLogger(), nil, reg)

	leave := func(tm int64) types.Event { e := scopeLeave(tm); e.Type = reg.ScopeLeave; return e }

	zi.BeginInserting()
	zi.InsertEvent(scopeEnter(reg, 0, "outer"))
	zi.InsertEvent(scopeEnter(reg, 5, "inner"))
	zi.InsertEvent(leave(10))
	zi.InsertEvent(leave(20))
	zi.EndInserting()

	roots := zi.GetRootScopes()
	if len(roots) != 1 {
		t.Fatalf("got %d root scopes, want 1", len(roots))
	}
	outer := roots[0]
	if outer.TotalDuration != 20 {
		t.Fatalf("outer.TotalDuration = %d, want 20", outer.TotalDuration)
	}
	if len(outer.Children) != 1 {
		t.Fatalf("outer has %d children, want 1", len(outer.Children))
	}
	inner, ok := zi.Scope(outer.Children[0])
	if !ok || inner.TotalDuration != 5 {
		t.Fatalf("inner = %+v, %v, want TotalDuration=5", inner, ok)
	}
	if !outer.UserDurationValid || outer.UserDuration != 15 {
		t.Fatalf("outer.UserDuration = %d (valid=%v), want 15", outer.UserDuration, outer.UserDurationValid)
	}
}

// TestOutOfOrderBatchEquivalence covers seed scenario S2: events
// delivered out of time order within one batch produce the same
// scope forest as the in-order equivalent.
func TestOutOfOrderBatchEquivalence(t *testing.T) {
	reg := registry.New()
	identity := types.ZoneIdentity{Name: "z1", Type: "goroutine", Location: "host"}
	zi := New(identity, testLogger(), nil, reg)

	leave := func(tm int64) types.Event { e := scopeLeave(tm); e.Type = reg.ScopeLeave; return e }

	zi.BeginInserting()
	zi.InsertEvent(leave(10))
	zi.InsertEvent(scopeEnter(reg, 0, "outer"))
	zi.EndInserting()

	roots := zi.GetRootScopes()
	if len(roots) != 1 || roots[0].TotalDuration != 10 {
		t.Fatalf("got %+v, want one scope with TotalDuration=10", roots)
	}
}

// TestUnmatchedLeave covers seed scenario S3: a leave with no open
// scope is reported via the error hook and otherwise ignored.
func TestUnmatchedLeave(t *testing.T) {
	reg := registry.New()
	identity := types.ZoneIdentity{Name: "z1", Type: "goroutine", Location: "host"}
	var reported []string
	zi := New(identity, testLogger(), func(message, detail string) { reported = append(reported, message) }, reg)

	leave := func(tm int64) types.Event { e := scopeLeave(tm); e.Type = reg.ScopeLeave; return e }

	zi.BeginInserting()
	zi.InsertEvent(leave(10))
	zi.EndInserting()

	if len(reported) != 1 {
		t.Fatalf("got %d error reports, want 1: %v", len(reported), reported)
	}
	if zi.ScopeCount() != 0 {
		t.Fatalf("ScopeCount() = %d, want 0", zi.ScopeCount())
	}
}

// TestZoneCreatedMidBatch is the zone-index side of seed scenario S4:
// a freshly created zone index counts every event inserted in its
// first BeginInserting/EndInserting cycle. The mid-batch creation
// itself is exercised through the listener in listener_test.go.
func TestZoneCreatedMidBatch(t *testing.T) {
	reg := registry.New()
	identity := types.ZoneIdentity{Name: "z1", Type: "goroutine", Location: "host"}
	zi := New(identity, testLogger(), nil, reg)

	zi.BeginInserting()
	zi.InsertEvent(scopeEnter(reg, 0, "first"))
	e := scopeLeave(1)
	e.Type = reg.ScopeLeave
	zi.InsertEvent(e)
	zi.EndInserting()

	if zi.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", zi.Count())
	}
}

func TestRenumber_AssignsSequentialPositionsAndUpdatesScopeSnapshots(t *testing.T) {
	reg := registry.New()
	identity := types.ZoneIdentity{Name: "z1", Type: "goroutine", Location: "host"}
	zi := New(identity, testLogger(), nil, reg)

	leave := func(tm int64) types.Event { e := scopeLeave(tm); e.Type = reg.ScopeLeave; return e }

	zi.BeginInserting()
	zi.InsertEvent(scopeEnter(reg, 0, "outer"))
	zi.InsertEvent(leave(10))
	zi.EndInserting()

	next := zi.Renumber(5)
	if next != 7 {
		t.Fatalf("Renumber returned next position %d, want 7", next)
	}
	roots := zi.GetRootScopes()
	if roots[0].Enter.Position != 5 || roots[0].Leave.Position != 6 {
		t.Fatalf("scope positions = %+v, want enter=5 leave=6", roots[0])
	}
}

func TestGetScopeAt_DescendsToInnermostContaining(t *testing.T) {
	reg := registry.New()
	identity := types.ZoneIdentity{Name: "z1", Type: "goroutine", Location: "host"}
	zi := New(identity, testLogger(), nil, reg)

	leave := func(tm int64) types.Event { e := scopeLeave(tm); e.Type = reg.ScopeLeave; return e }

	zi.BeginInserting()
	zi.InsertEvent(scopeEnter(reg, 0, "outer"))
	zi.InsertEvent(scopeEnter(reg, 2, "inner"))
	zi.InsertEvent(leave(8))
	zi.InsertEvent(leave(10))
	zi.EndInserting()

	s, ok := zi.GetScopeAt(5)
	if !ok {
		t.Fatalf("expected a scope containing t=5")
	}
	if name, _ := s.Enter.Arg(registry.ScopeNameArg); name.Str != "inner" {
		t.Fatalf("GetScopeAt(5) = %q, want inner", name.Str)
	}
}

func TestBeginInserting_NestedCallPanics(t *testing.T) {
	reg := registry.New()
	zi := New(types.ZoneIdentity{Name: "z1"}, testLogger(), nil, reg)
	zi.BeginInserting()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on nested BeginInserting")
		}
	}()
	zi.BeginInserting()
}

func TestInsertEvent_OutsideBatchPanics(t *testing.T) {
	reg := registry.New()
	zi := New(types.ZoneIdentity{Name: "z1"}, testLogger(), nil, reg)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on InsertEvent outside a batch")
		}
	}()
	zi.InsertEvent(scopeEnter(reg, 0, "x"))
}
