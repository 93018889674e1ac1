package query

import (
	"testing"

	"github.com/sirupsen/logrus"

	"tracedb/internal/listener"
	"tracedb/internal/registry"
	"tracedb/internal/source"
	"tracedb/pkg/types"
)

func seedListener(t *testing.T) (*listener.Listener, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	l := listener.New(reg, log)

	identity := types.ZoneIdentity{Name: "z1", Type: "goroutine", Location: "host"}
	l.BeginEventBatch(nil)
	l.TraceEvent(source.ZoneCreateEvent(reg, identity, 0))
	l.TraceEvent(types.Event{Time: 1, Type: reg.ScopeEnter, Args: []types.Value{types.StringValue("work")}})
	l.TraceEvent(types.Event{Time: 9, Type: reg.ScopeLeave})
	l.EndEventBatch()
	return l, reg
}

func TestDatabaseNode_ChildrenAreZones(t *testing.T) {
	l, _ := seedListener(t)
	root := NewDatabaseNode(l)

	children := root.Children()
	if len(children) != 1 {
		t.Fatalf("got %d children, want 1 zone", len(children))
	}
	if children[0].NodeType() != types.NodeZone {
		t.Fatalf("child NodeType = %v, want NodeZone", children[0].NodeType())
	}
	if children[0].NodeName() != "z1" {
		t.Fatalf("child NodeName = %q, want z1", children[0].NodeName())
	}
	if children[0].Parent() != root {
		t.Fatalf("child Parent() did not round-trip to root")
	}
}

func TestZoneNode_AttrAndScopeChild(t *testing.T) {
	l, _ := seedListener(t)
	root := NewDatabaseNode(l)
	zone := root.Children()[0]

	if v, ok := zone.Attr("location"); !ok || v != "host" {
		t.Fatalf("Attr(location) = %q, %v, want host, true", v, ok)
	}
	if _, ok := zone.Attr("nonexistent"); ok {
		t.Fatalf("Attr(nonexistent) unexpectedly found")
	}

	scopes := zone.Children()
	if len(scopes) != 1 || scopes[0].NodeName() != "work" {
		t.Fatalf("zone children = %+v, want one scope named work", scopes)
	}
}

func TestScopeNode_AttrsExposeDurationAndEnterArgs(t *testing.T) {
	l, _ := seedListener(t)
	root := NewDatabaseNode(l)
	scope := root.Children()[0].Children()[0]

	if v, ok := scope.Attr("totalDuration"); !ok || v != "8" {
		t.Fatalf("Attr(totalDuration) = %q, %v, want 8, true", v, ok)
	}
	if v, ok := scope.Attr("name"); !ok || v != "work" {
		t.Fatalf("Attr(name) = %q, %v, want work, true (falls through to enter event args)", v, ok)
	}
}

func TestGatherDescendants_FiltersByNameAndAttr(t *testing.T) {
	l, _ := seedListener(t)
	root := NewDatabaseNode(l)

	named := root.Descendants("work", nil)
	if len(named) != 1 {
		t.Fatalf("Descendants(work) = %d, want 1", len(named))
	}

	matched := root.Descendants("", map[string]string{"name": "work"})
	if len(matched) != 1 {
		t.Fatalf("Descendants with name=work attr = %d, want 1", len(matched))
	}

	none := root.Descendants("", map[string]string{"name": "nope"})
	if len(none) != 0 {
		t.Fatalf("Descendants with unmatched attr = %d, want 0", len(none))
	}
}

func TestEventNode_AttrReadsEventArg(t *testing.T) {
	reg := registry.New()
	e := types.Event{Time: 5, Type: reg.FlowBranch, Args: []types.Value{types.IntValue(1), types.IntValue(0)}}
	n := NewEventNode(e, nil)

	if v, ok := n.Attr(registry.FlowIDArg); !ok || v != "1" {
		t.Fatalf("Attr(id) = %q, %v, want 1, true", v, ok)
	}
	if n.Children() != nil {
		t.Fatalf("eventNode.Children() = %v, want nil (leaf node)", n.Children())
	}
}
