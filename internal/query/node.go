// Package query implements spec.md §4.8: classifying a query string
// into a substring filter, a regex filter, or a tree-expression query,
// and evaluating it over the uniform Node capability the listener's
// components expose.
package query

import (
	"strconv"

	"tracedb/internal/listener"
	"tracedb/internal/registry"
	"tracedb/internal/zoneindex"
	"tracedb/pkg/types"
)

// dbNode is the root node: the database itself, position 0, with every
// zone index as a direct child.
type dbNode struct {
	l *listener.Listener
}

func NewDatabaseNode(l *listener.Listener) types.Node { return dbNode{l: l} }

func (n dbNode) NodeType() types.NodeKind  { return types.NodeDatabase }
func (n dbNode) NodeName() string          { return "database" }
func (n dbNode) NodeValue() string         { return "" }
func (n dbNode) NodePosition() uint64      { return 0 }
func (n dbNode) Parent() types.Node        { return nil }
func (n dbNode) Attr(string) (string, bool) { return "", false }

func (n dbNode) Children() []types.Node {
	zones := n.l.ZoneIndices()
	out := make([]types.Node, len(zones))
	for i, zi := range zones {
		out[i] = zoneNode{zi: zi, parent: n}
	}
	return out
}

func (n dbNode) Descendants(nameTest string, attrs map[string]string) []types.Node {
	return gatherDescendants(n, nameTest, attrs)
}

// zoneNode wraps a single ZoneIndex as a tree node; its children are
// the zone's root scopes.
type zoneNode struct {
	zi     *zoneindex.Index
	parent types.Node
}

func (n zoneNode) NodeType() types.NodeKind { return types.NodeZone }
func (n zoneNode) NodeName() string         { return n.zi.Identity().Name }
func (n zoneNode) NodeValue() string        { return n.zi.Identity().Type }
func (n zoneNode) NodePosition() uint64     { return 0 }
func (n zoneNode) Parent() types.Node       { return n.parent }

func (n zoneNode) Attr(name string) (string, bool) {
	id := n.zi.Identity()
	switch name {
	case "name":
		return id.Name, true
	case "type":
		return id.Type, true
	case "location":
		return id.Location, true
	default:
		return "", false
	}
}

func (n zoneNode) Children() []types.Node {
	roots := n.zi.GetRootScopes()
	out := make([]types.Node, len(roots))
	for i, s := range roots {
		out[i] = scopeNode{zi: n.zi, scope: s, parent: n}
	}
	return out
}

func (n zoneNode) Descendants(nameTest string, attrs map[string]string) []types.Node {
	return gatherDescendants(n, nameTest, attrs)
}

// scopeNode wraps a reconstructed Scope; its name is described at
// NodeName below, and its children are its child scopes only (the
// scope's events are not children in the node tree).
type scopeNode struct {
	zi     *zoneindex.Index
	scope  types.Scope
	parent types.Node
}

func (n scopeNode) NodeType() types.NodeKind { return types.NodeScopeNode }
// NodeName prefers the enter event's scope-name argument (the common
// case: a source adapter using the generic wtf.scope#enter type with
// a per-call label) and falls back to the enter event's own type name
// (the case of a source adapter interning one EventType per labeled
// scope).
func (n scopeNode) NodeName() string {
	if v, ok := n.scope.Enter.Arg(registry.ScopeNameArg); ok {
		return v.AsString()
	}
	if n.scope.Enter.Type != nil {
		return n.scope.Enter.Type.Name
	}
	return ""
}
func (n scopeNode) NodeValue() string {
	return strconv.FormatInt(n.scope.TotalDuration, 10)
}
func (n scopeNode) NodePosition() uint64 { return n.scope.Enter.Position }
func (n scopeNode) Parent() types.Node   { return n.parent }

func (n scopeNode) Attr(name string) (string, bool) {
	switch name {
	case "totalDuration":
		return strconv.FormatInt(n.scope.TotalDuration, 10), true
	case "userDuration":
		if !n.scope.UserDurationValid {
			return "", false
		}
		return strconv.FormatInt(n.scope.UserDuration, 10), true
	case "depth":
		return strconv.Itoa(n.scope.Depth), true
	default:
		if v, ok := n.scope.Enter.Arg(name); ok {
			return v.AsString(), true
		}
		return "", false
	}
}

func (n scopeNode) Children() []types.Node {
	out := make([]types.Node, 0, len(n.scope.Children))
	for _, cid := range n.scope.Children {
		c, ok := n.zi.Scope(cid)
		if !ok {
			continue
		}
		out = append(out, scopeNode{zi: n.zi, scope: c, parent: n})
	}
	return out
}

func (n scopeNode) Descendants(nameTest string, attrs map[string]string) []types.Node {
	return gatherDescendants(n, nameTest, attrs)
}

// eventNode wraps a leaf Event.
type eventNode struct {
	e      types.Event
	parent types.Node
}

func NewEventNode(e types.Event, parent types.Node) types.Node {
	return eventNode{e: e, parent: parent}
}

func (n eventNode) NodeType() types.NodeKind { return types.NodeEventNode }
func (n eventNode) NodeName() string {
	if n.e.Type != nil {
		return n.e.Type.Name
	}
	return ""
}
func (n eventNode) NodeValue() string    { return strconv.FormatInt(n.e.Time, 10) }
func (n eventNode) NodePosition() uint64 { return n.e.Position }
func (n eventNode) Parent() types.Node   { return n.parent }
func (n eventNode) Children() []types.Node { return nil }

func (n eventNode) Attr(name string) (string, bool) {
	if v, ok := n.e.Arg(name); ok {
		return v.AsString(), true
	}
	return "", false
}

func (n eventNode) Descendants(string, map[string]string) []types.Node { return nil }

// gatherDescendants walks n's subtree collecting every node matching
// nameTest (empty matches all) and every attrs constraint.
func gatherDescendants(n types.Node, nameTest string, attrs map[string]string) []types.Node {
	var out []types.Node
	var walk func(types.Node)
	walk = func(cur types.Node) {
		for _, c := range cur.Children() {
			if matches(c, nameTest, attrs) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

// matches reports whether n passes a step's name test and attribute
// predicates. A name test matches either the node's own name or its
// kind label ("database", "zone", "scope", "event").
func matches(n types.Node, nameTest string, attrs map[string]string) bool {
	if nameTest != "" && n.NodeName() != nameTest && kindName(n.NodeType()) != nameTest {
		return false
	}
	for k, v := range attrs {
		got, ok := n.Attr(k)
		if !ok || got != v {
			return false
		}
	}
	return true
}

func kindName(k types.NodeKind) string {
	switch k {
	case types.NodeDatabase:
		return "database"
	case types.NodeZone:
		return "zone"
	case types.NodeScopeNode:
		return "scope"
	case types.NodeEventNode:
		return "event"
	}
	return ""
}
