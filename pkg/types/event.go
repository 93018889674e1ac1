// Package types holds the canonical value objects shared by every
// ingestion and query component: event schemas, events, zones, scopes,
// flows, and the node/notification contracts the listener and query
// engine exchange with the rest of the database.
package types

// EventFlag is a bitset of classification flags carried by an EventType.
type EventFlag uint32

const (
	// FlagInternal marks events excluded from user totals and from
	// filter-query result sets, though they still participate in
	// index structure (e.g. zone#create, flow data appenders).
	FlagInternal EventFlag = 1 << iota
	// FlagScopeEnter marks a scope-opening event.
	FlagScopeEnter
	// FlagScopeLeave marks a scope-closing event.
	FlagScopeLeave
	// FlagBuiltin marks a type pre-registered by the registry rather
	// than discovered from a source adapter.
	FlagBuiltin
)

func (f EventFlag) Has(bit EventFlag) bool { return f&bit != 0 }

// ArgKind identifies the dynamic type of one argument slot in an
// EventType's schema.
type ArgKind uint8

const (
	ArgString ArgKind = iota
	ArgInt
	ArgFloat
	ArgBool
)

// ArgSpec is one entry in an EventType's ordered argument schema.
type ArgSpec struct {
	Name string
	Kind ArgKind
}

// EventType is the interned schema of one event class: a fully
// qualified name (e.g. "wtf.scope#enter"), an ordered argument
// schema, and a classification bitset. EventType values are owned by
// the registry and handed out as stable pointers; callers compare
// identity by pointer, never by re-parsing the name on the hot path.
type EventType struct {
	ID    int // dense id assigned at registration time
	Name  string
	Args  []ArgSpec
	Flags EventFlag
}

func (t *EventType) Has(flag EventFlag) bool { return t.Flags.Has(flag) }

// ArgIndex returns the schema slot for name, or -1 if the type has no
// such argument.
func (t *EventType) ArgIndex(name string) int {
	for i, a := range t.Args {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// Value is a tagged-union argument value, schema-aligned rather than
// stored as a dynamic string-keyed map. Only one of the typed fields
// is meaningful, selected by Kind.
type Value struct {
	Kind ArgKind
	Str  string
	Int  int64
	Flt  float64
	Bool bool
}

func StringValue(s string) Value  { return Value{Kind: ArgString, Str: s} }
func IntValue(v int64) Value      { return Value{Kind: ArgInt, Int: v} }
func FloatValue(v float64) Value  { return Value{Kind: ArgFloat, Flt: v} }
func BoolValue(v bool) Value      { return Value{Kind: ArgBool, Bool: v} }

// AsString renders the value as text regardless of its underlying
// kind; used by the query engine's substring filter and by node
// attribute accessors, which are untyped by contract.
func (v Value) AsString() string {
	switch v.Kind {
	case ArgString:
		return v.Str
	case ArgInt:
		return itoa(v.Int)
	case ArgFloat:
		return ftoa(v.Flt)
	case ArgBool:
		if v.Bool {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// Event is an immutable ingested record: a monotonic time relative to
// its source's timebase, a reference to its interned EventType,
// schema-aligned arguments, and a position assigned at the following
// endEventBatch.
//
// Event is a value type. It is copied freely; the Args slice is
// treated as immutable after construction (shared, never mutated in
// place) so copies remain cheap and safe to hand to query results.
type Event struct {
	Time     int64 // microseconds, relative to the owning source's timebase
	Type     *EventType
	Args     []Value // schema-aligned with Type.Args
	Position uint64  // 0 until the next renumber pass; root is reserved for position 0

	// Seq is a session-wide ingest sequence assigned by the listener
	// before fan-out; it is never reset between batches. Every index that holds a copy of the same
	// logical event carries the same Seq, which is what lets the
	// listener correlate a zone index's now-positioned copy with an
	// event-name index's copy during the renumber pass without
	// depending on (time, type) uniqueness. Not part of any ordering
	// comparator; callers outside the listener should not rely on it.
	Seq uint64
}

// Arg looks up an argument by name using the owning EventType's
// schema. Returns the zero Value and false if the type has no such
// argument.
func (e Event) Arg(name string) (Value, bool) {
	if e.Type == nil {
		return Value{}, false
	}
	idx := e.Type.ArgIndex(name)
	if idx < 0 || idx >= len(e.Args) {
		return Value{}, false
	}
	return e.Args[idx], true
}

func (e Event) IsInternal() bool    { return e.Type != nil && e.Type.Has(FlagInternal) }
func (e Event) IsScopeEnter() bool  { return e.Type != nil && e.Type.Has(FlagScopeEnter) }
func (e Event) IsScopeLeave() bool  { return e.Type != nil && e.Type.Has(FlagScopeLeave) }

// Before reports whether e sorts strictly before o under the
// database's canonical (time, position) comparator.
func (e Event) Before(o Event) bool {
	if e.Time != o.Time {
		return e.Time < o.Time
	}
	return e.Position < o.Position
}
