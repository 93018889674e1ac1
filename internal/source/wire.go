// Package source holds the trace-event wire decoder shared by the
// kafkasource, dockersource, and filesource adapters, plus the
// adapters themselves. Wire parsing lives entirely at this boundary,
// never inside the core indices.
package source

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"tracedb/internal/registry"
	"tracedb/pkg/types"
)

// WireEvent is the newline-delimited JSON frame every adapter decodes:
// one JSON object per trace event, fields chosen to round-trip
// through Event/EventType without any adapter-specific knowledge of
// argument schemas. Flags is only consulted the first time a type
// name is seen; later frames of the same type reuse its interned
// schema and flags.
type WireEvent struct {
	Time  int64                  `json:"time"`
	Type  string                 `json:"type"`
	Flags []string               `json:"flags,omitempty"`
	Args  map[string]interface{} `json:"args,omitempty"`
}

func parseFlags(names []string) types.EventFlag {
	var f types.EventFlag
	for _, n := range names {
		switch n {
		case "internal":
			f |= types.FlagInternal
		case "scopeEnter":
			f |= types.FlagScopeEnter
		case "scopeLeave":
			f |= types.FlagScopeLeave
		}
	}
	return f
}

// decodeArgs splits a raw JSON args object into an ordered schema (for
// first-time interning) and a name-keyed value map (used regardless
// of whether this occurrence established the schema), since a type
// already interned by an earlier frame may order its args slice
// differently than this frame's JSON object happens to decode them.
func decodeArgs(raw map[string]interface{}) ([]types.ArgSpec, map[string]types.Value) {
	if len(raw) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(raw))
	for k := range raw {
		names = append(names, k)
	}
	sort.Strings(names)

	specs := make([]types.ArgSpec, 0, len(names))
	vals := make(map[string]types.Value, len(names))
	for _, name := range names {
		v := decodeValue(raw[name])
		specs = append(specs, types.ArgSpec{Name: name, Kind: v.Kind})
		vals[name] = v
	}
	return specs, vals
}

func decodeValue(raw interface{}) types.Value {
	switch v := raw.(type) {
	case string:
		return types.StringValue(v)
	case bool:
		return types.BoolValue(v)
	case float64:
		if v == math.Trunc(v) {
			return types.IntValue(int64(v))
		}
		return types.FloatValue(v)
	default:
		return types.StringValue(fmt.Sprint(v))
	}
}

// DecodeEvent interns w.Type against reg (using w.Flags/w.Args as the
// schema only if this is the first occurrence) and builds an Event
// whose Args slice is aligned to the interned type's argument order
// regardless of the JSON object's own key order. A zone#create frame
// decodes the same way other adapters handle it: Type is
// "wtf.zone#create" and Args carries name/type/location, reusing the
// registry's pre-registered schema rather than a bespoke frame shape.
func DecodeEvent(reg *registry.Registry, w WireEvent) types.Event {
	specs, valByName := decodeArgs(w.Args)
	t := reg.Intern(w.Type, parseFlags(w.Flags), specs)

	args := make([]types.Value, len(t.Args))
	for i, spec := range t.Args {
		if v, ok := valByName[spec.Name]; ok {
			args[i] = v
		}
	}
	return types.Event{Time: w.Time, Type: t, Args: args}
}

// DecodeLine unmarshals one newline-delimited JSON frame into a
// WireEvent, returning an error the caller should report via
// Listener.SourceError rather than crash the read loop.
func DecodeLine(line []byte) (WireEvent, error) {
	var w WireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return WireEvent{}, fmt.Errorf("decode trace event: %w", err)
	}
	return w, nil
}

func flagNames(f types.EventFlag) []string {
	var names []string
	if f.Has(types.FlagInternal) {
		names = append(names, "internal")
	}
	if f.Has(types.FlagScopeEnter) {
		names = append(names, "scopeEnter")
	}
	if f.Has(types.FlagScopeLeave) {
		names = append(names, "scopeLeave")
	}
	return names
}

func encodeValue(v types.Value) interface{} {
	switch v.Kind {
	case types.ArgInt:
		return v.Int
	case types.ArgFloat:
		return v.Flt
	case types.ArgBool:
		return v.Bool
	default:
		return v.Str
	}
}

// EncodeEvent is DecodeEvent's inverse, used by internal/snapshot to
// serialize an already-interned Event back to the wire frame shape.
// FlagBuiltin is never round-tripped: a reimported type is interned
// fresh by whichever frame names it first, which is never treated as
// builtin regardless of what the original type was.
func EncodeEvent(e types.Event) WireEvent {
	w := WireEvent{Time: e.Time, Type: e.Type.Name, Flags: flagNames(e.Type.Flags &^ types.FlagBuiltin)}
	if len(e.Args) > 0 {
		w.Args = make(map[string]interface{}, len(e.Args))
		for i, spec := range e.Type.Args {
			if i < len(e.Args) {
				w.Args[spec.Name] = encodeValue(e.Args[i])
			}
		}
	}
	return w
}

// EncodeLine marshals e to one newline-terminated JSON wire frame.
func EncodeLine(e types.Event) ([]byte, error) {
	w := EncodeEvent(e)
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode trace event: %w", err)
	}
	return append(b, '\n'), nil
}

// ZoneCreateEvent builds the wtf.zone#create event for identity, for
// adapters that synthesize zones from out-of-band metadata (container
// attach, file discovery) rather than decoding one from the wire.
func ZoneCreateEvent(reg *registry.Registry, identity types.ZoneIdentity, time int64) types.Event {
	return types.Event{
		Time: time,
		Type: reg.ZoneCreate,
		Args: []types.Value{
			types.StringValue(identity.Name),
			types.StringValue(identity.Type),
			types.StringValue(identity.Location),
		},
	}
}
