// Package registry interns EventType schemas by name and pre-registers
// the fixed built-in types the listener and zone index recognize
// without string comparison on the hot path (spec.md §4.1).
package registry

import (
	"sync"

	"tracedb/pkg/types"
)

// Well-known built-in type names.
const (
	NameZoneCreate     = "wtf.zone#create"
	NameScopeEnter     = "wtf.scope#enter"
	NameScopeLeave     = "wtf.scope#leave"
	NameFlowBranch     = "wtf.flow#branch"
	NameFlowExtend     = "wtf.flow#extend"
	NameFlowTerminate  = "wtf.flow#terminate"
	NameFlowAppendData = "wtf.flow#appendData"
	NameFrameStart     = "wtf.frame#start"
	NameFrameEnd       = "wtf.frame#end"
	NameFrameInstant   = "wtf.frame#instant"
)

// FlowIDArg is the schema argument name every flow event carries.
const FlowIDArg = "id"

// ScopeNameArg is the schema argument name the generic wtf.scope#enter
// type carries for a scope's display label. A source adapter may
// instead intern a distinct EventType per scope label (carrying
// FlagScopeEnter directly, with no ScopeNameArg); scopeNode.NodeName
// prefers the argument when present and falls back to the event
// type's own name otherwise.
const ScopeNameArg = "name"

// Registry interns EventType schemas by name and hands out stable
// pointers. Reads take the read lock and Intern, the only writer,
// takes the write lock, so interning is safe at any time, including
// mid-batch.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*types.EventType
	byID    []*types.EventType
	nextID  int

	// Cached handles for the hot-path type checks the listener and
	// zone index perform without a string comparison.
	ZoneCreate     *types.EventType
	ScopeEnter     *types.EventType
	ScopeLeave     *types.EventType
	FlowBranch     *types.EventType
	FlowExtend     *types.EventType
	FlowTerminate  *types.EventType
	FlowAppendData *types.EventType
	FrameStart     *types.EventType
	FrameEnd       *types.EventType
	FrameInstant   *types.EventType
}

// New creates a registry with every built-in type pre-registered.
func New() *Registry {
	r := &Registry{byName: make(map[string]*types.EventType)}

	r.ZoneCreate = r.register(NameZoneCreate, types.FlagInternal|types.FlagBuiltin, []types.ArgSpec{
		{Name: "name", Kind: types.ArgString},
		{Name: "type", Kind: types.ArgString},
		{Name: "location", Kind: types.ArgString},
	})
	r.ScopeEnter = r.register(NameScopeEnter, types.FlagScopeEnter|types.FlagBuiltin, []types.ArgSpec{
		{Name: ScopeNameArg, Kind: types.ArgString},
	})
	r.ScopeLeave = r.register(NameScopeLeave, types.FlagScopeLeave|types.FlagBuiltin, nil)
	r.FlowBranch = r.register(NameFlowBranch, types.FlagBuiltin, []types.ArgSpec{
		{Name: FlowIDArg, Kind: types.ArgInt},
		{Name: "parent", Kind: types.ArgInt},
	})
	r.FlowExtend = r.register(NameFlowExtend, types.FlagBuiltin, []types.ArgSpec{
		{Name: FlowIDArg, Kind: types.ArgInt},
	})
	r.FlowTerminate = r.register(NameFlowTerminate, types.FlagBuiltin, []types.ArgSpec{
		{Name: FlowIDArg, Kind: types.ArgInt},
	})
	r.FlowAppendData = r.register(NameFlowAppendData, types.FlagInternal|types.FlagBuiltin, []types.ArgSpec{
		{Name: FlowIDArg, Kind: types.ArgInt},
		{Name: "name", Kind: types.ArgString},
		{Name: "value", Kind: types.ArgString},
	})
	r.FrameStart = r.register(NameFrameStart, types.FlagBuiltin, nil)
	r.FrameEnd = r.register(NameFrameEnd, types.FlagBuiltin, nil)
	r.FrameInstant = r.register(NameFrameInstant, types.FlagBuiltin, nil)

	return r
}

func (r *Registry) register(name string, flags types.EventFlag, args []types.ArgSpec) *types.EventType {
	t := &types.EventType{ID: r.nextID, Name: name, Flags: flags, Args: args}
	r.nextID++
	r.byName[name] = t
	r.byID = append(r.byID, t)
	return t
}

// Intern returns the existing EventType for name, or creates and
// registers a new one with the given schema and flags. Safe to call
// mid-batch: the source adapter is expected to have interned its
// schemas before referencing them, but a late-arriving unknown name
// is handled gracefully rather than rejected.
func (r *Registry) Intern(name string, flags types.EventFlag, args []types.ArgSpec) *types.EventType {
	r.mu.RLock()
	if t, ok := r.byName[name]; ok {
		r.mu.RUnlock()
		return t
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.byName[name]; ok {
		return t
	}
	return r.register(name, flags, args)
}

// Lookup returns the interned type for name, or nil if none has been
// registered.
func (r *Registry) Lookup(name string) *types.EventType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// All returns every interned type in registration order.
func (r *Registry) All() []*types.EventType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.EventType, len(r.byID))
	copy(out, r.byID)
	return out
}
