// Package flowtracker implements spec.md §4.6: correlating
// asynchronous flow events (branch/extend/terminate/data-append) by
// flow id across zones.
package flowtracker

import (
	"github.com/sirupsen/logrus"

	"tracedb/internal/registry"
	"tracedb/pkg/types"
)

// Tracker maintains a flowId -> Flow map. Unlike the summary/zone/event
// indices it is not an IngestTarget and not part of the listener's
// fixed fan-out list: the listener passes every event to Observe,
// which does the classification itself and ignores non-flow events.
type Tracker struct {
	reg    *registry.Registry
	logger *logrus.Logger
	flows  map[types.FlowID]*types.Flow
}

func New(reg *registry.Registry, logger *logrus.Logger) *Tracker {
	return &Tracker{reg: reg, logger: logger, flows: make(map[types.FlowID]*types.Flow)}
}

// Observe classifies e and, if it is a flow event, folds it into the
// tracker's state. Returns true if e was a flow event.
func (t *Tracker) Observe(e types.Event) bool {
	if e.Type == nil {
		return false
	}
	switch e.Type.Name {
	case registry.NameFlowBranch:
		t.branch(e)
	case registry.NameFlowExtend:
		t.extend(e)
	case registry.NameFlowTerminate:
		t.terminate(e)
	case registry.NameFlowAppendData:
		t.appendData(e)
	default:
		if spec := e.Type.ArgIndex(registry.FlowIDArg); spec >= 0 {
			// a user-defined data appender: any event whose schema
			// carries the flow id argument but isn't one of the four
			// builtin verbs is treated as a data-append.
			t.appendData(e)
			return true
		}
		return false
	}
	return true
}

func (t *Tracker) flowID(e types.Event) (types.FlowID, bool) {
	v, ok := e.Arg(registry.FlowIDArg)
	if !ok {
		return 0, false
	}
	return types.FlowID(v.Int), true
}

func (t *Tracker) branch(e types.Event) {
	id, ok := t.flowID(e)
	if !ok {
		return
	}
	parent := types.NoFlow
	if v, ok := e.Arg("parent"); ok && v.Int != 0 {
		parent = types.FlowID(v.Int)
	}
	if _, exists := t.flows[id]; exists {
		return // duplicate branch for an id; first one wins
	}
	t.flows[id] = &types.Flow{ID: id, ParentID: parent, BranchEvent: e}
}

func (t *Tracker) extend(e types.Event) {
	id, ok := t.flowID(e)
	if !ok {
		return
	}
	f := t.flowOrCreate(id)
	if f.Closed && t.logger != nil {
		t.logger.WithField("flow", int64(id)).Warn("flow extend on a closed flow")
	}
	f.ExtendEvents = append(f.ExtendEvents, e)
}

func (t *Tracker) terminate(e types.Event) {
	id, ok := t.flowID(e)
	if !ok {
		return
	}
	f := t.flowOrCreate(id)
	f.TerminateEvent = e
	f.HasTerminate = true
	f.Closed = true
}

func (t *Tracker) appendData(e types.Event) {
	id, ok := t.flowID(e)
	if !ok {
		return
	}
	f := t.flowOrCreate(id)
	if f.Closed && t.logger != nil {
		t.logger.WithField("flow", int64(id)).Warn("flow data append on a closed flow")
	}
	f.DataEvents = append(f.DataEvents, e)
}

// flowOrCreate looks up id, creating a parentless Flow if an
// extend/terminate/data event arrives before its branch (tolerated
// rather than dropped, since flow ordering across zones is not
// guaranteed).
func (t *Tracker) flowOrCreate(id types.FlowID) *types.Flow {
	f, ok := t.flows[id]
	if !ok {
		f = &types.Flow{ID: id, ParentID: types.NoFlow}
		t.flows[id] = f
	}
	return f
}

// Get returns the flow identified by id, if known.
func (t *Tracker) Get(id types.FlowID) (*types.Flow, bool) {
	f, ok := t.flows[id]
	return f, ok
}

// Count returns the number of distinct flows tracked this session.
func (t *Tracker) Count() int { return len(t.flows) }

// All returns every tracked flow, in no particular order.
func (t *Tracker) All() []*types.Flow {
	out := make([]*types.Flow, 0, len(t.flows))
	for _, f := range t.flows {
		out = append(out, f)
	}
	return out
}
