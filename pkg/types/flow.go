package types

// FlowID is the session-unique identifier carried by flow-branch,
// flow-extend, flow-terminate and flow-data events.
type FlowID int64

// NoFlow is the sentinel FlowID meaning "no parent flow".
const NoFlow FlowID = -1

// Flow correlates a chain of asynchronous flow events by id. The
// parent reference is weak: the parent Flow is independently owned by
// the FlowTracker's map, not copied or embedded here.
type Flow struct {
	ID       FlowID
	ParentID FlowID // NoFlow if the branch event named no parent

	BranchEvent    Event
	ExtendEvents   []Event
	TerminateEvent Event
	HasTerminate   bool
	Closed         bool

	// DataEvents backs GetData(); it is the ingest-order log of the
	// flow's data-append events.
	DataEvents []Event
}

// GetData materializes the flow's key/value map by left-folding its
// data-event list in arrival order; later events override earlier
// keys for the same name. A builtin data-append event (FlagInternal,
// carrying "name"/"value" arguments) contributes one pair; a
// user-defined appender contributes every argument except the flow id.
func (f *Flow) GetData(flowIDArg string) map[string]Value {
	out := make(map[string]Value, len(f.DataEvents))
	for _, e := range f.DataEvents {
		if e.Type != nil && e.Type.Has(FlagInternal) {
			name, ok := e.Arg("name")
			if !ok {
				continue
			}
			val, _ := e.Arg("value")
			out[name.AsString()] = val
			continue
		}
		for i, spec := range e.Type.Args {
			if spec.Name == flowIDArg {
				continue
			}
			if i < len(e.Args) {
				out[spec.Name] = e.Args[i]
			}
		}
	}
	return out
}
