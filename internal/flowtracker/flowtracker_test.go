package flowtracker

import (
	"testing"

	"github.com/sirupsen/logrus"

	"tracedb/internal/registry"
	"tracedb/pkg/types"
)

func flowEvent(ty *types.EventType, args ...types.Value) types.Event {
	return types.Event{Type: ty, Args: args}
}

// TestFlowCorrelation covers seed scenario S6: branch/extend/terminate
// events sharing a flow id are correlated into one Flow regardless of
// which zone they arrived from.
func TestFlowCorrelation(t *testing.T) {
	reg := registry.New()
	tr := New(reg, logrus.New())

	ok := tr.Observe(flowEvent(reg.FlowBranch, types.IntValue(7), types.IntValue(0)))
	if !ok {
		t.Fatalf("Observe(branch) = false, want true")
	}
	tr.Observe(flowEvent(reg.FlowExtend, types.IntValue(7)))
	tr.Observe(flowEvent(reg.FlowTerminate, types.IntValue(7)))

	f, ok := tr.Get(7)
	if !ok {
		t.Fatalf("flow 7 not tracked")
	}
	if !f.Closed || !f.HasTerminate {
		t.Fatalf("flow = %+v, want Closed=true HasTerminate=true", f)
	}
	if len(f.ExtendEvents) != 1 {
		t.Fatalf("ExtendEvents = %d, want 1", len(f.ExtendEvents))
	}
}

func TestObserve_NonFlowEventReturnsFalse(t *testing.T) {
	reg := registry.New()
	tr := New(reg, logrus.New())

	if tr.Observe(flowEvent(reg.ScopeEnter, types.StringValue("x"))) {
		t.Fatalf("Observe(scope#enter) = true, want false")
	}
	if tr.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", tr.Count())
	}
}

func TestObserve_ExtendBeforeBranchCreatesParentlessFlow(t *testing.T) {
	reg := registry.New()
	tr := New(reg, logrus.New())

	tr.Observe(flowEvent(reg.FlowExtend, types.IntValue(3)))

	f, ok := tr.Get(3)
	if !ok {
		t.Fatalf("flow 3 not created from an out-of-order extend")
	}
	if f.ParentID != types.NoFlow {
		t.Fatalf("ParentID = %v, want NoFlow", f.ParentID)
	}
}

func TestObserve_DuplicateBranchKeepsFirst(t *testing.T) {
	reg := registry.New()
	tr := New(reg, logrus.New())

	tr.Observe(flowEvent(reg.FlowBranch, types.IntValue(1), types.IntValue(9)))
	tr.Observe(flowEvent(reg.FlowBranch, types.IntValue(1), types.IntValue(5)))

	f, _ := tr.Get(1)
	if f.ParentID != 9 {
		t.Fatalf("ParentID = %v, want 9 (first branch wins)", f.ParentID)
	}
}

func TestObserve_UserDefinedDataAppenderByFlowIDArg(t *testing.T) {
	reg := registry.New()
	ty := reg.Intern("app.flow#customData", 0, []types.ArgSpec{
		{Name: registry.FlowIDArg, Kind: types.ArgInt},
		{Name: "payload", Kind: types.ArgString},
	})
	tr := New(reg, logrus.New())
	tr.Observe(flowEvent(reg.FlowBranch, types.IntValue(2), types.IntValue(0)))

	handled := tr.Observe(flowEvent(ty, types.IntValue(2), types.StringValue("x")))
	if !handled {
		t.Fatalf("expected custom data-append event to be classified as a flow event")
	}
	f, _ := tr.Get(2)
	if len(f.DataEvents) != 1 {
		t.Fatalf("DataEvents = %d, want 1", len(f.DataEvents))
	}
}

func TestAll_ReturnsEveryTrackedFlow(t *testing.T) {
	reg := registry.New()
	tr := New(reg, logrus.New())

	tr.Observe(flowEvent(reg.FlowBranch, types.IntValue(1), types.IntValue(0)))
	tr.Observe(flowEvent(reg.FlowBranch, types.IntValue(2), types.IntValue(0)))

	if len(tr.All()) != 2 {
		t.Fatalf("All() = %d flows, want 2", len(tr.All()))
	}
}
