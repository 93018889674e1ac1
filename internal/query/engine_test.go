package query

import (
	"testing"

	"github.com/sirupsen/logrus"

	"tracedb/internal/listener"
	"tracedb/internal/registry"
	"tracedb/internal/source"
	"tracedb/pkg/types"
)

func TestClassify_PlainWordIsFilter(t *testing.T) {
	if got := Classify("timeout"); got != types.QueryFilter {
		t.Fatalf("Classify(timeout) = %v, want QueryFilter", got)
	}
}

func TestClassify_RegexLiteral(t *testing.T) {
	if got := Classify("/^wtf\\./i"); got != types.QueryRegexFilter {
		t.Fatalf("Classify = %v, want QueryRegexFilter", got)
	}
}

func TestClassify_TreeExpression(t *testing.T) {
	if got := Classify("/zone/scope[@name='work']"); got != types.QueryTreeExpression {
		t.Fatalf("Classify = %v, want QueryTreeExpression", got)
	}
}

func TestClassify_LeadingSlashWithoutValidRegexDelimiterIsTreeExpression(t *testing.T) {
	if got := Classify("/zone"); got != types.QueryTreeExpression {
		t.Fatalf("Classify(/zone) = %v, want QueryTreeExpression", got)
	}
}

func TestRunFilter_SubstringMatchesEventArgsAndTypeName(t *testing.T) {
	l, _ := seedListener(t)

	res, err := Run(l, "work")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(res.Results))
	}
	if res.Results[0].NodeType() != types.NodeScopeNode {
		t.Fatalf("result NodeType = %v, want NodeScopeNode (a scope-enter match wraps its scope)", res.Results[0].NodeType())
	}
}

func TestRunFilter_NoMatchReturnsEmptyResults(t *testing.T) {
	l, _ := seedListener(t)

	res, err := Run(l, "nonexistent-needle")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Results) != 0 {
		t.Fatalf("got %d results, want 0", len(res.Results))
	}
}

func TestRun_RegexFilterMatchesCaseInsensitively(t *testing.T) {
	l, _ := seedListener(t)

	res, err := Run(l, "/WORK/i")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(res.Results))
	}
}

func TestRun_UnparsableRegexReturnsError(t *testing.T) {
	l, _ := seedListener(t)

	if _, err := Run(l, "/[/"); err == nil {
		t.Fatalf("expected an error for an unparsable regex body")
	}
}

func TestRun_TreeExpressionWalksDatabaseToScope(t *testing.T) {
	l, _ := seedListener(t)

	res, err := Run(l, "/zone/scope[@name='work']")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(res.Results))
	}
	if res.Results[0].NodeName() != "work" {
		t.Fatalf("result name = %q, want work", res.Results[0].NodeName())
	}
}

func TestRun_UnparsableTreeExpressionReturnsError(t *testing.T) {
	l, _ := seedListener(t)

	if _, err := Run(l, "not-a-path("); err == nil {
		t.Fatalf("expected an error for an unparsable tree expression")
	}
}

// TestRunFilter_SortsByTimeAcrossZonesNotPosition covers seed scenario
// S5's match-all case: two zones each with one scope, where per-zone
// position renumbering (zone A always renumbers before zone B,
// regardless of which batch created them) puts zone B's events at
// higher positions than zone A's even though zone B's events happened
// earlier in time. A position-only sort would return A before B; the
// correct result is ordered by enter time and excludes the bare leave
// events entirely.
func TestRunFilter_SortsByTimeAcrossZonesNotPosition(t *testing.T) {
	reg := registry.New()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	l := listener.New(reg, log)

	zoneA := types.ZoneIdentity{Name: "zoneA", Type: "goroutine", Location: "host"}
	zoneB := types.ZoneIdentity{Name: "zoneB", Type: "goroutine", Location: "host"}

	l.BeginEventBatch(nil)
	l.TraceEvent(source.ZoneCreateEvent(reg, zoneA, 0))
	l.TraceEvent(types.Event{Time: 20, Type: reg.ScopeEnter, Args: []types.Value{types.StringValue("A")}})
	l.TraceEvent(types.Event{Time: 30, Type: reg.ScopeLeave})
	l.EndEventBatch()

	l.BeginEventBatch(nil)
	l.TraceEvent(source.ZoneCreateEvent(reg, zoneB, 0))
	l.TraceEvent(types.Event{Time: 0, Type: reg.ScopeEnter, Args: []types.Value{types.StringValue("B")}})
	l.TraceEvent(types.Event{Time: 50, Type: reg.ScopeLeave})
	l.EndEventBatch()

	res, err := Run(l, ".*")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("got %d results, want 2 (the two scopes, leaves excluded): %+v", len(res.Results), res.Results)
	}
	if res.Results[0].NodeName() != "B" || res.Results[1].NodeName() != "A" {
		t.Fatalf("got order %q, %q, want B (enter@0) before A (enter@20)", res.Results[0].NodeName(), res.Results[1].NodeName())
	}
}

func TestSubstringPredicate_FallsBackToLiteralOnUncompilableRegex(t *testing.T) {
	pred, compiled := substringPredicate("[unbalanced")
	if pred == nil {
		t.Fatalf("expected a literal-fallback predicate, got nil")
	}
	if compiled != "[unbalanced" {
		t.Fatalf("compiled = %q, want the original expression echoed back", compiled)
	}
	if !pred(types.Event{Type: &types.EventType{Name: "has[unbalanced-in-it"}}) {
		t.Fatalf("expected the literal fallback to match a substring occurrence")
	}
}
