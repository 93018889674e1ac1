package registry

import "testing"

func TestNew_PreRegistersBuiltinTypes(t *testing.T) {
	r := New()

	if r.ZoneCreate == nil || r.ZoneCreate.Name != NameZoneCreate {
		t.Fatalf("ZoneCreate not pre-registered")
	}
	if r.ScopeEnter == nil || r.ScopeEnter.Name != NameScopeEnter {
		t.Fatalf("ScopeEnter not pre-registered")
	}
	if r.ScopeLeave == nil || r.ScopeLeave.Name != NameScopeLeave {
		t.Fatalf("ScopeLeave not pre-registered")
	}
	if len(r.All()) != 10 {
		t.Fatalf("All() = %d types, want 10 builtins", len(r.All()))
	}
}

func TestIntern_FirstCallWins(t *testing.T) {
	r := New()

	t1 := r.Intern("app.request#start", 0, nil)
	t2 := r.Intern("app.request#start", 0, nil)
	if t1 != t2 {
		t.Fatalf("Intern returned distinct pointers for the same name")
	}
}

func TestIntern_AssignsDenseIncreasingIDs(t *testing.T) {
	r := New()
	before := len(r.All())

	t1 := r.Intern("a", 0, nil)
	t2 := r.Intern("b", 0, nil)

	if t1.ID != before || t2.ID != before+1 {
		t.Fatalf("got IDs %d, %d, want %d, %d", t1.ID, t2.ID, before, before+1)
	}
}

func TestLookup_UnregisteredNameReturnsNil(t *testing.T) {
	r := New()
	if r.Lookup("does.not#exist") != nil {
		t.Fatalf("expected nil for unregistered name")
	}
}

func TestLookup_FindsRegisteredType(t *testing.T) {
	r := New()
	got := r.Lookup(NameZoneCreate)
	if got != r.ZoneCreate {
		t.Fatalf("Lookup(%q) = %v, want the cached ZoneCreate handle", NameZoneCreate, got)
	}
}

func TestAll_ReturnsRegistrationOrderCopy(t *testing.T) {
	r := New()
	out := r.All()
	out[0] = nil
	if r.All()[0] == nil {
		t.Fatalf("All() leaked its internal slice")
	}
}
