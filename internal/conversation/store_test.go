package conversation

import "testing"

func TestScopedSwapIsolatesPrimary(t *testing.T) {
	s := NewStore(12)
	primary := s.Current()
	primary.Append(UserText("turn on D3"))
	primary.Append(AssistantText("D3 is on"))
	before := primary.Entries()

	restore := s.ScopedSwap()
	if !s.Swapped() {
		t.Fatal("Swapped() = false inside scope")
	}
	scoped := s.Current()
	if scoped == primary {
		t.Fatal("Current() returned primary inside scope")
	}
	if scoped.Len() != 0 {
		t.Fatalf("scoped transcript starts with %d entries", scoped.Len())
	}
	scoped.Append(UserText("autonomous check"))
	scoped.Append(AssistantText("No change"))
	restore()
	restore()

	if s.Current() != primary || s.Swapped() {
		t.Fatal("primary not restored")
	}
	after := primary.Entries()
	if len(after) != len(before) {
		t.Fatalf("primary len %d after scope, want %d", len(after), len(before))
	}
	for i := range before {
		if after[i] != before[i] {
			t.Errorf("entry %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}

	restore2 := s.ScopedSwap()
	defer restore2()
	if s.Current().Len() != 0 {
		t.Error("second scope saw entries from the first")
	}
}
