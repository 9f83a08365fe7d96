package conversations

import "testing"

func TestPairKeyIsOrderIndependent(t *testing.T) {
	if pairKey("alice", "bob") != pairKey("bob", "alice") {
		t.Error("pairKey should be symmetric regardless of argument order")
	}
}

func TestPairKeyDistinguishesDifferentPairs(t *testing.T) {
	if pairKey("alice", "bob") == pairKey("alice", "carol") {
		t.Error("pairKey collided for distinct pairs")
	}
}

func TestDedupePreservesFirstOccurrenceOrder(t *testing.T) {
	got := dedupe([]string{"alice", "bob", "alice", "carol", "bob"})
	want := []string{"alice", "bob", "carol"}
	if len(got) != len(want) {
		t.Fatalf("dedupe = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dedupe[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDedupeEmptyInput(t *testing.T) {
	if got := dedupe(nil); len(got) != 0 {
		t.Errorf("dedupe(nil) = %v, want empty", got)
	}
}
