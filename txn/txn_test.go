package txn

import "testing"

func TestParseLevelRoundTrip(t *testing.T) {
	cases := map[string]Level{
		"rc":  ReadCommitted,
		"rr":  RepeatableRead,
		"ra":  ReadAtomic,
		"cc":  Causal,
		"pre": Prefix,
		"si":  SnapshotIsolation,
		"ser": Serializable,
		"":    Inc,
	}
	for code, want := range cases {
		got, err := ParseLevel(code)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", code, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", code, got, want)
		}
	}

	if _, err := ParseLevel("bogus"); err == nil {
		t.Fatal("expected error for unknown model code")
	}
}

func TestLevelHierarchy(t *testing.T) {
	order := []Level{ReadCommitted, RepeatableRead, ReadAtomic, Causal, Prefix, SnapshotIsolation, Serializable}
	for i := 0; i < len(order); i++ {
		for j := 0; j < len(order); j++ {
			want := i < j
			if got := order[i].Weaker(order[j]); got != want {
				t.Fatalf("%v.Weaker(%v) = %v, want %v", order[i], order[j], got, want)
			}
		}
	}

	if Inc.Weaker(Serializable) || Serializable.Weaker(Inc) {
		t.Fatal("Inc must not compare as weaker/stronger than any level")
	}
}

func TestTxnIDLess(t *testing.T) {
	a := TxnID{Node: 1, Pos: 2}
	b := TxnID{Node: 1, Pos: 3}
	c := TxnID{Node: 2, Pos: 0}

	if !a.Less(b) {
		t.Fatal("expected a < b by Pos")
	}
	if b.Less(a) {
		t.Fatal("expected b not < a")
	}
	if !b.Less(c) {
		t.Fatal("expected b < c by Node")
	}
	if !Root.Less(a) {
		t.Fatal("expected Root < a")
	}
}
