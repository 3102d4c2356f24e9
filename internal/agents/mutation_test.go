package agents

import (
	"testing"

	"github.com/talgya/dilemma/internal/entropy"
)

func newTestAgent(t *testing.T, memory int, bits string) *Agent {
	t.Helper()
	hist := make([]Move, memory)
	return &Agent{ID: 1, MemoryLength: memory, Strategy: mustParse(t, bits), History: hist}
}

func TestMutatePointFlipsExactlyOne(t *testing.T) {
	src := entropy.New(42)
	a := newTestAgent(t, 3, "00000000")

	a.MutatePoint(src)

	ones := 0
	for _, m := range a.Strategy {
		if m == Defect {
			ones++
		}
	}
	if ones != 1 {
		t.Fatalf("expected exactly one flipped entry, got %s", a.Strategy)
	}
	if len(a.Strategy) != 8 || a.MemoryLength != 3 {
		t.Fatalf("point mutation must not resize: memory %d len %d", a.MemoryLength, len(a.Strategy))
	}
}

func TestMutateSplitKeepsAHalf(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		src := entropy.New(seed)
		a := newTestAgent(t, 2, "0111")
		histBefore := len(a.History)

		if !a.MutateSplit(src) {
			t.Fatal("split should apply at memory 2")
		}
		if a.MemoryLength != 1 || len(a.Strategy) != 2 {
			t.Fatalf("seed %d: memory %d len %d", seed, a.MemoryLength, len(a.Strategy))
		}
		if s := a.Strategy.String(); s != "01" && s != "11" {
			t.Fatalf("seed %d: %q is neither half of 0111", seed, s)
		}
		if len(a.History) != histBefore {
			t.Fatal("split must not touch history")
		}
	}
}

func TestMutateSplitNoopAtMemoryOne(t *testing.T) {
	a := newTestAgent(t, 1, "01")
	if a.MutateSplit(entropy.New(1)) {
		t.Fatal("split must not apply at memory 1")
	}
	if a.MemoryLength != 1 || a.Strategy.String() != "01" {
		t.Fatalf("genome changed: %d %s", a.MemoryLength, a.Strategy)
	}
}

func TestMutateDuplicateDoublesTable(t *testing.T) {
	a := newTestAgent(t, 2, "0110")
	a.MutateDuplicate(entropy.New(1))

	if a.MemoryLength != 3 {
		t.Fatalf("memory %d, want 3", a.MemoryLength)
	}
	if got := a.Strategy.String(); got != "01100110" {
		t.Fatalf("got %q, want table concatenated with itself", got)
	}
}

func TestMutateDuplicateExtendsShortHistory(t *testing.T) {
	a := &Agent{ID: 1, MemoryLength: 1, Strategy: mustParse(t, "10"), History: []Move{1}}
	a.MutateDuplicate(entropy.New(3))
	if len(a.History) != 2 {
		t.Fatalf("expected history padded to 2, got %d", len(a.History))
	}

	long := &Agent{ID: 2, MemoryLength: 1, Strategy: mustParse(t, "10"), History: []Move{1, 0, 1, 1}}
	long.MutateDuplicate(entropy.New(3))
	if len(long.History) != 4 {
		t.Fatalf("history long enough, must not grow: %d", len(long.History))
	}
}

func TestDuplicateDoesNotAliasOldTable(t *testing.T) {
	a := newTestAgent(t, 1, "01")
	old := a.Strategy
	a.MutateDuplicate(entropy.New(1))
	a.Strategy[0] = Defect
	if old[0] != Cooperate {
		t.Fatal("duplicate reused the old backing array")
	}
}

func TestSplitDuplicateRoundTripLength(t *testing.T) {
	for m := 2; m <= 5; m++ {
		src := entropy.New(int64(m))
		a := &Agent{ID: 1, MemoryLength: m, Strategy: RandomStrategy(src, m), History: make([]Move, m)}

		a.MutateSplit(src)
		a.MutateDuplicate(src)
		if a.MemoryLength != m || len(a.Strategy) != TableSize(m) {
			t.Fatalf("split+duplicate: memory %d len %d, want %d/%d", a.MemoryLength, len(a.Strategy), m, TableSize(m))
		}

		a.MutateDuplicate(src)
		a.MutateSplit(src)
		if a.MemoryLength != m || len(a.Strategy) != TableSize(m) {
			t.Fatalf("duplicate+split: memory %d len %d, want %d/%d", a.MemoryLength, len(a.Strategy), m, TableSize(m))
		}
	}
}

func TestRiskMutationKeepsInvariant(t *testing.T) {
	src := entropy.New(99)
	rates := MutationRates{Point: 0.5, Split: 0.5, Duplicate: 0.5}
	a := &Agent{ID: 1, MemoryLength: 1, Strategy: RandomStrategy(src, 1), History: []Move{0}}

	fired := Mutations{}
	for i := 0; i < 500; i++ {
		m := a.RiskMutation(src, rates)
		fired.Point = fired.Point || m.Point
		fired.Split = fired.Split || m.Split
		fired.Duplicate = fired.Duplicate || m.Duplicate
		if err := a.CheckInvariants(); err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		// Keep the table small.
		for a.MemoryLength > 6 {
			a.MutateSplit(src)
		}
	}
	if !fired.Point || !fired.Split || !fired.Duplicate {
		t.Fatalf("expected every operator to fire at least once: %+v", fired)
	}
}

func TestRiskMutationZeroRates(t *testing.T) {
	a := newTestAgent(t, 2, "0110")
	if m := a.RiskMutation(entropy.New(1), MutationRates{}); m.Any() {
		t.Fatalf("no operator should fire: %+v", m)
	}
	if a.Strategy.String() != "0110" {
		t.Fatal("genome changed with zero rates")
	}
}
