package shares

import (
	"reflect"
	"testing"
)

// --- Totals ---

func TestTotals_SingleUnits(t *testing.T) {
	got := Totals([]int{1, 1, 1}, 3)
	want := []int{1, 2, 3}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTotals_MixedSizes(t *testing.T) {
	// A double and two singles: every total 1..4 is formable.
	got := Totals([]int{2, 1, 1}, 4)
	want := []int{1, 2, 3, 4}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTotals_GapFromIndivisibleCert(t *testing.T) {
	// Only doubles: odd totals are unreachable.
	got := Totals([]int{2, 2}, 4)
	want := []int{2, 4}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTotals_CappedByMaxUnits(t *testing.T) {
	got := Totals([]int{1, 1, 1, 1}, 2)
	want := []int{1, 2}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTotals_ZeroMaxBlocksEverything(t *testing.T) {
	if got := Totals([]int{1, 2}, 0); got != nil {
		t.Errorf("expected nil for zero cap, got %v", got)
	}
}

// --- CanMake ---

func TestCanMake(t *testing.T) {
	sizes := []int{2, 2, 1}
	cases := []struct {
		target int
		want   bool
	}{
		{0, true},
		{1, true},
		{2, true},
		{3, true},
		{4, true},
		{5, true},
		{6, false},
	}
	for _, c := range cases {
		if got := CanMake(sizes, c.target); got != c.want {
			t.Errorf("CanMake(%v, %d) = %v, want %v", sizes, c.target, got, c.want)
		}
	}
}

// --- Combinations ---

func TestMinCombination_PrefersFewestCertificates(t *testing.T) {
	// 2 is formable as {2} or {1,1}; the single double must win.
	sel, err := MinCombination([]int{1, 1, 2}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sel) != 1 || sel[0] != 2 {
		t.Errorf("expected the double certificate, got indices %v", sel)
	}
}

func TestMaxCombination_PrefersMostCertificates(t *testing.T) {
	sel, err := MaxCombination([]int{1, 1, 2}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sel) != 2 {
		t.Errorf("expected two singles, got indices %v", sel)
	}
}

func TestMinCombination_NoReuse(t *testing.T) {
	// 4 from {2,1,1} must use all three; a reusing DP would answer {2,2}.
	sel, err := MinCombination([]int{2, 1, 1}, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := make(map[int]bool)
	sum := 0
	sizes := []int{2, 1, 1}
	for _, i := range sel {
		if seen[i] {
			t.Fatalf("certificate index %d selected twice", i)
		}
		seen[i] = true
		sum += sizes[i]
	}
	if sum != 4 {
		t.Errorf("selection sums to %d, want 4", sum)
	}
}

func TestMinCombination_Impossible(t *testing.T) {
	if _, err := MinCombination([]int{2, 2}, 3); err != ErrNoCombination {
		t.Errorf("expected ErrNoCombination, got %v", err)
	}
}

func TestMinCombination_ZeroTarget(t *testing.T) {
	sel, err := MinCombination([]int{1, 2}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sel) != 0 {
		t.Errorf("expected empty selection, got %v", sel)
	}
}

// --- DumpThreshold ---

func TestDumpThreshold(t *testing.T) {
	cases := []struct {
		president, bestOther, want int
	}{
		{6, 3, 4},  // selling 4 leaves 2 < 3
		{6, 6, 1},  // tied: any sale loses the title
		{6, 7, 1},  // already out-held; clamped to 1
		{3, 2, 2},  // selling 1 keeps 2 >= 2
		{10, 0, 11}, // nobody else holds: unreachable
	}
	for _, c := range cases {
		if got := DumpThreshold(c.president, c.bestOther); got != c.want {
			t.Errorf("DumpThreshold(%d, %d) = %d, want %d", c.president, c.bestOther, got, c.want)
		}
	}
}
