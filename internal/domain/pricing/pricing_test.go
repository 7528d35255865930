package pricing

import (
	"math"
	"testing"
)

// loopTotal is the reference batch price: the sum of individually floored units.
func loopTotal(base, owned, quantity int64, m float64) int64 {
	var total int64
	for i := int64(0); i < quantity; i++ {
		total += CurrentCost(base, owned+i, m)
	}
	return total
}

// loopAffordable buys one unit at a time while the next unit is affordable.
func loopAffordable(base, owned, available int64, m float64) int64 {
	var qty int64
	for {
		unit := CurrentCost(base, owned+qty, m)
		if unit > available {
			return qty
		}
		available -= unit
		qty++
	}
}

func TestCurrentCost(t *testing.T) {
	cases := []struct {
		name  string
		base  int64
		owned int64
		m     float64
		want  int64
	}{
		{"first unit", 100, 0, 1.15, 100},
		{"float product floors down", 100, 1, 1.15, 114},
		{"second step", 100, 2, 1.15, 132},
		{"flat multiplier", 500, 40, 1, 500},
		{"negative owned treated as zero", 100, -3, 1.15, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CurrentCost(tc.base, tc.owned, tc.m); got != tc.want {
				t.Errorf("CurrentCost(%d, %d, %v) = %d, want %d", tc.base, tc.owned, tc.m, got, tc.want)
			}
		})
	}
}

func TestTotalCost_MatchesLoop(t *testing.T) {
	multipliers := []float64{1.01, 1.07, 1.15, 1.5, 2}
	bases := []int64{1, 20, 100, 500, 3_125_000_000}
	for _, m := range multipliers {
		for _, base := range bases {
			for owned := int64(0); owned <= 30; owned += 3 {
				for qty := int64(0); qty <= 40; qty++ {
					if ClosedFormTotal(base, owned, qty, m) > 1<<60 {
						continue // reference would overflow; saturation is covered elsewhere
					}
					want := loopTotal(base, owned, qty, m)
					if got := TotalCost(base, owned, qty, m); got != want {
						t.Fatalf("TotalCost(%d, %d, %d, %v) = %d, want %d", base, owned, qty, m, got, want)
					}
				}
			}
		}
	}
}

func TestTotalCost_EdgeCases(t *testing.T) {
	if got := TotalCost(100, 0, 0, 1.15); got != 0 {
		t.Errorf("zero quantity: got %d", got)
	}
	if got := TotalCost(100, 0, -5, 1.15); got != 0 {
		t.Errorf("negative quantity: got %d", got)
	}
	if got := TotalCost(250, 7, 12, 1); got != 3000 {
		t.Errorf("flat multiplier: got %d, want 3000", got)
	}
	if got := TotalCost(3_125_000_000, 500, 1000, 1.15); got != math.MaxInt64 {
		t.Errorf("expected saturation, got %d", got)
	}
}

func TestTotalCost_LargeQuantity(t *testing.T) {
	// A high quantity where the closed form is tempting: the loop stays authoritative.
	const base, owned, qty, m = 20, 0, 1000, 1.01
	got := TotalCost(base, owned, qty, m)
	if want := loopTotal(base, owned, qty, m); got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
	if got := MaxAffordable(base, owned, got, m); got != qty {
		t.Fatalf("MaxAffordable at exact total = %d, want %d", got, qty)
	}
}

func TestClosedFormTotal_WithinQuantityOfLoop(t *testing.T) {
	for _, m := range []float64{1, 1.01, 1.15, 1.3} {
		for owned := int64(0); owned < 25; owned++ {
			for qty := int64(1); qty < 60; qty++ {
				loop := TotalCost(100, owned, qty, m)
				closed := ClosedFormTotal(100, owned, qty, m)
				diff := closed - loop
				if diff < -1 || diff > qty {
					t.Fatalf("m=%v owned=%d qty=%d: closed %d vs loop %d", m, owned, qty, closed, loop)
				}
			}
		}
	}
}

func TestMaxAffordable_ExhaustiveBoundaries(t *testing.T) {
	for _, m := range []float64{1, 1.05, 1.15, 2} {
		for _, base := range []int64{1, 7, 100} {
			for owned := int64(0); owned <= 8; owned++ {
				for available := int64(0); available <= 2500; available++ {
					got := MaxAffordable(base, owned, available, m)
					if want := loopAffordable(base, owned, available, m); got != want {
						t.Fatalf("MaxAffordable(%d, %d, %d, %v) = %d, want %d", base, owned, available, m, got, want)
					}
					if TotalCost(base, owned, got, m) > available {
						t.Fatalf("quantity %d not affordable with %d", got, available)
					}
					if TotalCost(base, owned, got+1, m) <= available {
						t.Fatalf("quantity %d+1 still affordable with %d", got, available)
					}
				}
			}
		}
	}
}

func TestMaxAffordable_ExactTotals(t *testing.T) {
	// At exactly TotalCost(q) the answer is q; one gub less it is q-1.
	for q := int64(1); q <= 200; q++ {
		total := TotalCost(100, 3, q, 1.15)
		if got := MaxAffordable(100, 3, total, 1.15); got != q {
			t.Fatalf("at total(%d)=%d got %d", q, total, got)
		}
		if got := MaxAffordable(100, 3, total-1, 1.15); got != q-1 {
			t.Fatalf("at total(%d)-1 got %d, want %d", q, got, q-1)
		}
	}
}

func TestMaxAffordable_NonPositiveBudget(t *testing.T) {
	if got := MaxAffordable(100, 0, 0, 1.15); got != 0 {
		t.Errorf("zero budget: got %d", got)
	}
	if got := MaxAffordable(100, 0, -10, 1.15); got != 0 {
		t.Errorf("negative budget: got %d", got)
	}
	if got := MaxAffordable(100, 0, 99, 1.15); got != 0 {
		t.Errorf("just below first unit: got %d", got)
	}
}
