// Package pricing computes generator prices under geometric cost scaling.
//
// The iterative sum of per-unit prices is the definition of a batch price.
// Every other formula in this package is an estimator checked against it.
package pricing

import "math"

// CurrentCost returns the price of the next unit when owned units are held.
// The product is evaluated in float64 so results match what clients display
// (100 * 1.15 is 114.99999999999999, which floors to 114).
func CurrentCost(baseCost, owned int64, multiplier float64) int64 {
	if owned < 0 {
		owned = 0
	}
	return floorToInt64(float64(baseCost) * math.Pow(multiplier, float64(owned)))
}

// TotalCost returns the price of buying quantity units starting at owned.
// It returns 0 for quantity <= 0 and saturates at math.MaxInt64.
func TotalCost(baseCost, owned, quantity int64, multiplier float64) int64 {
	if quantity <= 0 {
		return 0
	}
	if multiplier == 1 {
		return mulSat(CurrentCost(baseCost, 0, 1), quantity)
	}
	var total int64
	for i := int64(0); i < quantity; i++ {
		total = addSat(total, CurrentCost(baseCost, owned+i, multiplier))
		if total == math.MaxInt64 {
			break
		}
	}
	return total
}

// MaxAffordable returns the largest quantity whose TotalCost fits in available.
// The answer is the one a buy-one-at-a-time loop produces.
func MaxAffordable(baseCost, owned, available int64, multiplier float64) int64 {
	if available <= 0 {
		return 0
	}
	if multiplier == 1 {
		unit := CurrentCost(baseCost, 0, 1)
		if unit <= 0 {
			return math.MaxInt64
		}
		return available / unit
	}

	var qty int64
	remaining := available
	for {
		unit := CurrentCost(baseCost, owned+qty, multiplier)
		if unit > remaining {
			return qty
		}
		if unit <= 0 {
			// Zero-priced units are unbounded; stop at saturation.
			return math.MaxInt64
		}
		remaining -= unit
		qty++
	}
}

// ClosedFormTotal evaluates the geometric series for a batch in one step:
// floor(base * m^owned * (m^quantity - 1) / (m - 1)). Because it floors once
// instead of per unit it may exceed TotalCost by less than quantity.
// It is an estimator kept to bound TotalCost in tests; purchases are always
// charged TotalCost.
func ClosedFormTotal(baseCost, owned, quantity int64, multiplier float64) int64 {
	if quantity <= 0 {
		return 0
	}
	start := float64(baseCost) * math.Pow(multiplier, float64(owned))
	if multiplier == 1 {
		return floorToInt64(start * float64(quantity))
	}
	return floorToInt64(start * (math.Pow(multiplier, float64(quantity)) - 1) / (multiplier - 1))
}

func floorToInt64(x float64) int64 {
	switch {
	case math.IsNaN(x):
		return 0
	case x >= math.MaxInt64:
		return math.MaxInt64
	case x <= math.MinInt64:
		return math.MinInt64
	}
	return int64(math.Floor(x))
}

func addSat(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func mulSat(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxInt64/b {
		return math.MaxInt64
	}
	return a * b
}
