package assignment

import (
	"cmp"
	"math"
	"slices"
)

// ComputeQuotas splits total units across groups in proportion to weights
// using largest remainder apportionment. Each group first gets the floor of
// its exact share; leftover units go one at a time to the largest fractional
// remainders, ties broken by group key ascending. Groups with a non-positive
// weight get nothing.
//
// When caps is non-nil a group never exceeds its cap and groups without a
// cap entry are treated as capped at zero. Units clipped by a cap are
// apportioned again among groups with spare capacity, so the quotas sum to
// min(total, sum of eligible caps).
func ComputeQuotas(weights map[string]float64, total int, caps map[string]int) map[string]int {
	quotas := make(map[string]int)
	if total <= 0 {
		return quotas
	}

	active := make([]string, 0, len(weights))
	capacity := 0
	for g, w := range weights {
		if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			continue
		}
		if caps != nil {
			if caps[g] <= 0 {
				continue
			}
			capacity += caps[g]
		}
		active = append(active, g)
	}
	slices.Sort(active)

	remaining := total
	if caps != nil {
		remaining = min(total, capacity)
	}

	for remaining > 0 && len(active) > 0 {
		shares := apportion(weights, active, remaining)
		remaining = 0

		next := active[:0:0]
		for _, g := range active {
			q := quotas[g] + shares[g]
			if caps != nil && q >= caps[g] {
				remaining += q - caps[g]
				quotas[g] = caps[g]
				continue
			}
			quotas[g] = q
			next = append(next, g)
		}
		active = next
	}

	for g, q := range quotas {
		if q == 0 {
			delete(quotas, g)
		}
	}
	return quotas
}

// apportion runs one largest remainder round over groups, which must be
// sorted by key and carry positive weights.
func apportion(weights map[string]float64, groups []string, units int) map[string]int {
	var sum float64
	for _, g := range groups {
		sum += weights[g]
	}

	type share struct {
		group     string
		remainder float64
	}
	out := make(map[string]int, len(groups))
	rems := make([]share, 0, len(groups))
	given := 0
	for _, g := range groups {
		exact := float64(units) * weights[g] / sum
		floor := int(math.Floor(exact))
		out[g] = floor
		given += floor
		rems = append(rems, share{group: g, remainder: exact - float64(floor)})
	}

	slices.SortStableFunc(rems, func(a, b share) int {
		if c := cmp.Compare(b.remainder, a.remainder); c != 0 {
			return c
		}
		return cmp.Compare(a.group, b.group)
	})
	for i := 0; given < units; i++ {
		out[rems[i%len(rems)].group]++
		given++
	}
	return out
}
