// Package shares implements the certificate combinatorics used by selling and
// presidency-dump resolution: which share-unit totals a multiset of
// certificates can form, and which concrete certificates realize a given
// total.
//
// The package works on plain share-unit sizes; callers map certificates to
// sizes (and back via the returned indices). Selections are deterministic for
// a given input ordering: callers pass certificates sorted by size then ID.
package shares

import "errors"

// ErrNoCombination is returned when no subset of the given certificates sums
// exactly to the requested amount.
var ErrNoCombination = errors.New("shares: no certificate combination for amount")

// Totals returns the achievable positive share-unit totals that subsets of
// sizes can form without exceeding maxUnits, in ascending order. A zero or
// negative maxUnits yields an empty set: selling is blocked.
func Totals(sizes []int, maxUnits int) []int {
	if maxUnits <= 0 {
		return nil
	}
	reachable := make([]bool, maxUnits+1)
	reachable[0] = true
	for _, sz := range sizes {
		if sz <= 0 {
			continue
		}
		for t := maxUnits; t >= sz; t-- {
			if reachable[t-sz] {
				reachable[t] = true
			}
		}
	}
	var totals []int
	for t := 1; t <= maxUnits; t++ {
		if reachable[t] {
			totals = append(totals, t)
		}
	}
	return totals
}

// CanMake reports whether some subset of sizes sums exactly to target.
func CanMake(sizes []int, target int) bool {
	if target == 0 {
		return true
	}
	for _, t := range Totals(sizes, target) {
		if t == target {
			return true
		}
	}
	return false
}

// MinCombination returns the indices of the fewest certificates summing
// exactly to target. A zero target yields an empty selection.
func MinCombination(sizes []int, target int) ([]int, error) {
	return combination(sizes, target, false)
}

// MaxCombination returns the indices of the most certificates summing exactly
// to target. Used when the seller wants to shed as many certificates as the
// amount allows.
func MaxCombination(sizes []int, target int) ([]int, error) {
	return combination(sizes, target, true)
}

// combination runs a 0/1 subset-sum DP keeping full selections per total so
// reconstructed chains can never reuse a certificate.
func combination(sizes []int, target int, most bool) ([]int, error) {
	if target < 0 {
		return nil, ErrNoCombination
	}
	if target == 0 {
		return []int{}, nil
	}
	best := make([][]int, target+1)
	best[0] = []int{}
	for i, sz := range sizes {
		if sz <= 0 {
			continue
		}
		// Downward so each certificate is used at most once per selection.
		for t := target; t >= sz; t-- {
			prev := best[t-sz]
			if prev == nil {
				continue
			}
			if best[t] != nil {
				if most && len(prev)+1 <= len(best[t]) {
					continue
				}
				if !most && len(prev)+1 >= len(best[t]) {
					continue
				}
			}
			sel := make([]int, len(prev), len(prev)+1)
			copy(sel, prev)
			best[t] = append(sel, i)
		}
	}
	if best[target] == nil {
		return nil, ErrNoCombination
	}
	return best[target], nil
}

// DumpThreshold returns the minimum number of share units the president must
// sell for the presidency to change hands: the smallest s with
// presidentUnits−s < bestOtherUnits. Selling below the threshold never
// implicates the presidency; at or above it, the transfer protocol must
// execute within the same action. The result is never below 1 (selling
// nothing is not a sale).
func DumpThreshold(presidentUnits, bestOtherUnits int) int {
	s := presidentUnits - bestOtherUnits + 1
	if s < 1 {
		return 1
	}
	return s
}
