// Package mathx holds small generic numeric helpers.
package mathx

import "golang.org/x/exp/constraints"

// Clamp pins v to [lo, hi]. Swapped bounds are tolerated so a
// misordered range still produces a sane value.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
