package calocell

import "golang.org/x/exp/constraints"

// PulseSamples is the number of samples the digitizer delivers per cell.
const PulseSamples = 5

// PulseVector is a sampled analog pulse.
type PulseVector []float64

func (p PulseVector) Clone() PulseVector {
	if p == nil {
		return nil
	}
	out := make(PulseVector, len(p))
	copy(out, p)
	return out
}

func (p PulseVector) Sum() float64 {
	return sum(p)
}

// IsZero reports whether every sample is exactly zero.
func (p PulseVector) IsZero() bool {
	for _, v := range p {
		if v != 0 {
			return false
		}
	}
	return true
}

func dot[T constraints.Float](a, b []T) T {
	var acc T
	for i := range a {
		acc += a[i] * b[i]
	}
	return acc
}

func sum[T constraints.Float](a []T) T {
	var acc T
	for _, v := range a {
		acc += v
	}
	return acc
}

// addInto adds src to dst component-wise; both must have the same length.
func addInto[T constraints.Float](dst, src []T) {
	for i := range dst {
		dst[i] += src[i]
	}
}

func subInto[T constraints.Float](dst, src []T) {
	for i := range dst {
		dst[i] -= src[i]
	}
}
