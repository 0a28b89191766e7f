package stats

import (
	"math"
	"sort"
)

// MinSamples is the smallest window that yields statistics.
const MinSamples = 3

// Snapshot summarizes a window at one point in time.
type Snapshot struct {
	Mean  float64
	Std   float64 // population standard deviation
	Q1    float64
	Q3    float64
	Count int
}

// IQR returns the interquartile range Q3-Q1.
func (s Snapshot) IQR() float64 {
	return s.Q3 - s.Q1
}

// Compute returns the snapshot of values using the default MinSamples.
func Compute(values []float64) (Snapshot, bool) {
	return ComputeMin(values, MinSamples)
}

// ComputeMin returns the snapshot of values, or a zero snapshot and false when
// fewer than minSamples values are present.
func ComputeMin(values []float64, minSamples int) (Snapshot, bool) {
	n := len(values)
	if n == 0 || n < minSamples {
		return Snapshot{}, false
	}

	mean := pairwiseSum(values) / float64(n)

	sq := make([]float64, n)
	for i, v := range values {
		d := v - mean
		sq[i] = d * d
	}
	variance := pairwiseSum(sq) / float64(n)

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	return Snapshot{
		Mean:  mean,
		Std:   math.Sqrt(variance),
		Q1:    Percentile(sorted, 25),
		Q3:    Percentile(sorted, 75),
		Count: n,
	}, true
}

// Percentile returns the p-th percentile (0-100) of an ascending slice,
// interpolating linearly between the two closest ranks. Past the midpoint the
// interpolation runs back from the upper rank, so results match numpy's
// linear method bit for bit.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		return sorted[0]
	}
	if hi >= n {
		return sorted[n-1]
	}
	if lo == hi {
		return sorted[lo]
	}
	return lerp(sorted[lo], sorted[hi], rank-float64(lo))
}

func lerp(a, b, t float64) float64 {
	d := b - a
	if t >= 0.5 {
		return b - d*(1-t)
	}
	return a + d*t
}

// pairwiseBlock is the largest run summed with unrolled accumulators before
// pairwiseSum splits the input.
const pairwiseBlock = 128

// pairwiseSum adds values in the same order as numpy's pairwise summation:
// short runs sequentially, blocks of up to pairwiseBlock with eight
// interleaved accumulators, and longer inputs by recursive halving.
func pairwiseSum(values []float64) float64 {
	n := len(values)
	switch {
	case n < 8:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum
	case n <= pairwiseBlock:
		var r [8]float64
		copy(r[:], values[:8])
		i := 8
		for ; i < n-n%8; i += 8 {
			for j := range r {
				r[j] += values[i+j]
			}
		}
		sum := ((r[0] + r[1]) + (r[2] + r[3])) + ((r[4] + r[5]) + (r[6] + r[7]))
		for ; i < n; i++ {
			sum += values[i]
		}
		return sum
	default:
		half := n / 2
		half -= half % 8
		return pairwiseSum(values[:half]) + pairwiseSum(values[half:])
	}
}
