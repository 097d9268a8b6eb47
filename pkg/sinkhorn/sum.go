package sinkhorn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// KBNSummer is the Kahan-Babushka-Neumaier compensated summation algorithm.
//
// The zero value is an empty sum.
type KBNSummer struct {
	sum, compensation float64
}

// Add adds value into the running sum.
func (s *KBNSummer) Add(value float64) {
	moreSig, lessSig := s.sum, value
	if math.Abs(moreSig) < math.Abs(lessSig) {
		moreSig, lessSig = lessSig, moreSig
	}
	s.sum += value
	// lessSig lost its low-order bits when aligned to moreSig's exponent;
	// recover what was actually added and keep the difference.
	truncatedLessSig := s.sum - moreSig
	s.compensation += lessSig - truncatedLessSig
}

// Sum returns the compensated sum.
func (s *KBNSummer) Sum() float64 {
	return s.sum + s.compensation
}

// Reset empties the receiver.
func (s *KBNSummer) Reset() {
	*s = KBNSummer{}
}

// Sum returns the compensated sum of values.
func Sum(values []float64) float64 {
	var summer KBNSummer
	for _, v := range values {
		summer.Add(v)
	}
	return summer.Sum()
}

// RowSums returns the compensated sum of each row of m.
func RowSums(m mat.Matrix) []float64 {
	r, c := m.Dims()
	sums := make([]float64, r)
	if rm, ok := m.(mat.RawMatrixer); ok {
		raw := rm.RawMatrix()
		for i := range sums {
			sums[i] = Sum(raw.Data[i*raw.Stride : i*raw.Stride+c])
		}
		return sums
	}
	var summer KBNSummer
	for i := range sums {
		summer.Reset()
		for j := 0; j < c; j++ {
			summer.Add(m.At(i, j))
		}
		sums[i] = summer.Sum()
	}
	return sums
}

// ColSums returns the compensated sum of each column of m.
func ColSums(m mat.Matrix) []float64 {
	r, c := m.Dims()
	summers := make([]KBNSummer, c)
	if rm, ok := m.(mat.RawMatrixer); ok {
		raw := rm.RawMatrix()
		for i := 0; i < r; i++ {
			for j, v := range raw.Data[i*raw.Stride : i*raw.Stride+c] {
				summers[j].Add(v)
			}
		}
	} else {
		for i := 0; i < r; i++ {
			for j := range summers {
				summers[j].Add(m.At(i, j))
			}
		}
	}
	sums := make([]float64, c)
	for j := range summers {
		sums[j] = summers[j].Sum()
	}
	return sums
}
