// Package vector holds the similarity math shared by every index.
package vector

import (
	"math"

	"github.com/lexlapax/recall/pkg/errors"
)

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize scales v in place to unit length. A zero vector is left unchanged.
func Normalize(v []float32) {
	n := Norm(v)
	if n == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
}

// Cosine returns the cosine similarity of a and b.
// The result is 0 when either vector has zero norm.
func Cosine(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, errors.DimensionMismatch(len(a), len(b))
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}

	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb))), nil
}

// CheckDims returns a DimensionMismatch error when v does not have length dims.
// A non-positive dims disables the check.
func CheckDims(dims int, v []float32) error {
	if dims > 0 && len(v) != dims {
		return errors.DimensionMismatch(dims, len(v))
	}
	return nil
}

// Copy returns a copy of v.
func Copy(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
