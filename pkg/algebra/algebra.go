// Package algebra provides the numeric values folded and aggregated by the
// rest of the module. They satisfy two contracts: Compose is associative but
// not commutative, while Add and Scale form a commutative monoid whose neutral
// element is the zero value of matching shape.
package algebra

import (
	"errors"
	"fmt"
	"math"
)

var ErrDimensionMismatch = errors.New("dimension mismatch")

// Vector is a dense vector of float64 values.
type Vector []float64

func Zeros(n int) Vector {
	return make(Vector, n)
}

func (v Vector) Add(other Vector) (Vector, error) {
	if len(v) != len(other) {
		return nil, fmt.Errorf("%w: add %d and %d", ErrDimensionMismatch, len(v), len(other))
	}
	out := make(Vector, len(v))
	for i := range v {
		out[i] = v[i] + other[i]
	}

	return out, nil
}

func (v Vector) Scale(f float64) Vector {
	out := make(Vector, len(v))
	for i := range v {
		out[i] = v[i] * f
	}

	return out
}

// Compose treats both vectors as translations: applying prev and then v is a
// translation by prev+v.
func (v Vector) Compose(prev Vector) (Vector, error) {
	return prev.Add(v)
}

func (v Vector) ApproxEqual(other Vector, tol float64) bool {
	if len(v) != len(other) {
		return false
	}
	for i := range v {
		if math.Abs(v[i]-other[i]) > tol {
			return false
		}
	}

	return true
}
