package algebra_test

import (
	"testing"

	"github.com/absmach/hyperfold/pkg/algebra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-9

func mustAffine(t *testing.T, rows, cols int, w []float64, b []float64) algebra.Affine {
	t.Helper()
	m, err := algebra.NewMatrix(rows, cols, w)
	require.NoError(t, err)
	a, err := algebra.NewAffine(m, b)
	require.NoError(t, err)

	return a
}

func TestVectorAdd(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc string
		a, b algebra.Vector
		want algebra.Vector
		err  error
	}{
		{
			desc: "same length",
			a:    algebra.Vector{1, 2, 3},
			b:    algebra.Vector{0.5, -2, 4},
			want: algebra.Vector{1.5, 0, 7},
		},
		{
			desc: "empty vectors",
			a:    algebra.Vector{},
			b:    algebra.Vector{},
			want: algebra.Vector{},
		},
		{
			desc: "length mismatch",
			a:    algebra.Vector{1, 2},
			b:    algebra.Vector{1},
			err:  algebra.ErrDimensionMismatch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			got, err := tc.a.Add(tc.b)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.True(t, got.ApproxEqual(tc.want, tol), "got %v want %v", got, tc.want)
		})
	}
}

func TestVectorAddDoesNotAlias(t *testing.T) {
	t.Parallel()

	a := algebra.Vector{1, 1}
	b := algebra.Vector{2, 2}
	sum, err := a.Add(b)
	require.NoError(t, err)
	sum[0] = 100

	assert.Equal(t, algebra.Vector{1, 1}, a)
	assert.Equal(t, algebra.Vector{2, 2}, b)
}

func TestMatMul(t *testing.T) {
	t.Parallel()

	a, err := algebra.NewMatrix(2, 3, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	b, err := algebra.NewMatrix(3, 2, []float64{7, 8, 9, 10, 11, 12})
	require.NoError(t, err)

	got, err := a.MatMul(b)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Rows)
	assert.Equal(t, 2, got.Cols)
	assert.Equal(t, []float64{58, 64, 139, 154}, got.Data)

	_, err = a.MatMul(a)
	assert.ErrorIs(t, err, algebra.ErrDimensionMismatch)
}

func TestNewMatrixRejectsBadData(t *testing.T) {
	t.Parallel()

	_, err := algebra.NewMatrix(2, 2, []float64{1, 2, 3})
	assert.ErrorIs(t, err, algebra.ErrDimensionMismatch)
}

func TestAffineCompose(t *testing.T) {
	t.Parallel()

	first := mustAffine(t, 2, 2, []float64{2, 0, 0, 3}, []float64{1, 1})
	second := mustAffine(t, 2, 2, []float64{0, 1, 1, 0}, []float64{-1, 5})

	composed, err := second.Compose(first)
	require.NoError(t, err)

	x := algebra.Vector{4, -2}
	step, err := first.Apply(x)
	require.NoError(t, err)
	want, err := second.Apply(step)
	require.NoError(t, err)
	got, err := composed.Apply(x)
	require.NoError(t, err)

	assert.True(t, got.ApproxEqual(want, tol), "got %v want %v", got, want)
}

func TestAffineComposeIsNotCommutative(t *testing.T) {
	t.Parallel()

	a := mustAffine(t, 2, 2, []float64{1, 2, 0, 1}, []float64{0, 1})
	b := mustAffine(t, 2, 2, []float64{1, 0, 3, 1}, []float64{2, 0})

	ab, err := a.Compose(b)
	require.NoError(t, err)
	ba, err := b.Compose(a)
	require.NoError(t, err)

	assert.False(t, ab.ApproxEqual(ba, tol))
}

func TestAffineIdentity(t *testing.T) {
	t.Parallel()

	a := mustAffine(t, 2, 2, []float64{1, 2, 3, 4}, []float64{5, 6})
	id := algebra.IdentityAffine(2)

	left, err := id.Compose(a)
	require.NoError(t, err)
	right, err := a.Compose(id)
	require.NoError(t, err)

	assert.True(t, left.ApproxEqual(a, tol))
	assert.True(t, right.ApproxEqual(a, tol))
}

func TestAffineAddScale(t *testing.T) {
	t.Parallel()

	a := mustAffine(t, 1, 2, []float64{1, 2}, []float64{3})
	b := mustAffine(t, 1, 2, []float64{3, 4}, []float64{5})

	sum, err := a.Add(b)
	require.NoError(t, err)
	mean := sum.Scale(0.5)

	assert.Equal(t, []float64{2, 3}, mean.Linear.Data)
	assert.Equal(t, algebra.Vector{4}, mean.Translation)

	c := mustAffine(t, 2, 2, []float64{1, 2, 3, 4}, []float64{5, 6})
	_, err = a.Add(c)
	assert.ErrorIs(t, err, algebra.ErrDimensionMismatch)
}
