package algebra

import "fmt"

// Matrix is a row-major dense matrix.
type Matrix struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

func NewMatrix(rows, cols int, data []float64) (Matrix, error) {
	if rows < 0 || cols < 0 || len(data) != rows*cols {
		return Matrix{}, fmt.Errorf("%w: %dx%d matrix with %d values", ErrDimensionMismatch, rows, cols, len(data))
	}

	return Matrix{Rows: rows, Cols: cols, Data: data}, nil
}

func Identity(n int) Matrix {
	m := Matrix{Rows: n, Cols: n, Data: make([]float64, n*n)}
	for i := 0; i < n; i++ {
		m.Data[i*n+i] = 1
	}

	return m
}

func (m Matrix) At(r, c int) float64 {
	return m.Data[r*m.Cols+c]
}

func (m Matrix) sameShape(other Matrix) bool {
	return m.Rows == other.Rows && m.Cols == other.Cols
}

func (m Matrix) Add(other Matrix) (Matrix, error) {
	if !m.sameShape(other) {
		return Matrix{}, fmt.Errorf("%w: add %dx%d and %dx%d", ErrDimensionMismatch, m.Rows, m.Cols, other.Rows, other.Cols)
	}
	sum, err := Vector(m.Data).Add(other.Data)
	if err != nil {
		return Matrix{}, err
	}

	return Matrix{Rows: m.Rows, Cols: m.Cols, Data: sum}, nil
}

func (m Matrix) Scale(f float64) Matrix {
	return Matrix{Rows: m.Rows, Cols: m.Cols, Data: Vector(m.Data).Scale(f)}
}

func (m Matrix) MatMul(other Matrix) (Matrix, error) {
	if m.Cols != other.Rows {
		return Matrix{}, fmt.Errorf("%w: multiply %dx%d by %dx%d", ErrDimensionMismatch, m.Rows, m.Cols, other.Rows, other.Cols)
	}
	out := Matrix{Rows: m.Rows, Cols: other.Cols, Data: make([]float64, m.Rows*other.Cols)}
	for i := 0; i < m.Rows; i++ {
		for k := 0; k < m.Cols; k++ {
			a := m.At(i, k)
			if a == 0 {
				continue
			}
			for j := 0; j < other.Cols; j++ {
				out.Data[i*out.Cols+j] += a * other.At(k, j)
			}
		}
	}

	return out, nil
}

func (m Matrix) MatVec(v Vector) (Vector, error) {
	if m.Cols != len(v) {
		return nil, fmt.Errorf("%w: multiply %dx%d by vector of %d", ErrDimensionMismatch, m.Rows, m.Cols, len(v))
	}
	out := make(Vector, m.Rows)
	for i := 0; i < m.Rows; i++ {
		var acc float64
		for j := 0; j < m.Cols; j++ {
			acc += m.At(i, j) * v[j]
		}
		out[i] = acc
	}

	return out, nil
}

func (m Matrix) ApproxEqual(other Matrix, tol float64) bool {
	return m.sameShape(other) && Vector(m.Data).ApproxEqual(other.Data, tol)
}
