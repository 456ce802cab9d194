package algebra

// Affine is the transformation x -> Linear*x + Translation.
type Affine struct {
	Linear      Matrix `json:"linear"`
	Translation Vector `json:"translation"`
}

func NewAffine(linear Matrix, translation Vector) (Affine, error) {
	if linear.Rows != len(translation) {
		return Affine{}, ErrDimensionMismatch
	}

	return Affine{Linear: linear, Translation: translation}, nil
}

func IdentityAffine(n int) Affine {
	return Affine{Linear: Identity(n), Translation: Zeros(n)}
}

// Compose returns the transformation that applies prev first and a second:
// W = Wa*Wp and b = Wa*bp + ba.
func (a Affine) Compose(prev Affine) (Affine, error) {
	linear, err := a.Linear.MatMul(prev.Linear)
	if err != nil {
		return Affine{}, err
	}
	propagated, err := a.Linear.MatVec(prev.Translation)
	if err != nil {
		return Affine{}, err
	}
	translation, err := propagated.Add(a.Translation)
	if err != nil {
		return Affine{}, err
	}

	return Affine{Linear: linear, Translation: translation}, nil
}

func (a Affine) Add(other Affine) (Affine, error) {
	linear, err := a.Linear.Add(other.Linear)
	if err != nil {
		return Affine{}, err
	}
	translation, err := a.Translation.Add(other.Translation)
	if err != nil {
		return Affine{}, err
	}

	return Affine{Linear: linear, Translation: translation}, nil
}

func (a Affine) Scale(f float64) Affine {
	return Affine{Linear: a.Linear.Scale(f), Translation: a.Translation.Scale(f)}
}

func (a Affine) Apply(x Vector) (Vector, error) {
	y, err := a.Linear.MatVec(x)
	if err != nil {
		return nil, err
	}

	return y.Add(a.Translation)
}

func (a Affine) ApproxEqual(other Affine, tol float64) bool {
	return a.Linear.ApproxEqual(other.Linear, tol) && a.Translation.ApproxEqual(other.Translation, tol)
}
