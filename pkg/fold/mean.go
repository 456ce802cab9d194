package fold

// Mean is a running sum with its element count. Merging two means adds both
// fields, so the final average does not depend on how branches were grouped.
// The zero Mean is the neutral element.
type Mean[T Monoid[T]] struct {
	Sum   T
	Count int
}

func Lift[T Monoid[T]](v T) Mean[T] {
	return Mean[T]{Sum: v, Count: 1}
}

func (m Mean[T]) Merge(other Mean[T]) (Mean[T], error) {
	switch {
	case other.Count == 0:
		return m, nil
	case m.Count == 0:
		return other, nil
	}
	sum, err := m.Sum.Add(other.Sum)
	if err != nil {
		return Mean[T]{}, err
	}

	return Mean[T]{Sum: sum, Count: m.Count + other.Count}, nil
}

// Finalize returns Sum/Count, or ok=false when nothing was accumulated.
func (m Mean[T]) Finalize() (T, bool, error) {
	if m.Count == 0 {
		var zero T
		return zero, false, nil
	}

	return m.Sum.Scale(1 / float64(m.Count)), true, nil
}
