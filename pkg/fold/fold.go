// Package fold reduces in-process collections of algebraic units with a
// balanced binary tree. Independent subtrees above ParallelCutoff are reduced
// concurrently and joined at their merge point.
package fold

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ParallelCutoff is the subtree size above which both halves of a split are
// reduced concurrently.
const ParallelCutoff = 32

// Composer is a unit with an associative, order-sensitive sequential
// composition. Compose returns the unit equivalent to applying prev first and
// the receiver second.
type Composer[T any] interface {
	Compose(prev T) (T, error)
}

// Monoid is a unit with a commutative, associative sum and a scalar multiple.
type Monoid[T any] interface {
	Add(other T) (T, error)
	Scale(f float64) T
}

// Sequence composes units in input order. It returns ok=false for an empty
// slice. The result equals the left fold units[n-1]∘...∘units[0] up to
// floating-point rounding.
func Sequence[T Composer[T]](ctx context.Context, units []T) (T, bool, error) {
	var zero T
	if len(units) == 0 {
		return zero, false, nil
	}
	res, err := reduce(ctx, units, func(prev, next T) (T, error) {
		return next.Compose(prev)
	})
	if err != nil {
		return zero, false, err
	}

	return res, true, nil
}

// Branches averages independent branches through the Mean monoid. It returns
// ok=false for an empty slice.
func Branches[T Monoid[T]](ctx context.Context, branches []T) (T, bool, error) {
	var zero T
	if len(branches) == 0 {
		return zero, false, nil
	}
	lifted := make([]Mean[T], len(branches))
	for i, b := range branches {
		lifted[i] = Lift(b)
	}
	total, err := reduce(ctx, lifted, func(a, b Mean[T]) (Mean[T], error) {
		return a.Merge(b)
	})
	if err != nil {
		return zero, false, err
	}

	return total.Finalize()
}

func reduce[T any](ctx context.Context, items []T, combine func(left, right T) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if len(items) == 1 {
		return items[0], nil
	}

	mid := len(items) / 2
	var left, right T
	if len(items) > ParallelCutoff {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			left, err = reduce(gctx, items[:mid], combine)

			return err
		})
		g.Go(func() error {
			var err error
			right, err = reduce(gctx, items[mid:], combine)

			return err
		})
		if err := g.Wait(); err != nil {
			return zero, err
		}
	} else {
		var err error
		if left, err = reduce(ctx, items[:mid], combine); err != nil {
			return zero, err
		}
		if right, err = reduce(ctx, items[mid:], combine); err != nil {
			return zero, err
		}
	}

	return combine(left, right)
}
