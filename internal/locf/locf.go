// Package locf implements last-observation-carried-forward filling of sparse
// daily series.
package locf

import (
	"iter"
	"slices"

	"portfolio-holdings/internal/date"
)

// Filler turns a sparse stream into a dense one by repeating the last value
// it was given. It does not care about direction: walking dates backwards,
// the "last" value is simply the previously visited (later) day.
type Filler[V any] struct {
	last  V
	valid bool
}

// Next returns v and remembers it when ok is true. Otherwise it returns the
// last remembered value, and false if nothing has been observed yet.
func (f *Filler[V]) Next(v V, ok bool) (V, bool) {
	if ok {
		f.last, f.valid = v, true
		return v, true
	}
	return f.last, f.valid
}

// Last returns the last remembered value.
func (f *Filler[V]) Last() (V, bool) { return f.last, f.valid }

// Point is one observation of a series.
type Point[V any] struct {
	Date  date.Date
	Value V
}

// Series is a sparse, date-ordered sequence of observations with at most one
// point per day.
type Series[V any] struct {
	points []Point[V]
}

// NewSeries sorts points by date. When several points share a day the one
// appearing last in points wins.
func NewSeries[V any](points []Point[V]) Series[V] {
	sorted := slices.Clone(points)
	slices.SortStableFunc(sorted, func(a, b Point[V]) int { return a.Date.Compare(b.Date) })

	deduped := sorted[:0]
	for _, p := range sorted {
		if n := len(deduped); n > 0 && deduped[n-1].Date == p.Date {
			deduped[n-1] = p
			continue
		}
		deduped = append(deduped, p)
	}
	return Series[V]{points: deduped}
}

// Len returns the number of observations.
func (s Series[V]) Len() int { return len(s.points) }

// At returns the observation on d, or the most recent one before d.
func (s Series[V]) At(d date.Date) (V, bool) {
	i, found := s.search(d)
	if found {
		return s.points[i].Value, true
	}
	return s.before(i)
}

// Before returns the most recent observation strictly before d.
func (s Series[V]) Before(d date.Date) (V, bool) {
	i, _ := s.search(d)
	return s.before(i)
}

// Fill yields a value for every day from from to to, carrying the last
// observation forward over missing days. Observations before from seed the
// fill; days before the first observation are skipped.
func (s Series[V]) Fill(from, to date.Date) iter.Seq2[date.Date, V] {
	return func(yield func(date.Date, V) bool) {
		var f Filler[V]
		if v, ok := s.Before(from); ok {
			f.Next(v, true)
		}
		i, _ := s.search(from)
		for d := range date.Range(from, to) {
			var v V
			observed := i < len(s.points) && s.points[i].Date == d
			if observed {
				v = s.points[i].Value
				i++
			}
			if carried, ok := f.Next(v, observed); ok {
				if !yield(d, carried) {
					return
				}
			}
		}
	}
}

// search returns the index of the first point not before d, and whether it is on d.
func (s Series[V]) search(d date.Date) (int, bool) {
	return slices.BinarySearchFunc(s.points, d, func(p Point[V], d date.Date) int { return p.Date.Compare(d) })
}

func (s Series[V]) before(i int) (V, bool) {
	if i == 0 {
		var zero V
		return zero, false
	}
	return s.points[i-1].Value, true
}
