package series

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Taxonomy errors surfaced to callers. Handlers map these to status codes.
var (
	// ErrInvalidRange is returned when a date window has start after end.
	ErrInvalidRange = errors.New("invalid date range: start is after end")

	// ErrEmpty is returned when no price points remain after filtering.
	ErrEmpty = errors.New("price series is empty")
)

// Point is a single (date, close) observation.
type Point struct {
	Date  time.Time
	Close float64
}

// Series is an ordered, deduplicated close-price history.
// Dates are strictly increasing and every close is positive.
type Series struct {
	points []Point
}

// New builds a Series from raw points. Points are sorted by date and
// deduplicated (the last observation for a date wins). A non-positive
// close is rejected.
func New(points []Point) (*Series, error) {
	if len(points) == 0 {
		return nil, ErrEmpty
	}

	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	deduped := make([]Point, 0, len(sorted))
	for _, p := range sorted {
		if p.Close <= 0 {
			return nil, fmt.Errorf("non-positive close %.4f at %s", p.Close, p.Date.Format("2006-01-02"))
		}
		if n := len(deduped); n > 0 && deduped[n-1].Date.Equal(p.Date) {
			// Last observation for a date wins
			deduped[n-1] = p
			continue
		}
		deduped = append(deduped, p)
	}

	return &Series{points: deduped}, nil
}

// Len returns the number of points.
func (s *Series) Len() int {
	return len(s.points)
}

// Points returns the ordered points. Callers must not mutate the slice.
func (s *Series) Points() []Point {
	return s.points
}

// At returns the point at index i.
func (s *Series) At(i int) Point {
	return s.points[i]
}

// First returns the earliest point.
func (s *Series) First() Point {
	return s.points[0]
}

// Last returns the latest point.
func (s *Series) Last() Point {
	return s.points[len(s.points)-1]
}

// Closes returns the close prices in date order.
func (s *Series) Closes() []float64 {
	closes := make([]float64, len(s.points))
	for i, p := range s.points {
		closes[i] = p.Close
	}
	return closes
}

// Filter returns the sub-series within [start, end] inclusive. A zero
// time leaves that side of the window open. Start after end is an
// ErrInvalidRange; a window that excludes every point is an ErrEmpty.
func (s *Series) Filter(start, end time.Time) (*Series, error) {
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return nil, ErrInvalidRange
	}

	lo := 0
	if !start.IsZero() {
		lo = sort.Search(len(s.points), func(i int) bool {
			return !s.points[i].Date.Before(start)
		})
	}

	hi := len(s.points)
	if !end.IsZero() {
		hi = sort.Search(len(s.points), func(i int) bool {
			return s.points[i].Date.After(end)
		})
	}

	if lo >= hi {
		return nil, ErrEmpty
	}

	return &Series{points: s.points[lo:hi]}, nil
}
