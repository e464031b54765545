package mcastack

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Unset marks an omitted slice bound.
const Unset = math.MinInt

// Slice selects positions start, start+step, ... up to (not including) stop
// along one axis. Negative bounds count from the end of the axis. A Step of
// 0 or Unset means 1, so the zero value is the empty slice [0:0].
type Slice struct {
	Start, Stop, Step int
}

// Full selects a whole axis.
func Full() Slice { return Slice{Start: Unset, Stop: Unset, Step: Unset} }

// Span selects [start, stop) with unit step.
func Span(start, stop int) Slice { return Slice{Start: start, Stop: stop, Step: Unset} }

// Stride selects [start, stop) every step positions.
func Stride(start, stop, step int) Slice { return Slice{Start: start, Stop: stop, Step: step} }

func (Slice) isSelector() {}

func (s Slice) step() int {
	if s.Step == 0 || s.Step == Unset {
		return 1
	}
	return s.Step
}

// Indices resolves s against an axis of length n the way python's
// slice.indices does. For a negative step an unset stop resolves to -1.
func (s Slice) Indices(n int) (start, stop, step int) {
	step = s.step()
	lower, upper := 0, n
	if step < 0 {
		lower, upper = -1, n-1
	}
	if step < 0 {
		start = resolveBound(s.Start, n, lower, upper, upper)
		stop = resolveBound(s.Stop, n, lower, upper, lower)
	} else {
		start = resolveBound(s.Start, n, lower, upper, lower)
		stop = resolveBound(s.Stop, n, lower, upper, upper)
	}
	return start, stop, step
}

func resolveBound(v, n, lower, upper, def int) int {
	if v == Unset {
		return def
	}
	if v < 0 {
		v += n
		if v < lower {
			v = lower
		}
		return v
	}
	if v > upper {
		v = upper
	}
	return v
}

// Normalize returns s with concrete non-negative bounds, or an empty [0:0]
// slice when s selects nothing. With a negative step a stop that runs through
// index 0 becomes Unset, as -1 would count from the end of the axis.
func (s Slice) Normalize(n int) Slice {
	start, stop, step := s.Indices(n)
	if s.Len(n) == 0 {
		return Slice{Start: 0, Stop: 0, Step: step}
	}
	if step < 0 && stop < 0 {
		stop = Unset
	}
	return Slice{Start: start, Stop: stop, Step: step}
}

// Len is the number of positions s selects from range(n).
func (s Slice) Len(n int) int {
	start, stop, step := s.Indices(n)
	one := 1
	if step < 0 {
		one = -1
	}
	return max(0, (stop-start+step-one)/step)
}

// Reverse returns a slice selecting the same positions as s in reverse order.
func (s Slice) Reverse(n int) Slice {
	if s.Len(n) == 0 {
		return Slice{Start: 0, Stop: 0, Step: 1}
	}
	start, stop, step := s.Indices(n)
	one := -1
	if step < 0 {
		one = 1
	}
	last := (stop-start+one)/step*step + start
	end := start + one
	if end == -1 {
		end = Unset
	}
	return Slice{Start: last, Stop: end, Step: -step}
}

// Expand lists the positions s selects from range(n), in selection order.
func (s Slice) Expand(n int) []int {
	start, stop, step := s.Indices(n)
	out := make([]int, 0, s.Len(n))
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		out = append(out, i)
	}
	return out
}

// Complement lists, ascending, the positions of range(n) that s does not select.
func (s Slice) Complement(n int) []int {
	selected := make([]bool, n)
	for _, i := range s.Expand(n) {
		selected[i] = true
	}
	out := make([]int, 0, n-s.Len(n))
	for i, ok := range selected {
		if !ok {
			out = append(out, i)
		}
	}
	return out
}

// String formats s as "start:stop:step", leaving unset parts empty.
func (s Slice) String() string {
	part := func(v int) string {
		if v == Unset {
			return ""
		}
		return strconv.Itoa(v)
	}
	if s.Step == Unset || s.Step == 0 {
		return part(s.Start) + ":" + part(s.Stop)
	}
	return part(s.Start) + ":" + part(s.Stop) + ":" + part(s.Step)
}

// ParseSlice reads the "start:stop:step" form. Empty parts are unset.
func ParseSlice(text string) (Slice, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Full(), nil
	}
	parts := strings.Split(text, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Slice{}, fmt.Errorf("%w: slice %q must have the form start:stop[:step]", ErrConfig, text)
	}
	vals := [3]int{Unset, Unset, Unset}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return Slice{}, fmt.Errorf("%w: %q cannot be interpreted as an integer", ErrType, p)
		}
		vals[i] = v
	}
	if vals[2] == 0 {
		return Slice{}, fmt.Errorf("%w: slice step cannot be zero", ErrConfig)
	}
	return Slice{Start: vals[0], Stop: vals[1], Step: vals[2]}, nil
}
