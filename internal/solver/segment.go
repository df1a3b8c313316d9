package solver

import "sort"

// denseStep is one accepted step with its cubic Hermite interpolant.
type denseStep struct {
	t, h   float64
	y0, y1 []float64
	f0, f1 []float64
}

func (s *denseStep) eval(t float64, out []float64) {
	th := (t - s.t) / s.h
	if th <= 0 {
		copy(out, s.y0)
		return
	}
	if th >= 1 {
		copy(out, s.y1)
		return
	}
	om := 1 - th
	h00 := (1 + 2*th) * om * om
	h10 := th * om * om
	h01 := th * th * (3 - 2*th)
	h11 := th * th * (th - 1)
	for i := range out {
		out[i] = h00*s.y0[i] + h10*s.h*s.f0[i] + h01*s.y1[i] + h11*s.h*s.f1[i]
	}
}

// Segment is the solution between two consecutive event times. Start holds
// the state right after the events at Start were applied. A segment with no
// steps has zero length.
type Segment struct {
	Start, End float64
	Y0         []float64
	steps      []denseStep
}

// Steps returns the number of accepted steps.
func (s *Segment) Steps() int { return len(s.steps) }

// Final returns the state at the end of the segment.
func (s *Segment) Final() []float64 {
	if len(s.steps) == 0 {
		return s.Y0
	}
	return s.steps[len(s.steps)-1].y1
}

// Reached returns the time up to which the segment has accepted steps.
func (s *Segment) Reached() float64 {
	if len(s.steps) == 0 {
		return s.Start
	}
	last := s.steps[len(s.steps)-1]
	return last.t + last.h
}

// Eval writes the interpolated state at t into out. Times outside the
// segment are clamped to its ends.
func (s *Segment) Eval(t float64, out []float64) {
	if len(s.steps) == 0 || t <= s.Start {
		copy(out, s.Y0)
		return
	}
	i := sort.Search(len(s.steps), func(i int) bool {
		st := s.steps[i]
		return st.t+st.h >= t
	})
	if i == len(s.steps) {
		copy(out, s.Final())
		return
	}
	s.steps[i].eval(t, out)
}
