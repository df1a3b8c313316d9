package solver

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rcliao/pksim/internal/dosing"
	"github.com/rcliao/pksim/internal/model"
)

const eps = 2.220446049250313e-16

// Problem is an initial value problem with dosing events. RHS excludes
// infusion input; active infusion rates are added to it by Run.
type Problem struct {
	RHS    RHS
	Y0     []float64
	Events []dosing.Event
	Start  float64
	End    float64
}

// Trajectory is the solution of a Problem sampled at the requested times.
// After a failure Times holds only the prefix of requested times that the
// accepted steps cover.
type Trajectory struct {
	Times    []float64
	States   [][]float64 // States[k] is the state at Times[k]
	Segments []Segment
	Initial  []float64
	Reached  float64
	Attempts int
}

// Series returns the values of state i at every output time.
func (tr *Trajectory) Series(i int) []float64 {
	out := make([]float64, len(tr.States))
	for k, y := range tr.States {
		out[k] = y[i]
	}
	return out
}

// At writes the state at t into out. The last segment starting at or before
// t is used; times past the end repeat the terminal state and times before
// the start return the initial state.
func (tr *Trajectory) At(t float64, out []float64) {
	if len(tr.Segments) == 0 || t < tr.Segments[0].Start {
		copy(out, tr.Initial)
		return
	}
	i := sort.Search(len(tr.Segments), func(i int) bool { return tr.Segments[i].Start > t }) - 1
	tr.Segments[i].Eval(t, out)
}

type phase int

const (
	phaseIdle phase = iota
	phaseApplyingEvents
	phaseIntegrating
	phaseDone
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseApplyingEvents:
		return "applying-events"
	case phaseIntegrating:
		return "integrating"
	case phaseDone:
		return "done"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// eventTol is the distance within which an event counts as happening at t.
func eventTol(t float64) float64 { return 1e-9 * math.Max(1, math.Abs(t)) }

type runner struct {
	prob  Problem
	opts  Options
	n     int
	rates []float64
	step  stepper
	rhs   RHS

	phase    phase
	tcur     float64
	tnext    float64
	y        []float64
	next     int
	segs     []Segment
	reached  float64
	attempts int
	failure  *IntegrationError
}

func newRunner(prob Problem, opts Options) *runner {
	r := &runner{
		prob:  prob,
		opts:  opts,
		n:     len(prob.Y0),
		rates: make([]float64, len(prob.Y0)),
	}
	r.rhs = func(t float64, y, dy []float64) {
		r.prob.RHS(t, y, dy)
		for i, rate := range r.rates {
			dy[i] += rate
		}
	}
	r.step = opts.newStepper(r.n, r.rhs)
	return r
}

// Run integrates prob from Start to End and samples the solution at times.
// Integration stops at every event time, applies the events, and restarts.
// On failure the returned Trajectory holds the covered prefix of times and
// the error is an *IntegrationError.
func Run(ctx context.Context, prob Problem, times []float64, opts Options) (*Trajectory, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(prob.Start) || math.IsNaN(prob.End) || prob.End < prob.Start {
		return nil, fmt.Errorf("%w: end time %g before start time %g", model.ErrInvalidInput, prob.End, prob.Start)
	}
	for _, ev := range prob.Events {
		if ev.Compartment < 0 || ev.Compartment >= len(prob.Y0) {
			return nil, fmt.Errorf("%w: event targets compartment %d of %d", model.ErrInvalidInput, ev.Compartment, len(prob.Y0))
		}
	}

	r := newRunner(prob, opts)
	for r.phase != phaseDone {
		switch r.phase {
		case phaseIdle:
			r.tcur = prob.Start
			r.reached = prob.Start
			r.y = clone(prob.Y0)
			r.phase = phaseApplyingEvents

		case phaseApplyingEvents:
			applied := r.applyEvents()
			if !(r.tcur < prob.End) {
				if applied > 0 || len(r.segs) == 0 {
					r.segs = append(r.segs, Segment{Start: r.tcur, End: r.tcur, Y0: clone(r.y)})
				}
				r.phase = phaseDone
				continue
			}
			r.tnext = r.nextStop()
			r.phase = phaseIntegrating

		case phaseIntegrating:
			seg := Segment{Start: r.tcur, End: r.tnext, Y0: clone(r.y)}
			err := r.integrate(ctx, &seg)
			r.segs = append(r.segs, seg)
			if err != nil {
				r.failure = &IntegrationError{Segment: len(r.segs) - 1, Time: r.reached, Err: err}
				r.phase = phaseDone
				continue
			}
			r.tcur = r.tnext
			r.y = clone(seg.Final())
			r.phase = phaseApplyingEvents
		}
	}

	tr := r.trajectory(times)
	if r.failure != nil {
		return tr, r.failure
	}
	return tr, nil
}

// applyEvents applies every pending event at the current time and returns
// how many were applied.
func (r *runner) applyEvents() int {
	applied := 0
	limit := r.tcur + eventTol(r.tcur)
	for r.next < len(r.prob.Events) && r.prob.Events[r.next].Time <= limit {
		ev := r.prob.Events[r.next]
		switch ev.Kind {
		case dosing.Bolus:
			r.y[ev.Compartment] += ev.Amount
		case dosing.InfusionStart:
			r.rates[ev.Compartment] += ev.Rate
		case dosing.InfusionEnd:
			r.rates[ev.Compartment] = math.Max(0, r.rates[ev.Compartment]-ev.Rate)
		}
		r.next++
		applied++
	}
	return applied
}

// nextStop is the time of the next pending event, or End. Events within
// tolerance of End are applied at End.
func (r *runner) nextStop() float64 {
	end := r.prob.End
	if r.next < len(r.prob.Events) {
		at := r.prob.Events[r.next].Time
		if at < end-eventTol(end) {
			return at
		}
	}
	return end
}

// integrate fills seg with accepted steps from seg.Start to seg.End.
func (r *runner) integrate(ctx context.Context, seg *Segment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t0, t1 := seg.Start, seg.End
	if r.n == 0 {
		r.reached = t1
		return nil
	}
	rtol, atol := r.opts.RelTol, r.opts.AbsTol
	q := r.step.order()
	expo := -1 / float64(q+1)
	span := t1 - t0

	y := clone(seg.Y0)
	f0 := make([]float64, r.n)
	r.rhs(t0, y, f0)
	if !allFinite(f0) {
		return ErrNonFinite
	}

	h := r.opts.FirstStep
	if h <= 0 {
		h = initialStep(r.rhs, t0, span, y, f0, q, rtol, atol)
	}
	maxStep := r.opts.MaxStep
	if maxStep <= 0 || maxStep > span {
		maxStep = span
	}

	ynew := make([]float64, r.n)
	f1 := make([]float64, r.n)
	errEst := make([]float64, r.n)
	t := t0
	for t < t1 {
		if r.attempts%64 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if r.attempts >= r.opts.MaxSteps {
			return ErrMaxSteps
		}
		r.attempts++

		hmin := 16 * eps * math.Max(math.Abs(t), math.Abs(t1))
		h = math.Min(h, maxStep)
		last := false
		if t+h >= t1 || t1-(t+h) < hmin {
			h = t1 - t
			last = true
		}

		ok := r.step.step(t, h, y, f0, ynew, f1, errEst)
		finite := ok && allFinite(ynew) && allFinite(f1)
		e := math.Inf(1)
		if finite {
			e = errNorm(errEst, y, ynew, rtol, atol)
		}
		if !(e <= 1) {
			factor := minFactor
			if !math.IsInf(e, 0) && !math.IsNaN(e) {
				factor = math.Max(minFactor, safety*math.Pow(e, expo))
			}
			h *= factor
			if h < hmin {
				if ok && !finite {
					return ErrNonFinite
				}
				return ErrStepTooSmall
			}
			continue
		}

		yc, fc := clone(ynew), clone(f1)
		seg.steps = append(seg.steps, denseStep{t: t, h: h, y0: y, y1: yc, f0: f0, f1: fc})
		y, f0 = yc, fc
		if last {
			t = t1
		} else {
			t += h
		}
		r.reached = t

		factor := maxFactor
		if e > 0 {
			factor = math.Min(maxFactor, safety*math.Pow(e, expo))
		}
		h *= factor
	}
	return nil
}

func (r *runner) trajectory(times []float64) *Trajectory {
	tr := &Trajectory{
		Segments: r.segs,
		Initial:  clone(r.prob.Y0),
		Reached:  r.reached,
		Attempts: r.attempts,
	}
	for _, t := range times {
		if r.failure != nil && t > r.reached {
			break
		}
		y := make([]float64, r.n)
		tr.At(t, y)
		tr.Times = append(tr.Times, t)
		tr.States = append(tr.States, y)
	}
	return tr
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
