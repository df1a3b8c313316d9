// Package dosing validates dose specifications and expands them into a
// time-ordered list of bolus and infusion events.
package dosing

import (
	"fmt"
	"math"
	"sort"

	"github.com/rcliao/pksim/internal/model"
)

// Kind is the type of an expanded event. The numeric order is the order in
// which events at the same instant are applied.
type Kind int

const (
	Bolus Kind = iota
	InfusionStart
	InfusionEnd
)

// MaxInstances bounds the number of repetitions a single dose may expand to.
const MaxInstances = 100000

func (k Kind) String() string {
	switch k {
	case Bolus:
		return "bolus"
	case InfusionStart:
		return "infusion_start"
	case InfusionEnd:
		return "infusion_end"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Event is a concrete point-in-time effect on one compartment. Amount is set
// for Bolus and Rate for InfusionStart and InfusionEnd.
type Event struct {
	Time        float64
	Kind        Kind
	Compartment int
	Name        string
	Amount      float64
	Rate        float64
}

// ValidationError reports a malformed dose.
type ValidationError struct {
	Index int
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("dose %d: %s", e.Index, e.Msg)
}

// Is matches model.ErrInvalidInput.
func (e *ValidationError) Is(target error) bool { return target == model.ErrInvalidInput }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Validate checks every dose against the model compartments.
func Validate(doses []model.Dose, compartments []string) error {
	known := make(map[string]bool, len(compartments))
	for _, c := range compartments {
		known[c] = true
	}
	for i, d := range doses {
		bad := func(format string, args ...any) error {
			return &ValidationError{Index: i, Msg: fmt.Sprintf(format, args...)}
		}
		if !known[d.Compartment] {
			return bad("unknown compartment %q", d.Compartment)
		}
		if !model.ValidDoseTypes[d.Type] {
			return bad("invalid type %q (want bolus or infusion)", d.Type)
		}
		if !finite(d.Amount) || d.Amount <= 0 {
			return bad("amount must be a positive number, got %g", d.Amount)
		}
		if !finite(d.StartTime) {
			return bad("start_time must be finite")
		}
		if d.Type == model.DoseInfusion && (!finite(d.Duration) || d.Duration <= 0) {
			return bad("infusion duration must be positive, got %g", d.Duration)
		}
		if d.Repeats() {
			every, until := *d.RepeatEvery, *d.RepeatUntil
			if !finite(every) || every <= 0 {
				return bad("repeat_every must be positive, got %g", every)
			}
			if !finite(until) || until <= d.StartTime {
				return bad("repeat_until must be after start_time")
			}
		}
	}
	return nil
}

// instances returns the start time of every repetition of d up to horizon.
// Times are start + k*every so rounding does not accumulate. ok is false
// when there would be more than MaxInstances of them.
func instances(d model.Dose, horizon float64) (times []float64, ok bool) {
	last := horizon
	if d.Repeats() {
		last = math.Min(*d.RepeatUntil, horizon)
	}
	if !d.Repeats() || last < d.StartTime {
		return []float64{d.StartTime}, true
	}
	n := math.Floor((last-d.StartTime)/(*d.RepeatEvery) + 1e-9)
	if n >= MaxInstances {
		return nil, false
	}
	out := make([]float64, 0, int(n)+1)
	for k := 0; k <= int(n); k++ {
		out = append(out, d.StartTime+float64(k)*(*d.RepeatEvery))
	}
	return out, true
}

// Expand validates doses and returns the events in [start, horizon] sorted by
// time and then kind. An infusion already running at start begins at start.
// Infusion ends after the horizon are not emitted.
func Expand(doses []model.Dose, compartments []string, start, horizon float64) ([]Event, error) {
	if err := Validate(doses, compartments); err != nil {
		return nil, err
	}
	index := make(map[string]int, len(compartments))
	for i, c := range compartments {
		index[c] = i
	}

	var events []Event
	for i, d := range doses {
		ci := index[d.Compartment]
		times, ok := instances(d, horizon)
		if !ok {
			return nil, &ValidationError{Index: i, Msg: fmt.Sprintf("repeat expands to more than %d instances before %g", MaxInstances, horizon)}
		}
		for _, at := range times {
			if at > horizon {
				break
			}
			switch d.Type {
			case model.DoseBolus:
				if at < start {
					continue
				}
				events = append(events, Event{Time: at, Kind: Bolus, Compartment: ci, Name: d.Compartment, Amount: d.Amount})
			case model.DoseInfusion:
				end := at + d.Duration
				if end <= start || at >= horizon {
					continue
				}
				rate := d.Amount / d.Duration
				events = append(events, Event{Time: math.Max(at, start), Kind: InfusionStart, Compartment: ci, Name: d.Compartment, Rate: rate})
				if end <= horizon {
					events = append(events, Event{Time: end, Kind: InfusionEnd, Compartment: ci, Name: d.Compartment, Rate: rate})
				}
			}
		}
	}
	Sort(events)
	return events, nil
}

// Sort orders events by time, then Bolus before InfusionStart before
// InfusionEnd. Events that compare equal keep their relative order.
func Sort(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Time != events[j].Time {
			return events[i].Time < events[j].Time
		}
		return events[i].Kind < events[j].Kind
	})
}

// Administered returns the amount delivered to compartment during [t0, t1]:
// bolus amounts plus infusion rate times active time.
func Administered(events []Event, compartment int, t0, t1 float64) float64 {
	var total, rate float64
	last := t0
	for _, ev := range events {
		if ev.Compartment != compartment {
			continue
		}
		if ev.Time > t1 {
			break
		}
		at := math.Max(ev.Time, t0)
		total += rate * (at - last)
		last = at
		switch ev.Kind {
		case Bolus:
			if ev.Time >= t0 {
				total += ev.Amount
			}
		case InfusionStart:
			rate += ev.Rate
		case InfusionEnd:
			rate = math.Max(0, rate-ev.Rate)
		}
	}
	return total + rate*(t1-last)
}
