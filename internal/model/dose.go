// Package model defines the request, response and domain value types shared
// by the simulator packages.
package model

// Dose types.
const (
	DoseBolus    = "bolus"
	DoseInfusion = "infusion"
)

// ValidDoseTypes are the allowed dose types.
var ValidDoseTypes = map[string]bool{
	DoseBolus:    true,
	DoseInfusion: true,
}

// Dose is one dosing instruction. RepeatEvery and RepeatUntil enable
// repetition only when both are set.
type Dose struct {
	Compartment string   `json:"compartment"`
	Type        string   `json:"type"`
	Amount      float64  `json:"amount"`
	StartTime   float64  `json:"start_time"`
	Duration    float64  `json:"duration,omitempty"`
	RepeatEvery *float64 `json:"repeat_every,omitempty"`
	RepeatUntil *float64 `json:"repeat_until,omitempty"`
}

// Repeats reports whether the dose is a repeating schedule.
func (d Dose) Repeats() bool {
	return d.RepeatEvery != nil && d.RepeatUntil != nil
}

// ScheduledEvent is an expanded dosing event as reported to callers.
type ScheduledEvent struct {
	Time        float64  `json:"time"`
	Kind        string   `json:"kind"`
	Compartment string   `json:"compartment"`
	Amount      *float64 `json:"amount,omitempty"`
	Rate        *float64 `json:"rate,omitempty"`
}
