package model

// ParseResult describes a compiled model.
type ParseResult struct {
	Compartments       []string           `json:"compartments"`
	Parameters         []string           `json:"parameters"`
	Defaults           map[string]float64 `json:"defaults,omitempty"`
	DerivedExpressions map[string]string  `json:"derived_expressions"`
	DerivedOrder       []string           `json:"derived_order"`
	Equations          map[string]string  `json:"equations"`
	ProcessedODE       string             `json:"processed_ode"`
}

// SimulateRequest holds the inputs of one simulation.
type SimulateRequest struct {
	Equations    string             `json:"equations"`
	Initials     map[string]float64 `json:"initials"`
	Parameters   map[string]float64 `json:"parameters"`
	TStart       *float64           `json:"t_start,omitempty"`
	TEnd         *float64           `json:"t_end,omitempty"`
	TSteps       int                `json:"t_steps,omitempty"`
	Doses        []Dose             `json:"doses,omitempty"`
	Compartments []string           `json:"compartments,omitempty"`
}

// PKSummary holds the PK metrics of one compartment. Nil means undefined.
type PKSummary struct {
	Cmax      *float64 `json:"Cmax"`
	Tmax      *float64 `json:"Tmax"`
	AUC       *float64 `json:"AUC"`
	Clearance *float64 `json:"Clearance"`
	HalfLife  *float64 `json:"Half-life"`
	Dose      *float64 `json:"Dose,omitempty"`
}

// Failure reports an integration failure. Series in the same response cover
// the output times computed before it.
type Failure struct {
	Message string   `json:"message"`
	Time    *float64 `json:"time"`
}

// SimulateResponse is the outcome of a simulation.
type SimulateResponse struct {
	Time    []float64             `json:"Time"`
	Series  map[string][]*float64 `json:"profile"`
	Derived map[string][]*float64 `json:"derived,omitempty"`
	PK      map[string]PKSummary  `json:"pk"`
	Omitted []string              `json:"omitted,omitempty"`
	Failure *Failure              `json:"failure,omitempty"`
}
