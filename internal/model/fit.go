package model

// Weighting modes.
const (
	WeightNone           = "none"
	WeightInverse        = "inverse-observation"
	WeightInverseSquared = "inverse-observation-squared"
	weightAliasInverse   = "1/Y"
	weightAliasInverseSq = "1/Y2"
	DefaultConfidence    = 0.95
	ObservedTimeColumn   = "Time"
)

// ValidWeightings maps accepted weighting names (including the short
// aliases) to their canonical mode.
var ValidWeightings = map[string]string{
	"":                   WeightNone,
	WeightNone:           WeightNone,
	WeightInverse:        WeightInverse,
	WeightInverseSquared: WeightInverseSquared,
	weightAliasInverse:   WeightInverse,
	weightAliasInverseSq: WeightInverseSquared,
}

// Observed is an observed-data table keyed by column name. The time column
// is ObservedTimeColumn; nil cells are missing observations.
type Observed map[string][]*float64

// FittingGroup is one independently dosed experimental condition.
type FittingGroup struct {
	Name     string            `json:"name,omitempty"`
	Doses    []Dose            `json:"doses"`
	Observed Observed          `json:"observed"`
	Mappings map[string]string `json:"mappings"`
	TStart   *float64          `json:"t_start,omitempty"`
}

// FitRequest holds the inputs of one fit.
type FitRequest struct {
	Equations     string                 `json:"equations"`
	Initials      map[string]float64     `json:"initials"`
	Parameters    map[string]float64     `json:"parameters"`
	FitParams     []string               `json:"fit_params"`
	Bounds        map[string][2]*float64 `json:"bounds,omitempty"`
	Weighting     string                 `json:"weighting,omitempty"`
	FittingGroups []FittingGroup         `json:"fitting_groups"`
	Confidence    float64                `json:"confidence,omitempty"`
	AutoBounds    bool                   `json:"auto_bounds,omitempty"`
}

// FitParam is one fitted parameter with its uncertainty.
type FitParam struct {
	Name    string   `json:"name"`
	Value   *float64 `json:"value"`
	StdErr  *float64 `json:"stderr"`
	CILower *float64 `json:"ci_lower"`
	CIUpper *float64 `json:"ci_upper"`
}

// FitResult is the terminal output of a fit.
type FitResult struct {
	RunID      string     `json:"run_id"`
	Status     string     `json:"status"`
	Params     []FitParam `json:"params"`
	Cost       *float64   `json:"cost"`
	SSRTotal   *float64   `json:"ssr_total"`
	Residuals  int        `json:"n_residuals"`
	DOF        int        `json:"dof"`
	Confidence float64    `json:"confidence"`
	Weighting  string     `json:"weighting"`
	NFev       int        `json:"nfev"`
	Iterations int        `json:"iterations"`
	Message    string     `json:"message"`
	StatusCode int        `json:"status_code"`
	Converged  bool       `json:"converged"`
}
