// Package pk computes pharmacokinetic summary metrics from a
// concentration-time series.
package pk

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/rcliao/pksim/internal/model"
)

// HalfLifeDigits is the number of decimals half-life is rounded to.
const HalfLifeDigits = 4

// MinHalfLifePoints is the number of positive samples the terminal slope
// needs.
const MinHalfLifePoints = 3

// Metrics holds PK metrics. Undefined values are NaN.
type Metrics struct {
	Cmax      float64
	Tmax      float64
	AUC       float64
	Clearance float64
	HalfLife  float64
	Dose      float64
}

// Analyze computes metrics for one compartment. dose is the amount
// administered to it and may be zero.
func Analyze(time, conc []float64, dose float64) Metrics {
	m := Metrics{
		Cmax:      math.NaN(),
		Tmax:      math.NaN(),
		AUC:       math.NaN(),
		Clearance: math.NaN(),
		HalfLife:  math.NaN(),
		Dose:      dose,
	}
	if len(time) != len(conc) || len(conc) == 0 {
		return m
	}

	i := floats.MaxIdx(conc)
	m.Cmax, m.Tmax = conc[i], time[i]
	m.AUC = AUC(time, conc)
	if dose > 0 && m.AUC > 0 {
		m.Clearance = dose / m.AUC
	}
	m.HalfLife = HalfLife(time, conc)
	return m
}

// AUC is the trapezoidal area under conc over time. It is NaN for fewer than
// two samples or unsorted times.
func AUC(time, conc []float64) float64 {
	if len(time) < 2 || len(time) != len(conc) || !sort.Float64sAreSorted(time) {
		return math.NaN()
	}
	return integrate.Trapezoidal(time, conc)
}

// HalfLife fits log(conc) against time over the positive samples and returns
// ln(2)/|slope|. It is NaN for fewer than MinHalfLifePoints positive samples
// or a slope that is not negative.
func HalfLife(time, conc []float64) float64 {
	var xs, ys []float64
	for i, c := range conc {
		if c > 0 && !math.IsInf(c, 0) {
			xs = append(xs, time[i])
			ys = append(ys, math.Log(c))
		}
	}
	if len(xs) < MinHalfLifePoints {
		return math.NaN()
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	if !(slope < 0) {
		return math.NaN()
	}
	return scalar.RoundEven(math.Ln2/math.Abs(slope), HalfLifeDigits)
}

// Summary converts the metrics for output; undefined values become absent.
func (m Metrics) Summary() model.PKSummary {
	return model.PKSummary{
		Cmax:      model.Opt(m.Cmax),
		Tmax:      model.Opt(m.Tmax),
		AUC:       model.Opt(m.AUC),
		Clearance: model.Opt(m.Clearance),
		HalfLife:  model.Opt(m.HalfLife),
		Dose:      model.Opt(m.Dose),
	}
}
