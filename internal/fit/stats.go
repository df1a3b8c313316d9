package fit

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Uncertainty holds post-fit statistics. StdErr, Lower and Upper are NaN
// when they cannot be estimated.
type Uncertainty struct {
	SSR    float64
	DOF    int
	StdErr []float64
	Lower  []float64
	Upper  []float64
}

// Estimate computes standard errors and two-sided confidence intervals at
// level for the fitted values x. unweighted are the residuals at x without
// weighting; J is the final Jacobian of the optimizer. With no degrees of
// freedom or a singular J'J the per-parameter values stay NaN.
func Estimate(x, unweighted []float64, J *mat.Dense, level float64) Uncertainty {
	n := len(x)
	u := Uncertainty{
		SSR:    floats.Dot(unweighted, unweighted),
		DOF:    len(unweighted) - n,
		StdErr: nanSlice(n),
		Lower:  nanSlice(n),
		Upper:  nanSlice(n),
	}
	if u.DOF <= 0 || J == nil || math.IsNaN(u.SSR) || math.IsInf(u.SSR, 0) {
		return u
	}

	variance := u.SSR / float64(u.DOF)
	var jtj, cov mat.Dense
	jtj.Mul(J.T(), J)
	if err := cov.Inverse(&jtj); err != nil {
		return u
	}
	cov.Scale(variance, &cov)

	alpha := 1 - level
	tval := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(u.DOF)}.Quantile(1 - alpha/2)
	for i := 0; i < n; i++ {
		se := math.Sqrt(math.Max(cov.At(i, i), 0))
		u.StdErr[i] = se
		u.Lower[i] = x[i] - tval*se
		u.Upper[i] = x[i] + tval*se
	}
	return u
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
