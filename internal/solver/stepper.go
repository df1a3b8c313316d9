package solver

import "math"

// RHS computes dy = f(t, y). It must not retain y or dy.
type RHS func(t float64, y, dy []float64)

// stepper attempts single steps of an embedded method.
type stepper interface {
	// step advances y by h starting at t, where f0 = f(t, y). It writes the
	// new state to ynew, f(t+h, ynew) to f1 and the local error estimate to
	// errEst. ok is false when the step could not be formed at all.
	step(t, h float64, y, f0, ynew, f1, errEst []float64) (ok bool)
	// order is the order of the error estimate used for step control.
	order() int
}

const (
	safety    = 0.9
	minFactor = 0.2
	maxFactor = 5.0
)

// errNorm returns the RMS norm of errEst scaled by atol + rtol*max(|y|,|ynew|).
func errNorm(errEst, y, ynew []float64, rtol, atol float64) float64 {
	if len(errEst) == 0 {
		return 0
	}
	var sum float64
	for i, e := range errEst {
		sc := atol + rtol*math.Max(math.Abs(y[i]), math.Abs(ynew[i]))
		r := e / sc
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(errEst)))
}

func rmsScaled(v, y []float64, rtol, atol float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for i := range v {
		r := v[i] / (atol + rtol*math.Abs(y[i]))
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(v)))
}

// initialStep picks a starting step from the size of y and its first two
// derivatives (Hairer, Norsett and Wanner, section II.4).
func initialStep(f RHS, t, span float64, y, f0 []float64, q int, rtol, atol float64) float64 {
	d0 := rmsScaled(y, y, rtol, atol)
	d1 := rmsScaled(f0, y, rtol, atol)
	h0 := 1e-6
	if d0 >= 1e-5 && d1 >= 1e-5 {
		h0 = 0.01 * d0 / d1
	}
	h0 = math.Min(h0, span)

	y1 := make([]float64, len(y))
	for i := range y {
		y1[i] = y[i] + h0*f0[i]
	}
	f1 := make([]float64, len(y))
	f(t+h0, y1, f1)
	for i := range f1 {
		f1[i] -= f0[i]
	}
	d2 := rmsScaled(f1, y, rtol, atol) / h0

	var h1 float64
	if m := math.Max(d1, d2); m <= 1e-15 {
		h1 = math.Max(1e-6, h0*1e-3)
	} else {
		h1 = math.Pow(0.01/m, 1/float64(q+1))
	}
	h := math.Min(100*h0, h1)
	if !(h > 0) || math.IsInf(h, 0) {
		h = h0
	}
	return math.Min(h, span)
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
