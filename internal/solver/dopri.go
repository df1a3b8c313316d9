package solver

// Dormand-Prince 5(4) tableau. The last stage is evaluated at the new state,
// so it doubles as f1 for the next step.
var (
	dpC = [7]float64{0, 1.0 / 5.0, 3.0 / 10.0, 4.0 / 5.0, 8.0 / 9.0, 1, 1}
	dpA = [7][6]float64{
		{},
		{1.0 / 5.0},
		{3.0 / 40.0, 9.0 / 40.0},
		{44.0 / 45.0, -56.0 / 15.0, 32.0 / 9.0},
		{19372.0 / 6561.0, -25360.0 / 2187.0, 64448.0 / 6561.0, -212.0 / 729.0},
		{9017.0 / 3168.0, -355.0 / 33.0, 46732.0 / 5247.0, 49.0 / 176.0, -5103.0 / 18656.0},
		{35.0 / 384.0, 0, 500.0 / 1113.0, 125.0 / 192.0, -2187.0 / 6784.0, 11.0 / 84.0},
	}
	// difference between the fifth and fourth order weights
	dpE = [7]float64{
		35.0/384.0 - 5179.0/57600.0,
		0,
		500.0/1113.0 - 7571.0/16695.0,
		125.0/192.0 - 393.0/640.0,
		-2187.0/6784.0 + 92097.0/339200.0,
		11.0/84.0 - 187.0/2100.0,
		-1.0 / 40.0,
	}
)

type dopri5 struct {
	f   RHS
	k   [7][]float64
	tmp []float64
}

func newDopri5(n int, f RHS) *dopri5 {
	d := &dopri5{f: f, tmp: make([]float64, n)}
	for i := 1; i < 6; i++ {
		d.k[i] = make([]float64, n)
	}
	return d
}

func (d *dopri5) order() int { return 4 }

func (d *dopri5) step(t, h float64, y, f0, ynew, f1, errEst []float64) bool {
	d.k[0] = f0
	for s := 1; s < 6; s++ {
		for i := range y {
			acc := 0.0
			for j := 0; j < s; j++ {
				acc += dpA[s][j] * d.k[j][i]
			}
			d.tmp[i] = y[i] + h*acc
		}
		d.f(t+dpC[s]*h, d.tmp, d.k[s])
	}
	for i := range y {
		acc := 0.0
		for j := 0; j < 6; j++ {
			acc += dpA[6][j] * d.k[j][i]
		}
		ynew[i] = y[i] + h*acc
	}
	d.f(t+h, ynew, f1)
	d.k[6] = f1
	for i := range y {
		acc := 0.0
		for j := 0; j < 7; j++ {
			acc += dpE[j] * d.k[j][i]
		}
		errEst[i] = h * acc
	}
	return true
}
