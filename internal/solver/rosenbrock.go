package solver

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// Rosenbrock 2(3) constants (Shampine and Reichelt, "The MATLAB ODE Suite").
var (
	rbD   = 1 / (2 + math.Sqrt2)
	rbE32 = 6 + math.Sqrt2
)

var sqrtEps = math.Sqrt(eps)

// rosenbrock23 is a linearly implicit, L-stable method of order 2 with an
// embedded third order error estimate. The Jacobian is approximated by
// forward differences once per step attempt.
type rosenbrock23 struct {
	f RHS
	n int

	jac   *mat.Dense
	w     *mat.Dense
	lu    mat.LU
	scale []float64
	u     []float64
	ybuf  []float64

	dfdt, rhs, tmp []float64
	k1, k2, k3, f1 []float64
	vk, vr         *mat.VecDense
}

func newRosenbrock23(n int, f RHS) *rosenbrock23 {
	r := &rosenbrock23{
		f:     f,
		n:     n,
		scale: make([]float64, n),
		u:     make([]float64, n),
		ybuf:  make([]float64, n),
		dfdt:  make([]float64, n),
		rhs:   make([]float64, n),
		tmp:   make([]float64, n),
		k1:    make([]float64, n),
		k2:    make([]float64, n),
		k3:    make([]float64, n),
		f1:    make([]float64, n),
	}
	if n > 0 {
		r.jac = mat.NewDense(n, n, nil)
		r.w = mat.NewDense(n, n, nil)
		r.vk = mat.NewVecDense(n, nil)
		r.vr = mat.NewVecDense(n, r.rhs)
	}
	return r
}

func (r *rosenbrock23) order() int { return 2 }

// jacobian fills r.jac with df/dy at (t, y). Steps are relative to
// max(|y_j|, 1) by differentiating in scaled coordinates.
func (r *rosenbrock23) jacobian(t float64, y, f0 []float64) {
	for j, v := range y {
		r.scale[j] = math.Max(math.Abs(v), 1)
	}
	for j := range y {
		r.u[j] = y[j] / r.scale[j]
	}
	scaled := func(dst, x []float64) {
		for j := range x {
			r.ybuf[j] = x[j] * r.scale[j]
		}
		r.f(t, r.ybuf, dst)
	}
	fd.Jacobian(r.jac, scaled, r.u, &fd.JacobianSettings{
		Formula:     fd.Forward,
		OriginValue: f0,
		Step:        sqrtEps,
	})
	for j := 0; j < r.n; j++ {
		s := r.scale[j]
		for i := 0; i < r.n; i++ {
			r.jac.Set(i, j, r.jac.At(i, j)/s)
		}
	}
}

// solve writes W^-1 * r.rhs into dst.
func (r *rosenbrock23) solve(dst []float64) bool {
	if err := r.lu.SolveVecTo(r.vk, false, r.vr); err != nil {
		return false
	}
	copy(dst, r.vk.RawVector().Data)
	return allFinite(dst)
}

func (r *rosenbrock23) step(t, h float64, y, f0, ynew, f1, errEst []float64) bool {
	n := r.n
	r.jacobian(t, y, f0)

	// df/dt by a forward difference in t
	dt := sqrtEps * math.Max(math.Abs(t), math.Abs(h))
	if dt == 0 {
		dt = sqrtEps
	}
	r.f(t+dt, y, r.tmp)
	for i := 0; i < n; i++ {
		r.dfdt[i] = (r.tmp[i] - f0[i]) / dt
	}

	// W = I - h*d*J
	hd := h * rbD
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := -hd * r.jac.At(i, j)
			if i == j {
				v++
			}
			r.w.Set(i, j, v)
		}
	}
	r.lu.Factorize(r.w)

	for i := 0; i < n; i++ {
		r.rhs[i] = f0[i] + hd*r.dfdt[i]
	}
	if !r.solve(r.k1) {
		return false
	}

	for i := 0; i < n; i++ {
		r.tmp[i] = y[i] + 0.5*h*r.k1[i]
	}
	r.f(t+0.5*h, r.tmp, r.f1)
	for i := 0; i < n; i++ {
		r.rhs[i] = r.f1[i] - r.k1[i]
	}
	if !r.solve(r.k2) {
		return false
	}
	for i := 0; i < n; i++ {
		r.k2[i] += r.k1[i]
		ynew[i] = y[i] + h*r.k2[i]
	}

	r.f(t+h, ynew, f1)
	for i := 0; i < n; i++ {
		r.rhs[i] = f1[i] - rbE32*(r.k2[i]-r.f1[i]) - 2*(r.k1[i]-f0[i]) + hd*r.dfdt[i]
	}
	if !r.solve(r.k3) {
		return false
	}
	for i := 0; i < n; i++ {
		errEst[i] = h / 6 * (r.k1[i] - 2*r.k2[i] + r.k3[i])
	}
	return true
}
