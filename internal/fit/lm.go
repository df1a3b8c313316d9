package fit

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/rcliao/pksim/internal/model"
)

// Termination status codes, following the scipy least_squares convention.
const (
	StatusMaxEvaluations = 0
	StatusGTol           = 1
	StatusFTol           = 2
	StatusXTol           = 3
	StatusFTolXTol       = 4
)

var statusMessages = map[int]string{
	StatusMaxEvaluations: "did not converge: the maximum number of function evaluations is exceeded",
	StatusGTol:           "`gtol` termination condition is satisfied",
	StatusFTol:           "`ftol` termination condition is satisfied",
	StatusXTol:           "`xtol` termination condition is satisfied",
	StatusFTolXTol:       "both `ftol` and `xtol` termination conditions are satisfied",
}

const budgetMessage = "did not converge: time budget exceeded"

var sqrtEps = math.Sqrt(2.220446049250313e-16)

// OptimizationError reports an internal failure of the least-squares solver.
type OptimizationError struct {
	Op  string
	Err error
}

func (e *OptimizationError) Error() string {
	return fmt.Sprintf("least squares %s: %v", e.Op, e.Err)
}

func (e *OptimizationError) Unwrap() error { return e.Err }

// Is matches model.ErrOptimization.
func (e *OptimizationError) Is(target error) bool { return target == model.ErrOptimization }

// ResidualFunc writes the residual vector at x into dst.
type ResidualFunc func(ctx context.Context, x, dst []float64) error

// Settings controls the Levenberg-Marquardt iteration.
type Settings struct {
	GTol           float64
	FTol           float64
	XTol           float64
	MaxEvaluations int // 0 means 100 * len(x0)
}

// DefaultSettings returns the default tolerances.
func DefaultSettings() Settings {
	return Settings{GTol: 1e-8, FTol: 1e-8, XTol: 1e-8}
}

// Result is the outcome of Minimize.
type Result struct {
	X          []float64
	Residuals  []float64
	Jacobian   *mat.Dense // at X, nil if it could not be evaluated there
	Cost       float64    // half the sum of squared residuals
	NFev       int
	NJev       int
	Iterations int
	Status     int
	Message    string
}

// Converged reports whether a tolerance was met.
func (r *Result) Converged() bool { return r.Status > StatusMaxEvaluations }

// Minimize finds x in [lower, upper] minimizing half the sum of squares of
// f(x) with a projected Levenberg-Marquardt iteration. m is the residual
// length. Running out of evaluations or hitting the context deadline ends
// with status 0 and no error.
func Minimize(ctx context.Context, f ResidualFunc, m int, x0, lower, upper []float64, s Settings) (*Result, error) {
	n := len(x0)
	if n == 0 {
		return nil, &OptimizationError{Op: "setup", Err: errors.New("no parameters to fit")}
	}
	if m < 1 {
		return nil, &OptimizationError{Op: "setup", Err: errors.New("empty residual vector")}
	}
	maxFev := s.MaxEvaluations
	if maxFev <= 0 {
		maxFev = 100 * n
	}

	lm := &levmar{ctx: ctx, f: f, m: m, n: n, lower: lower, upper: upper, work: mat.NewDense(m, n, nil)}
	x := make([]float64, n)
	for i := range x0 {
		x[i] = clamp(x0[i], lower[i], upper[i])
	}
	r := make([]float64, m)
	res := &Result{X: x, Residuals: r, Jacobian: mat.NewDense(m, n, nil)}

	finish := func(status int, msg string) (*Result, error) {
		res.Status = status
		res.Message = msg
		if msg == "" {
			res.Message = statusMessages[status]
		}
		res.NFev, res.NJev = lm.nfev, lm.njev
		res.Cost = 0.5 * floats.Dot(res.Residuals, res.Residuals)
		return res, nil
	}
	// rOK and jOK report whether r and res.Jacobian are evaluated at x.
	var rOK, jOK bool
	budget := func(err error) (*Result, error) {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			if !jOK {
				lm.settle(res, rOK)
			}
			return finish(StatusMaxEvaluations, budgetMessage)
		}
		return nil, &OptimizationError{Op: "residual", Err: err}
	}

	if err := lm.eval(x, r); err != nil {
		return budget(err)
	}
	rOK = true
	if !allFinite(r) {
		return nil, &OptimizationError{Op: "residual", Err: errors.New("non-finite residual at the starting point")}
	}
	cost := 0.5 * floats.Dot(r, r)
	if err := lm.jacobian(res.Jacobian, x, r); err != nil {
		return budget(err)
	}
	jOK = true

	a := mat.NewSymDense(n, nil)
	g := make([]float64, n)
	diag := make([]float64, n)
	xnew := make([]float64, n)
	step := make([]float64, n)
	rnew := make([]float64, m)
	lambda, nu := 1e-3, 2.0

	for {
		res.Iterations++
		J := res.Jacobian
		a.SymOuterK(1, J.T())
		gv := mat.NewVecDense(n, g)
		gv.MulVec(J.T(), mat.NewVecDense(m, r))

		if lm.projectedGradNorm(x, g) <= s.GTol {
			return finish(StatusGTol, "")
		}

		maxDiag := 0.0
		for i := 0; i < n; i++ {
			diag[i] = math.Max(diag[i], a.At(i, i))
			maxDiag = math.Max(maxDiag, diag[i])
		}
		for i := range diag {
			if diag[i] == 0 {
				diag[i] = math.Max(maxDiag, 1)
			}
		}

		for {
			if err := ctx.Err(); err != nil {
				return budget(err)
			}
			if lm.nfev >= maxFev {
				return finish(StatusMaxEvaluations, "")
			}
			ok := lm.solveStep(a, diag, lambda, g, step)
			if !ok {
				lambda *= nu
				nu *= 2
				if math.IsInf(lambda, 0) {
					return nil, &OptimizationError{Op: "step", Err: errors.New("damped normal equations are singular")}
				}
				continue
			}
			for i := range x {
				xnew[i] = clamp(x[i]+step[i], lower[i], upper[i])
				step[i] = xnew[i] - x[i]
			}
			stepNorm, xNorm := floats.Norm(step, 2), floats.Norm(x, 2)
			if stepNorm <= s.XTol*(xNorm+s.XTol) {
				return finish(StatusXTol, "")
			}

			if err := lm.eval(xnew, rnew); err != nil {
				return budget(err)
			}
			newCost := math.Inf(1)
			if allFinite(rnew) {
				newCost = 0.5 * floats.Dot(rnew, rnew)
			}
			pred := predictedReduction(a, g, step)
			actual := cost - newCost
			if pred > 0 && actual > 0 {
				rho := actual / pred
				lambda *= math.Max(1.0/3, 1-math.Pow(2*rho-1, 3))
				nu = 2

				copy(x, xnew)
				copy(r, rnew)
				jOK = false
				ftolHit := actual <= s.FTol*cost
				xtolHit := stepNorm <= s.XTol*(floats.Norm(x, 2)+s.XTol)
				cost = newCost
				switch {
				case ftolHit && xtolHit:
					return lm.finishWithJacobian(res, finish, budget, StatusFTolXTol)
				case ftolHit:
					return lm.finishWithJacobian(res, finish, budget, StatusFTol)
				}
				if err := lm.jacobian(res.Jacobian, x, r); err != nil {
					return budget(err)
				}
				jOK = true
				break
			}
			lambda *= nu
			nu *= 2
		}
	}
}

type levmar struct {
	ctx          context.Context
	f            ResidualFunc
	m, n         int
	lower, upper []float64
	nfev, njev   int
	work         *mat.Dense
}

func (lm *levmar) eval(x, dst []float64) error {
	lm.nfev++
	return lm.f(lm.ctx, x, dst)
}

// jacobian fills J with forward differences at x. Steps are relative to
// max(|x_j|, 1) and taken backwards when a forward step would leave the box.
// J is left unchanged on error.
func (lm *levmar) jacobian(J *mat.Dense, x, r []float64) error {
	lm.njev++
	scale := make([]float64, lm.n)
	u := make([]float64, lm.n)
	for j, v := range x {
		s := math.Max(math.Abs(v), 1)
		if v+sqrtEps*s > lm.upper[j] {
			s = -s
		}
		scale[j] = s
		u[j] = v / s
	}
	xs := make([]float64, lm.n)
	var evalErr error
	scaled := func(dst, uu []float64) {
		if evalErr != nil {
			return
		}
		for j := range uu {
			xs[j] = uu[j] * scale[j]
		}
		evalErr = lm.f(lm.ctx, xs, dst)
	}
	fd.Jacobian(lm.work, scaled, u, &fd.JacobianSettings{
		Formula:     fd.Forward,
		OriginValue: r,
		Step:        sqrtEps,
	})
	if evalErr != nil {
		return evalErr
	}
	for j := 0; j < lm.n; j++ {
		for i := 0; i < lm.m; i++ {
			J.Set(i, j, lm.work.At(i, j)/scale[j])
		}
	}
	return nil
}

// settle brings the residuals and Jacobian of res up to date with res.X
// after the context ended. Evaluation ignores the cancellation; if it still
// fails the residuals are NaN and the Jacobian is dropped.
func (lm *levmar) settle(res *Result, rOK bool) {
	lm.ctx = context.WithoutCancel(lm.ctx)
	if !rOK {
		if err := lm.eval(res.X, res.Residuals); err != nil {
			for i := range res.Residuals {
				res.Residuals[i] = math.NaN()
			}
			res.Jacobian = nil
			return
		}
	}
	if err := lm.jacobian(res.Jacobian, res.X, res.Residuals); err != nil {
		res.Jacobian = nil
	}
}

func (lm *levmar) finishWithJacobian(res *Result, finish func(int, string) (*Result, error),
	budget func(error) (*Result, error), status int) (*Result, error) {
	if err := lm.jacobian(res.Jacobian, res.X, res.Residuals); err != nil {
		return budget(err)
	}
	return finish(status, "")
}

// projectedGradNorm is the infinity norm of the gradient with components
// that point out of an active bound removed.
func (lm *levmar) projectedGradNorm(x, g []float64) float64 {
	norm := 0.0
	for i, gi := range g {
		if (x[i] <= lm.lower[i] && gi > 0) || (x[i] >= lm.upper[i] && gi < 0) {
			continue
		}
		norm = math.Max(norm, math.Abs(gi))
	}
	return norm
}

// solveStep solves (A + lambda*diag(D)) step = -g by Cholesky.
func (lm *levmar) solveStep(a *mat.SymDense, diag []float64, lambda float64, g, step []float64) bool {
	n := lm.n
	damped := mat.NewSymDense(n, nil)
	damped.CopySym(a)
	for i := 0; i < n; i++ {
		damped.SetSym(i, i, a.At(i, i)+lambda*diag[i])
	}
	var chol mat.Cholesky
	if !chol.Factorize(damped) {
		return false
	}
	neg := make([]float64, n)
	for i, gi := range g {
		neg[i] = -gi
	}
	dst := mat.NewVecDense(n, step)
	if err := chol.SolveVecTo(dst, mat.NewVecDense(n, neg)); err != nil {
		return false
	}
	return allFinite(step)
}

// predictedReduction is the decrease of the quadratic model for step.
func predictedReduction(a *mat.SymDense, g, step []float64) float64 {
	n := len(step)
	sv := mat.NewVecDense(n, step)
	as := mat.NewVecDense(n, nil)
	as.MulVec(a, sv)
	return -(floats.Dot(g, step) + 0.5*mat.Dot(sv, as))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
