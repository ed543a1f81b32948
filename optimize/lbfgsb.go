package optimize

import (
	"fmt"
	"math"

	lbfgsb "github.com/idavydov/go-lbfgsb"
)

// LBFGSB is a limited-memory BFGS minimizer with box bounds.
type LBFGSB struct {
	BaseMinimizer
	// Bound is the absolute bound on every coordinate.
	Bound float64
	p     Potential
	grad  []float64
}

// NewLBFGSB creates a new LBFGSB minimizer. The library cannot stop
// after a given number of iterations, so a run longer than
// MaxIterations is accepted only if the gradient is small.
func NewLBFGSB(s *MinimizerSettings) *LBFGSB {
	return &LBFGSB{
		BaseMinimizer: newBaseMinimizer(s),
		Bound:         100,
	}
}

// Logger reports an iteration.
func (l *LBFGSB) Logger(info *lbfgsb.OptimizationIterationInformation) {
	if info.Iteration%10 == 0 {
		log.Debugf("L-BFGS-B iteration %d: f=%v", info.Iteration, info.F)
	}
}

// EvaluateFunction returns the potential value.
func (l *LBFGSB) EvaluateFunction(x []float64) float64 {
	l.calls++
	f := l.p.Func(x)
	if math.IsNaN(f) {
		return math.Inf(1)
	}
	return f
}

// EvaluateGradient returns the potential gradient.
func (l *LBFGSB) EvaluateGradient(x []float64) []float64 {
	if l.grad == nil {
		l.grad = make([]float64, len(x))
	}
	l.p.Grad(l.grad, x)
	return l.grad
}

// Minimize minimizes the potential starting from x0.
func (l *LBFGSB) Minimize(p Potential, x0 []float64) ([]float64, float64, error) {
	l.p = p
	l.grad = nil
	l.calls = 0

	bounds := make([][2]float64, len(x0))
	start := make([]float64, len(x0))
	for i, v := range x0 {
		bounds[i][0] = -l.Bound
		bounds[i][1] = l.Bound
		start[i] = math.Max(-l.Bound, math.Min(l.Bound, v))
	}

	opt := new(lbfgsb.Lbfgsb)
	opt.SetApproximationSize(10)
	opt.SetFTolerance(1e-9)
	opt.SetGTolerance(l.GTolerance)
	opt.SetBounds(bounds)
	opt.SetLogger(l.Logger)

	res, exitStatus := opt.Minimize(l, start)
	iterations := opt.OptimizationStatistics().Iterations
	log.Debugf("L-BFGS-B finished after %d iterations, %d calls: %v", iterations, l.calls, exitStatus)

	code := exitStatus.Code
	if code == lbfgsb.SUCCESS && l.MaxIterations > 0 && iterations > l.MaxIterations {
		code = lbfgsb.APPROXIMATE
	}
	switch code {
	case lbfgsb.SUCCESS:
		return res.X, res.F, nil
	case lbfgsb.APPROXIMATE, lbfgsb.WARNING:
		if res.X == nil {
			return start, l.p.Func(start), ErrNotConverged
		}
		// line search failures close to the optimum are common
		if gradNorm(l.p, res.X) < math.Sqrt(l.GTolerance) {
			return res.X, res.F, nil
		}
		log.Warningf("L-BFGS-B stopped: %v", exitStatus)
		return res.X, res.F, ErrNotConverged
	}
	return nil, math.NaN(), fmt.Errorf("L-BFGS-B failed: %v", exitStatus)
}
