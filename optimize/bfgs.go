package optimize

import (
	"math"

	"gonum.org/v1/gonum/optimize"
)

// BFGS is an unconstrained quasi-Newton minimizer.
type BFGS struct {
	BaseMinimizer
}

// NewBFGS creates a new BFGS minimizer.
func NewBFGS(s *MinimizerSettings) *BFGS {
	return &BFGS{
		BaseMinimizer: newBaseMinimizer(s),
	}
}

// Minimize minimizes the potential starting from x0.
func (b *BFGS) Minimize(p Potential, x0 []float64) ([]float64, float64, error) {
	b.calls = 0
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			b.calls++
			f := p.Func(x)
			if math.IsNaN(f) {
				return math.Inf(1)
			}
			return f
		},
		Grad: func(grad, x []float64) {
			p.Grad(grad, x)
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: b.GTolerance,
		MajorIterations:   b.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-9,
			Iterations: 20,
		},
	}

	res, err := optimize.Minimize(problem, x0, settings, &optimize.BFGS{})
	if res == nil {
		return nil, math.NaN(), err
	}
	log.Debugf("BFGS finished after %d calls: %v", b.calls, res.Status)

	switch res.Status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence,
		optimize.StepConvergence, optimize.MethodConverge:
		return res.X, res.F, nil
	}
	if res.X != nil && !math.IsInf(res.F, 0) && !math.IsNaN(res.F) {
		if gradNorm(p, res.X) < math.Sqrt(b.GTolerance) {
			return res.X, res.F, nil
		}
		log.Debugf("BFGS stopped: %v, %v", res.Status, err)
		return res.X, res.F, ErrNotConverged
	}
	if err == nil {
		err = ErrNotConverged
	}
	return nil, math.NaN(), err
}
