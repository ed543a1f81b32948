// Package optimize provides minimizers and a Hamiltonian Monte Carlo
// sampler for differentiable potentials.
package optimize

import (
	"errors"
	"fmt"

	"github.com/gonum/floats"
	"github.com/op/go-logging"
)

// log is the global logging variable.
var log = logging.MustGetLogger("optimize")

// ErrNotConverged is returned when a minimizer stops without
// reaching convergence.
var ErrNotConverged = errors.New("optimization did not converge")

// Potential is a differentiable function. Minimizers look for its
// minimum, samplers draw from the density proportional to exp(-Func).
type Potential interface {
	// Func returns the potential value at x.
	Func(x []float64) float64
	// Grad stores the gradient at x in grad.
	Grad(grad, x []float64)
}

// Minimizer finds a local minimum of a potential.
type Minimizer interface {
	// Minimize starts from x0 and returns the minimum location and
	// the potential value there. If err is ErrNotConverged the
	// returned point is the best one found.
	Minimize(p Potential, x0 []float64) (x []float64, f float64, err error)
	// Calls returns the number of potential evaluations in the last
	// run.
	Calls() int
}

// Minimizer names.
const (
	MethodLBFGSB = "lbfgsb"
	MethodBFGS   = "bfgs"
)

// MinimizerSettings are settings common for all minimizers.
type MinimizerSettings struct {
	// MaxIterations limits the number of major iterations,
	// zero means no limit.
	MaxIterations int
	// GTolerance is the gradient norm tolerance.
	GTolerance float64
}

// NewMinimizerSettings returns the default minimizer settings.
func NewMinimizerSettings() *MinimizerSettings {
	return &MinimizerSettings{
		MaxIterations: 1000,
		GTolerance:    1e-6,
	}
}

// BaseMinimizer stores settings and counters common for all
// minimizers.
type BaseMinimizer struct {
	MinimizerSettings
	// calls counts potential evaluations.
	calls int
}

// newBaseMinimizer copies the settings, nil means defaults.
func newBaseMinimizer(s *MinimizerSettings) BaseMinimizer {
	if s == nil {
		s = NewMinimizerSettings()
	}
	return BaseMinimizer{MinimizerSettings: *s}
}

// Calls returns the number of potential evaluations in the last run.
func (b *BaseMinimizer) Calls() int {
	return b.calls
}

// NewMinimizer creates a minimizer by name. If s is nil the default
// settings are used.
func NewMinimizer(method string, s *MinimizerSettings) (Minimizer, error) {
	switch method {
	case MethodLBFGSB:
		return NewLBFGSB(s), nil
	case MethodBFGS:
		return NewBFGS(s), nil
	}
	return nil, fmt.Errorf("unknown optimization method: %s", method)
}

// gradNorm returns the Euclidean norm of the potential gradient at x.
func gradNorm(p Potential, x []float64) float64 {
	grad := make([]float64, len(x))
	p.Grad(grad, x)
	return floats.Norm(grad, 2)
}
