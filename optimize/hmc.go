package optimize

import (
	"errors"
	"math"

	"github.com/gonum/matrix/mat64"
	"golang.org/x/exp/rand"
)

// HMCSettings are settings for Hamiltonian Monte Carlo.
type HMCSettings struct {
	// StepSize is the initial leapfrog step size.
	StepSize float64
	// LeapfrogSteps is the number of leapfrog steps per proposal.
	LeapfrogSteps int
	// BurnIn is the number of transitions discarded before
	// sampling. The step size is adapted during burn-in only.
	BurnIn int
	// AccPeriod is the number of transitions between step size
	// updates.
	AccPeriod int
	// AccLow and AccHigh specify the target acceptance rate.
	AccLow, AccHigh float64
}

// NewHMCSettings creates default HMC settings.
func NewHMCSettings() *HMCSettings {
	return &HMCSettings{
		StepSize:      0.1,
		LeapfrogSteps: 10,
		BurnIn:        200,
		AccPeriod:     20,
		AccLow:        0.6,
		AccHigh:       0.9,
	}
}

// HMC is a Hamiltonian Monte Carlo sampler with an identity mass
// matrix and a randomly jittered step size.
type HMC struct {
	*HMCSettings
	rng *rand.Rand
	// Step is the step size after the last run. Subsequent runs
	// start from it.
	Step float64
}

// NewHMC creates a new sampler.
func NewHMC(settings *HMCSettings, rng *rand.Rand) *HMC {
	return &HMC{
		HMCSettings: settings,
		rng:         rng,
		Step:        settings.StepSize,
	}
}

// leapfrog integrates the Hamiltonian dynamics in place and returns
// the potential at the final position.
func (h *HMC) leapfrog(p Potential, x, mom, grad []float64, eps float64) float64 {
	for i := range mom {
		mom[i] -= eps / 2 * grad[i]
	}
	for l := 0; l < h.LeapfrogSteps; l++ {
		for i := range x {
			x[i] += eps * mom[i]
		}
		p.Grad(grad, x)
		if l < h.LeapfrogSteps-1 {
			for i := range mom {
				mom[i] -= eps * grad[i]
			}
		}
	}
	for i := range mom {
		mom[i] -= eps / 2 * grad[i]
	}
	return p.Func(x)
}

// kinetic returns the kinetic energy.
func kinetic(mom []float64) (k float64) {
	for _, v := range mom {
		k += v * v
	}
	return k / 2
}

// Run draws n samples starting from x0. It returns the samples (one
// per row), the potential of every sample and the acceptance rate
// after burn-in.
func (h *HMC) Run(p Potential, x0 []float64, n int) (*mat64.Dense, []float64, float64, error) {
	if n < 1 {
		return nil, nil, 0, errors.New("number of samples should be positive")
	}
	d := len(x0)
	x := append([]float64(nil), x0...)
	u := p.Func(x)
	if math.IsNaN(u) || math.IsInf(u, 0) {
		return nil, nil, 0, errors.New("potential is not finite at the starting point")
	}
	grad := make([]float64, d)
	p.Grad(grad, x)

	newX := make([]float64, d)
	newGrad := make([]float64, d)
	mom := make([]float64, d)

	adapter := NewStepAdapter(h.Step, h.AccPeriod, h.AccLow, h.AccHigh)
	samples := mat64.NewDense(n, d, nil)
	potential := make([]float64, n)
	accepted := 0

	for it := 0; it < h.BurnIn+n; it++ {
		for i := range mom {
			mom[i] = h.rng.NormFloat64()
		}
		h0 := u + kinetic(mom)
		copy(newX, x)
		copy(newGrad, grad)
		eps := adapter.Step() * (0.8 + 0.4*h.rng.Float64())
		newU := h.leapfrog(p, newX, mom, newGrad, eps)
		h1 := newU + kinetic(mom)

		acc := false
		if !math.IsNaN(h1) && !math.IsInf(h1, 0) {
			if dh := h0 - h1; dh >= 0 || h.rng.Float64() < math.Exp(dh) {
				acc = true
			}
		}
		if acc {
			x, newX = newX, x
			grad, newGrad = newGrad, grad
			u = newU
		}

		if it < h.BurnIn {
			adapter.Update(acc)
			continue
		}
		if acc {
			accepted++
		}
		i := it - h.BurnIn
		samples.SetRow(i, x)
		potential[i] = u
	}
	h.Step = adapter.Step()
	rate := float64(accepted) / float64(n)
	log.Debugf("HMC acceptance rate %.2f%%, step size %v", 100*rate, h.Step)
	return samples, potential, rate, nil
}
