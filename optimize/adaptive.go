package optimize

import "math"

// StepAdapter tunes the leapfrog step size during burn-in so that the
// acceptance rate stays within [Low, High]. The step size is updated
// once per batch using a Robbins-Monro scheme on the log scale, the
// gain decreases every time the adjustment direction changes.
type StepAdapter struct {
	// Period is the batch length.
	Period int
	// Low and High are the target acceptance bounds.
	Low, High float64
	// C is a Robbins-Monro algorithm parameter
	C float64
	// Nu is a Robbins-Monro algorithm parameter
	Nu float64

	logStep  float64
	t        int
	accepted int
	loct     int
	delta    bool
}

// NewStepAdapter creates a new step size adapter.
func NewStepAdapter(step float64, period int, low, high float64) *StepAdapter {
	if step <= 0 {
		panic("step size should be > 0")
	}
	if period < 1 {
		panic("adaptation period should be >= 1")
	}
	return &StepAdapter{
		Period:  period,
		Low:     low,
		High:    high,
		C:       1,
		Nu:      1,
		logStep: math.Log(step),
	}
}

// Step returns the current step size.
func (a *StepAdapter) Step() float64 {
	return math.Exp(a.logStep)
}

// robbinsMonro returns the current gain.
func (a *StepAdapter) robbinsMonro(up bool) (gamma float64) {
	if a.t > a.Period && up != a.delta {
		a.loct++
	}
	a.delta = up
	beta := 1 / math.Max(1, 1+a.Nu)
	gamma = a.C / math.Pow(float64(a.loct+1), beta)
	return
}

// Update registers a transition and returns the step size to use next.
func (a *StepAdapter) Update(accepted bool) float64 {
	if accepted {
		a.accepted++
	}
	a.t++
	if a.t%a.Period != 0 {
		return a.Step()
	}
	rate := float64(a.accepted) / float64(a.Period)
	a.accepted = 0
	target := (a.Low + a.High) / 2
	if rate < a.Low || rate > a.High {
		gamma := a.robbinsMonro(rate > target)
		a.logStep += gamma * (rate - target)
		log.Debugf("Acceptance rate %.2f%%, new step size %v", 100*rate, a.Step())
	}
	return a.Step()
}
