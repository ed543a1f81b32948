// Package dist implements latent decision-variable models for paired
// comparisons and a few helper functions for the distributions used by
// the hierarchical model.
package dist

import (
	"math"

	"github.com/gonum/mathext"
)

// ln2pi is log(2*pi).
var ln2pi = math.Log(2 * math.Pi)

// log1mexp returns log(1-exp(x)) for x <= 0.
func log1mexp(x float64) float64 {
	if x > -math.Ln2 {
		return math.Log(-math.Expm1(x))
	}
	return math.Log1p(-math.Exp(x))
}

// logDiff returns log(F(b)-F(a)) given log F for a symmetric
// distribution. For a > 0 both arguments are mirrored so that the
// subtraction happens in the lower tail, where F is small and
// accurate.
func logDiff(logcdf func(float64) float64, a, b float64) float64 {
	if a > 0 {
		a, b = -b, -a
	}
	la := logcdf(a)
	lb := logcdf(b)
	return lb + log1mexp(la-lb)
}

// LogNormCDF returns log of the standard normal distribution function.
func LogNormCDF(x float64) float64 {
	if x > -30 {
		return math.Log(0.5 * math.Erfc(-x/math.Sqrt2))
	}
	// asymptotic expansion of the Mills ratio
	x2 := x * x
	return -x2/2 - math.Log(-x) - 0.5*ln2pi +
		math.Log1p(-1/x2+3/(x2*x2)-15/(x2*x2*x2))
}

// LogNormPDF returns log of the standard normal density.
func LogNormPDF(x float64) float64 {
	return -x*x/2 - 0.5*ln2pi
}

// LogSigmoid returns log of the standard logistic distribution function.
func LogSigmoid(x float64) float64 {
	if x >= 0 {
		return -math.Log1p(math.Exp(-x))
	}
	return x - math.Log1p(math.Exp(x))
}

// LogLogisticPDF returns log of the standard logistic density.
func LogLogisticPDF(x float64) float64 {
	return LogSigmoid(x) + LogSigmoid(-x)
}

// StudentTCDF returns Prob{X<=x} for a Student-t variable X with
// location mu, scale sigma and nu degrees of freedom.
func StudentTCDF(x, mu, sigma, nu float64) float64 {
	if sigma == 0 {
		if x < mu {
			return 0
		}
		return 1
	}
	t := (x - mu) / sigma
	p := 0.5 * mathext.RegIncBeta(nu/2, 0.5, nu/(nu+t*t))
	if t > 0 {
		return 1 - p
	}
	return p
}

// GammaExpLog returns E[log x] for x ~ Gamma(shape, rate).
func GammaExpLog(shape, rate float64) float64 {
	return mathext.Digamma(shape) - math.Log(rate)
}

// GammaKL returns the Kullback-Leibler divergence
// KL(Gamma(shape, rate) || Gamma(shape0, rate0)).
func GammaKL(shape, rate, shape0, rate0 float64) float64 {
	lg, _ := math.Lgamma(shape)
	lg0, _ := math.Lgamma(shape0)
	return (shape-shape0)*mathext.Digamma(shape) - lg + lg0 +
		shape0*(math.Log(rate)-math.Log(rate0)) +
		shape*(rate0-rate)/rate
}
