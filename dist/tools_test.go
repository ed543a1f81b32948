package dist

import (
	"math"
	"testing"
)

func TestLogNormCDF(tst *testing.T) {
	for _, x := range []float64{-5, -1, 0, 0.5, 3} {
		ref := math.Log(0.5 * math.Erfc(-x/math.Sqrt2))
		if !appreq(LogNormCDF(x), ref, smallDiff) {
			tst.Error("Expected", ref, "got", LogNormCDF(x))
		}
	}
	// the asymptotic branch must join the erfc branch smoothly
	if !appreq(LogNormCDF(-30.0001), LogNormCDF(-29.9999), 1e-4) {
		tst.Error("Discontinuity at the asymptotic branch:", LogNormCDF(-30.0001), LogNormCDF(-29.9999))
	}
	if !math.IsInf(LogNormCDF(math.Inf(-1)), -1) {
		tst.Error("Expected -Inf")
	}
	if LogNormCDF(math.Inf(1)) != 0 {
		tst.Error("Expected 0")
	}
}

func TestLogSigmoid(tst *testing.T) {
	for _, x := range []float64{-40, -2, 0, 2, 40} {
		ref := -math.Log(1 + math.Exp(-x))
		if !appreq(LogSigmoid(x), ref, smallDiff) {
			tst.Error("Expected", ref, "got", LogSigmoid(x))
		}
	}
}

func TestStudentTCDF(tst *testing.T) {
	// nu=1 is Cauchy
	if p := StudentTCDF(1, 0, 1, 1); !appreq(p, 0.75, smallDiff) {
		tst.Error("Expected 0.75, got", p)
	}
	if p := StudentTCDF(2, 2, 3, 5); !appreq(p, 0.5, smallDiff) {
		tst.Error("Expected 0.5, got", p)
	}
	p1 := StudentTCDF(-1.3, 0, 1, 4)
	p2 := StudentTCDF(1.3, 0, 1, 4)
	if !appreq(p1+p2, 1, smallDiff) {
		tst.Error("CDF is not symmetric:", p1, p2)
	}
	if StudentTCDF(1, 2, 0, 4) != 0 || StudentTCDF(3, 2, 0, 4) != 1 {
		tst.Error("Degenerate distribution should be a step function")
	}
}

func TestGammaKL(tst *testing.T) {
	if kl := GammaKL(2.5, 1.5, 2.5, 1.5); math.Abs(kl) > smallDiff {
		tst.Error("Expected zero divergence, got", kl)
	}
	if kl := GammaKL(10, 2, 0.5, 0.5); kl <= 0 {
		tst.Error("Expected positive divergence, got", kl)
	}
	// E[log x] for shape=1, rate=1 is -EulerGamma
	if e := GammaExpLog(1, 1); !appreq(e, -0.5772156649015329, smallDiff) {
		tst.Error("Expected -gamma, got", e)
	}
}
