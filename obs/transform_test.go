package obs

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
)

const dH = 1e-6

func randomLogW(r *rand.Rand, m int, scale float64) []float64 {
	logW := make([]float64, m)
	for i := range logW {
		logW[i] = r.NormFloat64() * scale
	}
	return logW
}

// logSumExp returns log(sum(exp(x))).
func logSumExp(x []float64) float64 {
	res := math.Inf(-1)
	for _, v := range x {
		res = logAddExp(res, v)
	}
	return res
}

// checkIncreasing checks the limits of logW. Adjacent limits may only
// be equal when the width between them is negligible in float64
// compared to both the widths below and above it.
func checkIncreasing(tst *testing.T, logW []float64) {
	m := len(logW)
	u := CatLimitsTransform(logW, nil)
	if !math.IsInf(u[m-1], 1) {
		tst.Fatal("Top limit is not +Inf:", u, logW)
	}
	if !(u[0] > 0) {
		tst.Fatal("First limit is not positive:", u, logW)
	}
	for k := 0; k < m-1; k++ {
		if math.IsInf(u[k], 0) || math.IsNaN(u[k]) {
			tst.Fatal("Limit is not finite:", u, logW)
		}
	}
	for k := 1; k < m-1; k++ {
		if u[k] < u[k-1] {
			tst.Fatal("Limits are decreasing:", u, logW)
		}
		resolvable := logW[k]-logSumExp(logW[:k]) > -25 && logW[k]-logSumExp(logW[k:]) > -25
		if resolvable && u[k] <= u[k-1] {
			tst.Fatal("Limits are not strictly increasing:", u, logW)
		}
	}
}

func TestCatLimitsTransformIncreasing(tst *testing.T) {
	r := rand.New(rand.NewSource(1))
	for _, scale := range []float64{2, 20} {
		for i := 0; i < 1000; i++ {
			checkIncreasing(tst, randomLogW(r, 1+r.Intn(6), scale))
		}
	}
}

func TestCatLimitsTransformExtreme(tst *testing.T) {
	u := CatLimitsTransform([]float64{-40, 0, 0}, nil)
	if !(u[0] > 0) || math.Abs(u[0]-math.Exp(-40)) > 1e-20 {
		tst.Error("Expected a tiny positive first limit, got", u)
	}
	if math.Abs(u[1]-math.Log(3)) > 1e-12 {
		tst.Error("Expected log(3), got", u[1])
	}
	u = CatLimitsTransform([]float64{0, -800}, nil)
	if math.Abs(u[0]-(math.Log(2)+800)) > 1e-9 {
		tst.Error("Expected a finite first limit log(2)+800, got", u)
	}
	checkIncreasing(tst, []float64{0, -800})
	checkIncreasing(tst, []float64{-700, 0, -700, 0})

	jac := DCatLimitsTransform([]float64{0, -800, 0}, nil)
	for k := 0; k < 3; k++ {
		for j := 0; j < 3; j++ {
			if v := jac.At(k, j); math.IsNaN(v) || math.IsInf(v, 0) {
				tst.Fatal("Jacobian is not finite:", k, j, v)
			}
		}
	}
}

func TestCatLimitsTransformShift(tst *testing.T) {
	logW := []float64{0.3, -1.2, 0.7, 0.1}
	shifted := make([]float64, len(logW))
	for i, v := range logW {
		shifted[i] = v + 4.5
	}
	u1 := CatLimitsTransform(logW, nil)
	u2 := CatLimitsTransform(shifted, nil)
	for k := 0; k < len(u1)-1; k++ {
		if math.Abs(u1[k]-u2[k]) > 1e-12 {
			tst.Error("Transform depends on the width scale:", u1, u2)
		}
	}
	// equal widths: normalized cumulative widths are 1/4, 1/2, 3/4
	u := CatLimitsTransform([]float64{0, 0, 0, 0}, nil)
	for k, cw := range []float64{0.25, 0.5, 0.75} {
		ref := math.Log((1 + cw) / (1 - cw))
		if math.Abs(u[k]-ref) > 1e-12 {
			tst.Error("Expected", ref, "got", u[k])
		}
	}
}

func checkJacobian(tst *testing.T, logW []float64) {
	m := len(logW)
	jac := DCatLimitsTransform(logW, nil)
	x := make([]float64, m)
	for j := 0; j < m; j++ {
		copy(x, logW)
		x[j] += dH
		u2 := CatLimitsTransform(x, nil)
		x[j] -= 2 * dH
		u1 := CatLimitsTransform(x, nil)
		for k := 0; k < m-1; k++ {
			fd := (u2[k] - u1[k]) / 2 / dH
			if math.Abs(fd-jac.At(k, j)) > 1e-4*(1+math.Abs(fd)) {
				tst.Errorf("J[%d][%d]=%v, finite difference %v (logW=%v)", k, j, jac.At(k, j), fd, logW)
			}
		}
		if jac.At(m-1, j) != 0 {
			tst.Error("Last Jacobian row should be zero")
		}
	}
}

func TestDCatLimitsTransform(tst *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 100; i++ {
		m := 1 + r.Intn(5)
		checkJacobian(tst, randomLogW(r, m, 0.5))
		checkJacobian(tst, randomLogW(r, m, 3))
	}
}
