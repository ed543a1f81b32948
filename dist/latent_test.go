package dist

import (
	"math"
	"math/rand"
	"testing"
)

const (
	smallDiff = 1e-6
	dH        = 1e-6
)

/*** Tests if a and b are approximately equal ***/
func appreq(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps*(1+math.Abs(b))
}

var models = []LatentVariable{Thurstone{}, Bradley{}}

func TestLogCDFDiffValues(tst *testing.T) {
	if l := (Thurstone{}).LogCDFDiff(-1, 1); !appreq(l, math.Log(math.Erf(0.5)), smallDiff) {
		tst.Error("Thurstone: expected", math.Log(math.Erf(0.5)), "got", l)
	}
	if l := (Bradley{}).LogCDFDiff(-1, 1); !appreq(l, math.Log(math.Tanh(0.5)), smallDiff) {
		tst.Error("Bradley: expected", math.Log(math.Tanh(0.5)), "got", l)
	}
	for _, rv := range models {
		if l := rv.LogCDFDiff(0, math.Inf(1)); !appreq(l, -math.Ln2, smallDiff) {
			tst.Errorf("%s: expected log(0.5), got %v", rv.Name(), l)
		}
		// mirrored intervals have equal probability
		l1 := rv.LogCDFDiff(0.3, 2.5)
		l2 := rv.LogCDFDiff(-2.5, -0.3)
		if !appreq(l1, l2, smallDiff) {
			tst.Errorf("%s: asymmetric result %v != %v", rv.Name(), l1, l2)
		}
	}
}

func TestLogCDFDiffLargeArguments(tst *testing.T) {
	for _, rv := range models {
		for _, a := range []float64{20, 40, 60, 100} {
			l := rv.LogCDFDiff(a, math.Inf(1))
			if math.IsInf(l, 0) || math.IsNaN(l) || l > -1 {
				tst.Errorf("%s: bad upper tail value %v for a=%v", rv.Name(), l, a)
			}
			l = rv.LogCDFDiff(-math.Inf(1), -a)
			if math.IsInf(l, 0) || math.IsNaN(l) {
				tst.Errorf("%s: bad lower tail value %v for b=%v", rv.Name(), l, -a)
			}
			l = rv.LogCDFDiff(a, a+1)
			if math.IsInf(l, 0) || math.IsNaN(l) {
				tst.Errorf("%s: bad interval value %v for a=%v", rv.Name(), l, a)
			}
		}
	}
}

func checkDerivative(tst *testing.T, rv LatentVariable, a, b float64) {
	da, db := rv.DLogCDFDiff(a, b)
	fda := (rv.LogCDFDiff(a+dH, b) - rv.LogCDFDiff(a-dH, b)) / 2 / dH
	if !appreq(da, fda, 1e-4) {
		tst.Errorf("%s: d/da(%v, %v) = %v, finite difference %v", rv.Name(), a, b, da, fda)
	}
	if math.IsInf(b, 1) {
		if db != 0 {
			tst.Errorf("%s: d/db(%v, +Inf) = %v, expected 0", rv.Name(), a, db)
		}
		return
	}
	fdb := (rv.LogCDFDiff(a, b+dH) - rv.LogCDFDiff(a, b-dH)) / 2 / dH
	if !appreq(db, fdb, 1e-4) {
		tst.Errorf("%s: d/db(%v, %v) = %v, finite difference %v", rv.Name(), a, b, db, fdb)
	}
}

func TestDLogCDFDiff(tst *testing.T) {
	r := rand.New(rand.NewSource(1))
	for _, rv := range models {
		for i := 0; i < 200; i++ {
			a := r.Float64()*16 - 8
			b := a + 0.05 + r.Float64()*4
			checkDerivative(tst, rv, a, b)
			checkDerivative(tst, rv, a, math.Inf(1))
		}
		checkDerivative(tst, rv, 12, 15)
		checkDerivative(tst, rv, -15, -12)
	}
}

func TestSlices(tst *testing.T) {
	a := []float64{-1, 0, 2}
	b := []float64{1, math.Inf(1), 3}
	for _, rv := range models {
		l := LogCDFDiffSlice(rv, a, b, nil)
		da, db := DLogCDFDiffSlice(rv, a, b, nil, nil)
		for i := range a {
			if l[i] != rv.LogCDFDiff(a[i], b[i]) {
				tst.Error("LogCDFDiffSlice mismatch at", i)
			}
			eda, edb := rv.DLogCDFDiff(a[i], b[i])
			if da[i] != eda || db[i] != edb {
				tst.Error("DLogCDFDiffSlice mismatch at", i)
			}
		}
	}
}

func TestNewLatentVariable(tst *testing.T) {
	for _, name := range []string{"thurstone", "Bradley"} {
		if _, err := NewLatentVariable(name); err != nil {
			tst.Error("Error: ", err)
		}
	}
	if _, err := NewLatentVariable("probit"); err == nil {
		tst.Error("Expected error for unknown model")
	}
}
