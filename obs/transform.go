package obs

import (
	"math"

	"github.com/gonum/matrix/mat64"
)

// logAddExp returns log(exp(a) + exp(b)).
func logAddExp(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a < b {
		a, b = b, a
	}
	return a + math.Log1p(math.Exp(b-a))
}

// logCumWidths returns the logs of cumulative widths c_k (sum of
// widths up to k) and of tail sums t_k (sum of widths above k). The
// total is c_{m-1}.
func logCumWidths(logW []float64) (lc, lt []float64) {
	m := len(logW)
	lc = make([]float64, m)
	lt = make([]float64, m)
	lc[0] = logW[0]
	for k := 1; k < m; k++ {
		lc[k] = logAddExp(lc[k-1], logW[k])
	}
	lt[m-1] = math.Inf(-1)
	for k := m - 2; k >= 0; k-- {
		lt[k] = logAddExp(lt[k+1], logW[k+1])
	}
	return
}

// CatLimitsTransform maps unconstrained log-widths to increasing upper
// response-interval limits in (0, +Inf]. The last limit is always
// +Inf. Normalized cumulative widths p in (0, 1] are mapped onto the
// positive half of the logistic scale, u = log((1+p)/(1-p)). Adding a
// constant to all log-widths does not change the result. Limits are
// computed in log space, the first one stays positive and the others
// finite for any finite input.
func CatLimitsTransform(logW, res []float64) []float64 {
	if res == nil {
		res = make([]float64, len(logW))
	}
	lc, lt := logCumWidths(logW)
	lcm := lc[len(lc)-1]
	for k := 0; k < len(lc)-1; k++ {
		// p = c_k/c_m and q = t_k/c_m = 1 - p
		lp, lq := lc[k]-lcm, lt[k]-lcm
		if lp <= lq {
			p := math.Exp(lp)
			res[k] = math.Log1p(p) - math.Log1p(-p)
		} else {
			res[k] = math.Log(2-math.Exp(lq)) - lq
		}
	}
	res[len(res)-1] = math.Inf(1)
	return res
}

// DCatLimitsTransform returns the Jacobian of CatLimitsTransform,
// jac[k][j] = d limit[k] / d logW[j]. The last row is zero as the top
// limit is fixed at +Inf. If jac is nil a new matrix is allocated.
func DCatLimitsTransform(logW []float64, jac *mat64.Dense) *mat64.Dense {
	m := len(logW)
	if jac == nil {
		jac = mat64.NewDense(m, m, nil)
	}
	lc, lt := logCumWidths(logW)
	lcm := lc[m-1]
	for k := 0; k < m; k++ {
		row := jac.RawRowView(k)
		if k == m-1 {
			for j := range row {
				row[j] = 0
			}
			continue
		}
		// log(c_m + c_k)
		ls := logAddExp(lcm, lc[k])
		for j := range row {
			if j <= k {
				row[j] = 2 * math.Exp(logW[j]-ls)
			} else {
				row[j] = -2 * math.Exp(logW[j]+lc[k]-lt[k]-ls)
			}
		}
	}
	return jac
}
