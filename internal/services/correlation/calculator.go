package correlation

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	domain "pairwatch/internal/domain/correlation"
	"pairwatch/internal/domain/market_data"
	"pairwatch/pkg/errors"
	"pairwatch/pkg/logger"
)

// Calculator computes Pearson correlation coefficients over the timestamp
// intersection of two price series. A calculation that fails the suitability
// or significance gates yields a nil coefficient, which is a normal outcome
// rather than an error.
type Calculator struct {
	log *logger.Logger
}

func NewCalculator() *Calculator {
	return &Calculator{log: logger.Get()}
}

// Coefficient returns the correlation coefficient for the two series, or nil
// when the sample is unsuitable or statistically insignificant. Both series
// must be non-empty; passing an empty series is a caller bug.
//
// The window supplies the gates: the larger set scaled by MaxSetSizeDiffPct
// must not exceed the smaller, the timestamp intersection must cover
// OverlapPct of the smaller set, the smaller set must hold at least MinPrices
// entries, and the two-tailed p-value must not exceed MaxPValue.
func (c *Calculator) Coefficient(symbol1Prices, symbol2Prices market_data.PriceSeries, w domain.Window) (*float64, error) {
	if len(symbol1Prices) == 0 || len(symbol2Prices) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "correlation requires two non-empty price series")
	}

	larger, smaller := len(symbol1Prices), len(symbol2Prices)
	if smaller > larger {
		larger, smaller = smaller, larger
	}

	if float64(larger)*(w.MaxSetSizeDiffPct/100) > float64(smaller) {
		c.log.Debugf("Price sets too different in size: larger=%d smaller=%d max_diff_pct=%.1f", larger, smaller, w.MaxSetSizeDiffPct)
		return nil, nil
	}

	xs, ys := intersectByTime(symbol1Prices, symbol2Prices)

	if float64(len(xs)) < float64(smaller)*(w.OverlapPct/100) {
		c.log.Debugf("Price sets do not overlap enough: intersection=%d smaller=%d overlap_pct=%.1f", len(xs), smaller, w.OverlapPct)
		return nil, nil
	}

	if smaller < w.MinPrices {
		c.log.Debugf("Not enough prices: smaller=%d min_prices=%d", smaller, w.MinPrices)
		return nil, nil
	}

	coefficient := pearson(xs, ys)
	if math.IsNaN(coefficient) {
		c.log.Debugf("Coefficient is not a number, price set has no variance")
		return nil, nil
	}

	if p := pValue(coefficient, len(xs)); p > w.MaxPValue {
		c.log.Debugf("Coefficient not significant: p=%.4f max_p_value=%.4f", p, w.MaxPValue)
		return nil, nil
	}

	return &coefficient, nil
}

// intersectByTime pairs up close prices that share an exact timestamp,
// preserving the time order of the second series
func intersectByTime(a, b market_data.PriceSeries) (xs, ys []float64) {
	closes := make(map[int64]float64, len(a))
	for _, bar := range a {
		closes[bar.Time.UnixNano()] = bar.Close
	}

	for _, bar := range b {
		if price, ok := closes[bar.Time.UnixNano()]; ok {
			xs = append(xs, price)
			ys = append(ys, bar.Close)
		}
	}
	return xs, ys
}

// pearson computes the sample correlation coefficient. A series with zero
// variance yields NaN.
func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))
	if n == 0 {
		return math.NaN()
	}

	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / n
	meanY := sumY / n

	var covariance, varianceX, varianceY float64
	for i := range xs {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		covariance += dx * dy
		varianceX += dx * dx
		varianceY += dy * dy
	}

	if varianceX == 0 || varianceY == 0 {
		return math.NaN()
	}

	return covariance / math.Sqrt(varianceX*varianceY)
}

// pValue computes the two-tailed significance of a coefficient from the
// Student's t distribution with n-2 degrees of freedom
func pValue(coefficient float64, n int) float64 {
	if n < 3 {
		return 1
	}
	if math.Abs(coefficient) >= 1 {
		return 0
	}

	dof := float64(n - 2)
	t := coefficient * math.Sqrt(dof/(1-coefficient*coefficient))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dof}
	return 2 * dist.CDF(-math.Abs(t))
}
