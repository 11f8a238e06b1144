package indicators

import (
	"math"

	"MarketPulse/internal/domain/models"
)

// Periods used by Compute.
const (
	RSIPeriod        = 14
	MACDFast         = 12
	MACDSlow         = 26
	MACDSignalPeriod = 9
	BollingerPeriod  = 20
	BollingerK       = 2.0
	StochPeriod      = 14
	StochSmooth      = 3
	ATRPeriod        = 14
	SMAPeriod        = 20
	// MaxWindow is how many history points feed one evaluation.
	MaxWindow = 50
)

// Window returns the last MaxWindow history points followed by current.
func Window(history []models.MarketPoint, current models.MarketPoint) []models.MarketPoint {
	if len(history) > MaxWindow {
		history = history[len(history)-MaxWindow:]
	}
	out := make([]models.MarketPoint, 0, len(history)+1)
	out = append(out, history...)
	return append(out, current)
}

// Compute derives every indicator the series is long enough for.
func Compute(points []models.MarketPoint) models.IndicatorSet {
	closes := make([]float64, len(points))
	highs := make([]float64, len(points))
	lows := make([]float64, len(points))
	vols := make([]float64, len(points))
	for i, p := range points {
		closes[i] = p.CloseOrPrice()
		highs[i] = p.HighOrPrice()
		lows[i] = p.LowOrPrice()
		vols[i] = p.VolumeOrZero()
	}

	var out models.IndicatorSet
	out.RSI = RSI(closes, RSIPeriod)
	out.MACD, out.MACDSignal = MACD(closes)
	out.BollingerUpper, out.BollingerMiddle, out.BollingerLower = Bollinger(closes, BollingerPeriod, BollingerK)
	if len(closes) >= MACDSlow {
		out.EMA12 = models.Float(last(EWM(closes, MACDFast)))
		out.EMA26 = models.Float(last(EWM(closes, MACDSlow)))
	}
	out.SMA20 = SMA(closes, SMAPeriod)
	out.StochasticK, out.StochasticD = Stochastic(highs, lows, closes, StochPeriod, StochSmooth)
	out.ATR = ATR(highs, lows, closes, ATRPeriod)
	out.VolumeSMA = SMA(vols, SMAPeriod)
	return out
}

// RSI uses simple means of the last period gains and losses.
// A flat window yields 50.
func RSI(closes []float64, period int) *float64 {
	if len(closes) < period+1 {
		return nil
	}
	var gain, loss float64
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	switch {
	case avgGain == 0 && avgLoss == 0:
		return models.Float(50)
	case avgLoss == 0:
		return models.Float(100)
	}
	rs := avgGain / avgLoss
	return models.Float(100 - 100/(1+rs))
}

// EWM is the adjusted exponentially weighted mean with alpha = 2/(span+1),
// evaluated at every position.
func EWM(xs []float64, span int) []float64 {
	if len(xs) == 0 {
		return nil
	}
	decay := 1 - 2/(float64(span)+1)
	out := make([]float64, len(xs))
	num, den := 0.0, 0.0
	for i, x := range xs {
		num = x + decay*num
		den = 1 + decay*den
		out[i] = num / den
	}
	return out
}

// MACD returns the MACD line and its signal line.
func MACD(closes []float64) (line, signal *float64) {
	if len(closes) < MACDSlow {
		return nil, nil
	}
	fast := EWM(closes, MACDFast)
	slow := EWM(closes, MACDSlow)
	diff := make([]float64, len(closes))
	for i := range closes {
		diff[i] = fast[i] - slow[i]
	}
	sig := EWM(diff, MACDSignalPeriod)
	return models.Float(last(diff)), models.Float(last(sig))
}

// Bollinger returns upper, middle and lower bands using the population std.
func Bollinger(closes []float64, period int, k float64) (upper, middle, lower *float64) {
	if len(closes) < period {
		return nil, nil, nil
	}
	tail := closes[len(closes)-period:]
	m := mean(tail)
	v := 0.0
	for _, c := range tail {
		v += (c - m) * (c - m)
	}
	std := math.Sqrt(v / float64(period))
	return models.Float(m + k*std), models.Float(m), models.Float(m - k*std)
}

// SMA is the mean of the last period values.
func SMA(xs []float64, period int) *float64 {
	if period <= 0 || len(xs) < period {
		return nil
	}
	return models.Float(mean(xs[len(xs)-period:]))
}

// Stochastic returns %K at the last point and %D as the mean of the last smooth %K values.
// When there are not enough points for %D it equals %K.
func Stochastic(highs, lows, closes []float64, period, smooth int) (k, d *float64) {
	n := len(closes)
	if n < period {
		return nil, nil
	}
	kAt := func(end int) float64 {
		hi, lo := highs[end-period+1], lows[end-period+1]
		for i := end - period + 2; i <= end; i++ {
			hi = math.Max(hi, highs[i])
			lo = math.Min(lo, lows[i])
		}
		if hi-lo == 0 {
			return 50
		}
		return clamp(100*(closes[end]-lo)/(hi-lo), 0, 100)
	}
	kv := kAt(n - 1)
	if n < period+smooth-1 {
		return models.Float(kv), models.Float(kv)
	}
	sum := 0.0
	for i := 0; i < smooth; i++ {
		sum += kAt(n - 1 - i)
	}
	return models.Float(kv), models.Float(sum / float64(smooth))
}

// ATR is the mean of the last period true ranges.
func ATR(highs, lows, closes []float64, period int) *float64 {
	n := len(closes)
	if n < period+1 {
		return nil
	}
	sum := 0.0
	for i := n - period; i < n; i++ {
		prev := closes[i-1]
		tr := math.Max(highs[i]-lows[i], math.Max(math.Abs(highs[i]-prev), math.Abs(lows[i]-prev)))
		sum += tr
	}
	return models.Float(sum / float64(period))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func last(xs []float64) float64 {
	return xs[len(xs)-1]
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
