package confluence

import (
	"hash/fnv"
	"math"
	"sort"
	"sync"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/services/features"
)

// Signal names, also the keys of ConfluenceResult.Weights.
const (
	SignalRSI        = "rsi"
	SignalMACD       = "macd"
	SignalBollinger  = "bollinger"
	SignalStochastic = "stochastic"
	SignalTrend      = "trend"
	SignalVolume     = "volume"
)

const defaultLearningRate = 0.2

// Scorer combines indicators into a ConfluenceResult. Weights adapt per symbol.
type Scorer struct {
	alpha float64

	mu      sync.Mutex
	weights map[string]map[string]float64
}

type Option func(*Scorer)

// WithLearningRate sets how fast weights move toward the latest signal strengths.
func WithLearningRate(a float64) Option {
	return func(s *Scorer) {
		if a > 0 && a <= 1 {
			s.alpha = a
		}
	}
}

func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{alpha: defaultLearningRate, weights: make(map[string]map[string]float64)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Score evaluates one symbol. series is the price window used for the indicators,
// current is the latest point.
func (s *Scorer) Score(symbol string, set models.IndicatorSet, current models.MarketPoint, series []models.MarketPoint) models.ConfluenceResult {
	signals := Signals(set, current)
	weights := s.updateWeights(symbol, signals)

	var vec [3]float64
	bias := 0.0
	for name, sig := range signals {
		w := weights[name]
		u := PhaseVector(name)
		for i := range vec {
			vec[i] += w * sig * u[i]
		}
		bias += w * sig
	}
	mag := math.Sqrt(vec[0]*vec[0] + vec[1]*vec[1] + vec[2]*vec[2])

	prices := features.Prices(series)
	pattern, ratio, confidence := DetectPattern(prices)

	return models.ConfluenceResult{
		Magnitude:    clamp(mag, 0, 1),
		Vector:       vec,
		Pattern:      pattern,
		Confidence:   confidence,
		Bias:         clamp(bias, -1, 1),
		BullishRatio: ratio,
		Volatility:   features.RelativeVolatility(prices, 10),
		Momentum:     features.Momentum(prices, 5),
		Weights:      weights,
	}
}

// Signals maps every present indicator onto [-1, 1].
func Signals(set models.IndicatorSet, p models.MarketPoint) map[string]float64 {
	out := make(map[string]float64, 6)
	price := p.Price
	if set.RSI != nil {
		out[SignalRSI] = clamp((*set.RSI-50)/50, -1, 1)
	}
	if set.MACD != nil && set.MACDSignal != nil && price > 0 {
		out[SignalMACD] = math.Tanh(100 * (*set.MACD - *set.MACDSignal) / price)
	}
	if set.BollingerUpper != nil && set.BollingerMiddle != nil && set.BollingerLower != nil {
		half := (*set.BollingerUpper - *set.BollingerLower) / 2
		if half > 0 {
			out[SignalBollinger] = math.Tanh((price - *set.BollingerMiddle) / half)
		} else {
			out[SignalBollinger] = 0
		}
	}
	if set.StochasticK != nil {
		out[SignalStochastic] = clamp((*set.StochasticK-50)/50, -1, 1)
	}
	if set.EMA12 != nil && set.EMA26 != nil && price > 0 {
		out[SignalTrend] = math.Tanh(100 * (*set.EMA12 - *set.EMA26) / price)
	}
	if set.VolumeSMA != nil && *set.VolumeSMA > 0 && p.Volume != nil {
		out[SignalVolume] = math.Tanh(*p.Volume / *set.VolumeSMA - 1)
	}
	return out
}

// PhaseVector is the fixed unit direction of a signal. The polar angle stays
// in [0, pi/2) so every direction has a positive z component.
func PhaseVector(name string) [3]float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	sum := h.Sum64()
	theta := float64(sum&0xffffffff) / float64(1<<32) * 2 * math.Pi
	phi := float64(sum>>32) / float64(1<<32) * math.Pi / 2
	return [3]float64{
		math.Sin(phi) * math.Cos(theta),
		math.Sin(phi) * math.Sin(theta),
		math.Cos(phi),
	}
}

// Weights returns a copy of the current weights for symbol.
func (s *Scorer) Weights(symbol string) map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyWeights(s.weights[symbol])
}

func (s *Scorer) updateWeights(symbol string, signals map[string]float64) map[string]float64 {
	if len(signals) == 0 {
		return map[string]float64{}
	}
	names := make([]string, 0, len(signals))
	total := 0.0
	for n, v := range signals {
		names = append(names, n)
		total += math.Abs(v)
	}
	sort.Strings(names)

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.weights[symbol]
	uniform := 1 / float64(len(names))
	next := make(map[string]float64, len(names))
	sum := 0.0
	for _, n := range names {
		target := uniform
		if total > 0 {
			target = math.Abs(signals[n]) / total
		}
		w, ok := prev[n]
		if !ok {
			w = uniform
		}
		w = (1-s.alpha)*w + s.alpha*target
		next[n] = w
		sum += w
	}
	for _, n := range names {
		if sum > 0 {
			next[n] /= sum
		} else {
			next[n] = uniform
		}
	}
	s.weights[symbol] = next
	return copyWeights(next)
}

func copyWeights(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}
