package confluence

import (
	"math"

	"MarketPulse/internal/domain/models"
)

const (
	shortWindow = 5
	longWindow  = 20
)

// DetectPattern compares SMA5 to SMA20 at every index from 20 onward and
// buckets the share of bullish readings. It returns the pattern, the bullish
// ratio and a confidence in [0, 1].
func DetectPattern(prices []float64) (models.Pattern, float64, float64) {
	if len(prices) <= longWindow {
		return models.PatternNeutral, 0.5, 0
	}

	bullish, flips, total := 0, 0, 0
	prev := false
	for i := longWindow; i < len(prices); i++ {
		up := smaEnding(prices, i, shortWindow) > smaEnding(prices, i, longWindow)
		if up {
			bullish++
		}
		if total > 0 && up != prev {
			flips++
		}
		prev = up
		total++
	}

	ratio := float64(bullish) / float64(total)
	confidence := math.Min(1, math.Abs(ratio-0.5)*2)

	switch {
	case ratio > 0.7:
		return models.PatternAscending, ratio, confidence
	case ratio < 0.3:
		return models.PatternDescending, ratio, confidence
	case ratio >= 0.4 && ratio <= 0.6:
		if float64(flips)/float64(total) > 0.3 {
			return models.PatternDouble, ratio, confidence
		}
		return models.PatternNeutral, ratio, confidence
	default:
		return models.PatternTransitional, ratio, confidence
	}
}

// smaEnding is the mean of the window values ending at index end (inclusive).
func smaEnding(xs []float64, end, window int) float64 {
	start := end - window + 1
	if start < 0 {
		start = 0
	}
	s := 0.0
	for i := start; i <= end; i++ {
		s += xs[i]
	}
	return s / float64(end-start+1)
}
