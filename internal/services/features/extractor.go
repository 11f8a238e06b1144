package features

import (
    "math"

    "MarketPulse/internal/domain/models"
)

// Prices returns the close (or price) of each point.
func Prices(points []models.MarketPoint) []float64 {
    out := make([]float64, len(points))
    for i, p := range points {
        out[i] = p.CloseOrPrice()
    }
    return out
}

// RelativeVolatility is the population std of the last window prices divided by their mean.
func RelativeVolatility(prices []float64, window int) float64 {
    if window > len(prices) {
        window = len(prices)
    }
    if window < 2 {
        return 0
    }
    tail := prices[len(prices)-window:]
    mean := 0.0
    for _, p := range tail {
        mean += p
    }
    mean /= float64(len(tail))
    if mean == 0 {
        return 0
    }
    v := 0.0
    for _, p := range tail {
        v += (p - mean) * (p - mean)
    }
    return math.Sqrt(v/float64(len(tail))) / mean
}

// Momentum is the fractional change between the last price and the one lookback points earlier.
func Momentum(prices []float64, lookback int) float64 {
    if lookback <= 0 || len(prices) < lookback {
        return 0
    }
    base := prices[len(prices)-lookback]
    if base == 0 {
        return 0
    }
    return (prices[len(prices)-1] - base) / base
}
