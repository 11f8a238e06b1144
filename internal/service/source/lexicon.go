package source

import (
    "math"
    "strings"
    "unicode"
)

// Valences on a -4..4 scale for financial news headlines.
var lexicon = map[string]float64{
    "surge": 2.6, "surges": 2.6, "soar": 2.8, "soars": 2.8, "rally": 2.3, "rallies": 2.3,
    "gain": 1.8, "gains": 1.8, "jump": 1.7, "jumps": 1.7, "rise": 1.4, "rises": 1.4,
    "beat": 1.9, "beats": 1.9, "record": 1.5, "growth": 1.9, "profit": 1.8, "profits": 1.8,
    "strong": 1.9, "upgrade": 2.0, "upgraded": 2.0, "bullish": 2.4, "optimism": 2.1,
    "outperform": 2.0, "boost": 1.8, "boosts": 1.8, "win": 2.2, "wins": 2.2,
    "positive": 2.0, "good": 1.9, "great": 3.1, "success": 2.7, "recovery": 1.6,
    "plunge": -2.8, "plunges": -2.8, "crash": -3.0, "crashes": -3.0, "slump": -2.4,
    "drop": -1.6, "drops": -1.6, "fall": -1.5, "falls": -1.5, "decline": -1.7, "declines": -1.7,
    "loss": -2.0, "losses": -2.0, "miss": -1.6, "misses": -1.6, "weak": -1.9,
    "downgrade": -2.0, "downgraded": -2.0, "bearish": -2.4, "fear": -2.2, "fears": -2.2,
    "lawsuit": -1.9, "fraud": -3.2, "bankrupt": -3.0, "bankruptcy": -3.0, "sell-off": -2.3,
    "selloff": -2.3, "risk": -1.1, "risks": -1.1, "negative": -2.1, "bad": -2.5,
    "warning": -1.8, "cut": -1.2, "cuts": -1.2, "layoffs": -2.2, "probe": -1.5, "hack": -2.4,
}

var negations = map[string]struct{}{
    "not": {}, "no": {}, "never": {}, "isn't": {}, "wasn't": {}, "don't": {}, "doesn't": {}, "without": {},
}

const (
    negationScalar = -0.74
    normAlpha      = 15.0
)

// Polarity returns a compound score in [-1, 1] for text.
func Polarity(text string) float64 {
    words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
        return !(unicode.IsLetter(r) || r == '-' || r == '\'')
    })
    sum := 0.0
    for i, w := range words {
        v, ok := lexicon[w]
        if !ok {
            continue
        }
        if i > 0 {
            if _, neg := negations[words[i-1]]; neg {
                v *= negationScalar
            }
        }
        sum += v
    }
    if sum == 0 {
        return 0
    }
    return sum / math.Sqrt(sum*sum+normAlpha)
}
