package models

import "time"

// MarketPoint is one observation for one symbol as returned by a source.
// Optional values are pointers: nil means the source did not report it.
type MarketPoint struct {
	Symbol        string    `json:"symbol" validate:"required"`
	Timestamp     time.Time `json:"timestamp" validate:"required"`
	Price         float64   `json:"price" validate:"gt=0,lte=1000000"`
	Volume        *float64  `json:"volume,omitempty" validate:"omitempty,gte=0"`
	High          *float64  `json:"high,omitempty" validate:"omitempty,gt=0"`
	Low           *float64  `json:"low,omitempty" validate:"omitempty,gt=0"`
	Open          *float64  `json:"open,omitempty" validate:"omitempty,gt=0"`
	Close         *float64  `json:"close,omitempty" validate:"omitempty,gt=0"`
	Change        *float64  `json:"change,omitempty"`
	ChangePercent *float64  `json:"changePercent,omitempty"`
	MarketCap     *float64  `json:"marketCap,omitempty" validate:"omitempty,gte=0"`
	Source        string    `json:"sourceName"`
}

// Float returns a pointer to v. Used when filling optional fields.
func Float(v float64) *float64 { return &v }

// HighOrPrice returns High when present, Price otherwise.
func (p MarketPoint) HighOrPrice() float64 { return valueOr(p.High, p.Price) }

// LowOrPrice returns Low when present, Price otherwise.
func (p MarketPoint) LowOrPrice() float64 { return valueOr(p.Low, p.Price) }

// CloseOrPrice returns Close when present, Price otherwise.
func (p MarketPoint) CloseOrPrice() float64 { return valueOr(p.Close, p.Price) }

// VolumeOrZero returns Volume when present, 0 otherwise.
func (p MarketPoint) VolumeOrZero() float64 { return valueOr(p.Volume, 0) }

// HasOHLC reports whether all of open/high/low/close are present.
func (p MarketPoint) HasOHLC() bool {
	return p.Open != nil && p.High != nil && p.Low != nil && p.Close != nil
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// IndicatorSet holds the technical indicators derived for one evaluation.
// A nil field means there was not enough history to compute it.
type IndicatorSet struct {
	RSI             *float64 `json:"rsi,omitempty" validate:"omitempty,gte=0,lte=100"`
	MACD            *float64 `json:"macd,omitempty"`
	MACDSignal      *float64 `json:"macdSignal,omitempty"`
	BollingerUpper  *float64 `json:"bollingerUpper,omitempty"`
	BollingerMiddle *float64 `json:"bollingerMiddle,omitempty"`
	BollingerLower  *float64 `json:"bollingerLower,omitempty"`
	EMA12           *float64 `json:"ema12,omitempty"`
	EMA26           *float64 `json:"ema26,omitempty"`
	SMA20           *float64 `json:"sma20,omitempty"`
	StochasticK     *float64 `json:"stochasticK,omitempty" validate:"omitempty,gte=0,lte=100"`
	StochasticD     *float64 `json:"stochasticD,omitempty" validate:"omitempty,gte=0,lte=100"`
	ATR             *float64 `json:"atr,omitempty" validate:"omitempty,gte=0"`
	VolumeSMA       *float64 `json:"volumeSma,omitempty" validate:"omitempty,gte=0"`
}

// Count returns how many indicators are present.
func (s IndicatorSet) Count() int {
	n := 0
	for _, v := range []*float64{
		s.RSI, s.MACD, s.MACDSignal,
		s.BollingerUpper, s.BollingerMiddle, s.BollingerLower,
		s.EMA12, s.EMA26, s.SMA20,
		s.StochasticK, s.StochasticD, s.ATR, s.VolumeSMA,
	} {
		if v != nil {
			n++
		}
	}
	return n
}

// Pattern is the discrete trend classification of a price series.
type Pattern string

const (
	PatternAscending    Pattern = "ascending"
	PatternDescending   Pattern = "descending"
	PatternNeutral      Pattern = "neutral"
	PatternDouble       Pattern = "double"
	PatternTransitional Pattern = "transitional"
)

// ConfluenceResult is the composite signal derived from an IndicatorSet.
type ConfluenceResult struct {
	Magnitude    float64            `json:"magnitude"`
	Vector       [3]float64         `json:"vector"`
	Pattern      Pattern            `json:"pattern"`
	Confidence   float64            `json:"confidence"`
	Bias         float64            `json:"bias"`
	BullishRatio float64            `json:"bullishRatio"`
	Volatility   float64            `json:"volatility"`
	Momentum     float64            `json:"momentum"`
	Weights      map[string]float64 `json:"weights,omitempty"`
}

// Sentiment is the aggregated news polarity for a symbol.
type Sentiment struct {
	Score       float64 `json:"score"`
	SampleCount int     `json:"sampleCount"`
	Confidence  float64 `json:"confidence"`
	Source      string  `json:"source"`
}

// DataQuality describes what went into an EnrichedRecord.
type DataQuality struct {
	SourcesUsed          []string `json:"sourcesUsed"`
	HistoricalPoints     int      `json:"historicalPoints"`
	IndicatorsCalculated int      `json:"indicatorsCalculated"`
	SentimentAvailable   bool     `json:"sentimentAvailable"`
}

// EnrichedRecord is the output of one aggregation cycle for one symbol.
type EnrichedRecord struct {
	ID          string           `json:"id"`
	Symbol      string           `json:"symbol"`
	AssetClass  AssetClass       `json:"assetClass"`
	Point       MarketPoint      `json:"point"`
	Indicators  IndicatorSet     `json:"indicators"`
	Confluence  ConfluenceResult `json:"confluence"`
	Sentiment   *Sentiment       `json:"sentiment,omitempty"`
	Source      string           `json:"source"`
	ProcessedAt time.Time        `json:"processedAt"`
	Quality     DataQuality      `json:"quality"`
}

// MarketSummary is the compact per-symbol view cached next to the full record.
type MarketSummary struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	ChangePercent *float64  `json:"changePercent,omitempty"`
	Bias          float64   `json:"bias"`
	Pattern       Pattern   `json:"pattern"`
	Magnitude     float64   `json:"magnitude"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SummaryOf derives the summary of rec.
func SummaryOf(rec *EnrichedRecord) MarketSummary {
	return MarketSummary{
		Symbol:        rec.Symbol,
		Price:         rec.Point.Price,
		ChangePercent: rec.Point.ChangePercent,
		Bias:          rec.Confluence.Bias,
		Pattern:       rec.Confluence.Pattern,
		Magnitude:     rec.Confluence.Magnitude,
		UpdatedAt:     rec.ProcessedAt,
	}
}

// SourceHealth is the up/down state of one source.
type SourceHealth struct {
	Healthy       bool      `json:"healthy"`
	FailedAt      time.Time `json:"failedAt,omitempty"`
	CooldownUntil time.Time `json:"cooldownUntil,omitempty"`
	// NextAvailable is set while the source's rate limit window is exhausted.
	NextAvailable time.Time `json:"nextAvailable,omitempty"`
}

// SourceStatus is the operational view of SourceHealth.
type SourceStatus struct {
	Healthy       bool      `json:"healthy"`
	CooldownUntil time.Time `json:"cooldownUntil,omitempty"`
}

// WatchItem is one symbol the scheduler keeps fresh.
type WatchItem struct {
	Symbol     string     `json:"symbol"`
	AssetClass AssetClass `json:"assetClass"`
}
