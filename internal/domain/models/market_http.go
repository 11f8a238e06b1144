package models

// Requests for the market query HTTP endpoints.

type LatestRequest struct {
	Symbol string `param:"symbol" validate:"required,symbol"`
}

type HistoryRequest struct {
	Symbol string `param:"symbol" validate:"required,symbol"`
	Days   int    `query:"days" default:"30" validate:"gte=1,lte=365"`
}

type SubscribeRequest struct {
	Symbols string `query:"symbols"`
}

// MarketUpdate is the envelope pushed to subscribers.
type MarketUpdate struct {
	Type      string          `json:"type"`
	Symbol    string          `json:"symbol"`
	Data      *EnrichedRecord `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// MarketUpdateType is the envelope type of a regular record push.
const MarketUpdateType = "market_update"
