package models

import "strings"

// AssetClass groups symbols that share the same source priority list.
type AssetClass string

const (
	AssetStock  AssetClass = "stock"
	AssetCrypto AssetClass = "crypto"
	AssetForex  AssetClass = "forex"
)

var cryptoSymbols = map[string]struct{}{
	"BTC": {}, "ETH": {}, "ADA": {}, "SOL": {}, "DOT": {},
	"MATIC": {}, "AVAX": {}, "ATOM": {}, "LINK": {}, "UNI": {},
}

var forexPairs = map[string]struct{}{
	"EURUSD": {}, "GBPUSD": {}, "USDJPY": {}, "USDCAD": {}, "AUDUSD": {},
}

// IsValidAssetClass returns true if c is a supported asset class.
func IsValidAssetClass(c AssetClass) bool {
	switch c {
	case AssetStock, AssetCrypto, AssetForex:
		return true
	default:
		return false
	}
}

// ClassifySymbol derives the asset class from the symbol alone.
// Forex pairs are matched before the USD rule so EURUSD=X is not taken for crypto.
func ClassifySymbol(symbol string) AssetClass {
	raw := strings.ToUpper(strings.TrimSpace(symbol))
	base := strings.TrimSuffix(strings.TrimSuffix(raw, "=X"), "-USD")

	if _, ok := forexPairs[base]; ok || strings.Contains(raw, "=") {
		return AssetForex
	}
	if _, ok := cryptoSymbols[base]; ok || strings.Contains(raw, "USD") {
		return AssetCrypto
	}
	return AssetStock
}

// NormalizeAssetClass returns c when valid, otherwise classifies the symbol.
func NormalizeAssetClass(c AssetClass, symbol string) AssetClass {
	c = AssetClass(strings.ToLower(string(c)))
	if IsValidAssetClass(c) {
		return c
	}
	return ClassifySymbol(symbol)
}

// BaseSymbol strips exchange suffixes used by some providers (=X, -USD).
func BaseSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.TrimSuffix(s, "=X")
	return strings.TrimSuffix(s, "-USD")
}
