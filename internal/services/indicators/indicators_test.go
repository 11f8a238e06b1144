package indicators

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
)

func series(prices ...float64) []models.MarketPoint {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.MarketPoint, len(prices))
	for i, p := range prices {
		out[i] = models.MarketPoint{Symbol: "TEST", Timestamp: base.Add(time.Duration(i) * time.Minute), Price: p}
	}
	return out
}

func linear(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func TestRSIBoundaries(t *testing.T) {
	if got := RSI(linear(100, 1, 15), RSIPeriod); got == nil || *got != 100 {
		t.Fatalf("all gains: expected 100, got %v", got)
	}
	if got := RSI(linear(200, -1, 15), RSIPeriod); got == nil || *got != 0 {
		t.Fatalf("all losses: expected 0, got %v", got)
	}
	if got := RSI(linear(50, 0, 15), RSIPeriod); got == nil || *got != 50 {
		t.Fatalf("flat: expected 50, got %v", got)
	}
	if got := RSI(linear(100, 1, 14), RSIPeriod); got != nil {
		t.Fatalf("14 points: expected absent, got %v", *got)
	}
}

func TestBollingerOrderingRandomSeries(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		xs := make([]float64, 20)
		for i := range xs {
			xs[i] = 1 + r.Float64()*1000
		}
		up, mid, lo := Bollinger(xs, BollingerPeriod, BollingerK)
		if up == nil || mid == nil || lo == nil {
			t.Fatalf("trial %d: bands absent for 20 points", trial)
		}
		if !(*lo <= *mid && *mid <= *up) {
			t.Fatalf("trial %d: ordering violated: %v %v %v", trial, *lo, *mid, *up)
		}
	}
}

func TestComputeAbsentWhenShort(t *testing.T) {
	set := Compute(series(linear(100, 1, 10)...))
	if set.Count() != 0 {
		t.Fatalf("expected no indicators for 10 points, got %d", set.Count())
	}
	set = Compute(series(linear(100, 1, 20)...))
	if set.RSI == nil || set.SMA20 == nil || set.BollingerMiddle == nil {
		t.Fatalf("expected RSI, SMA20 and Bollinger for 20 points")
	}
	if set.MACD != nil || set.EMA26 != nil {
		t.Fatalf("expected MACD and EMA26 absent for 20 points")
	}
}

func TestComputeFullSet(t *testing.T) {
	set := Compute(series(linear(100, 1, 30)...))
	if set.Count() != 13 {
		t.Fatalf("expected 13 indicators, got %d", set.Count())
	}
	if *set.MACD <= 0 {
		t.Fatalf("rising series should have positive MACD, got %v", *set.MACD)
	}
	if *set.EMA12 <= *set.EMA26 {
		t.Fatalf("expected EMA12 > EMA26 on rising series")
	}
	if *set.StochasticK != 100 {
		t.Fatalf("expected %%K 100 at the high, got %v", *set.StochasticK)
	}
	if *set.VolumeSMA != 0 {
		t.Fatalf("missing volume should average to 0, got %v", *set.VolumeSMA)
	}
	if math.Abs(*set.SMA20-119.5) > 1e-9 {
		t.Fatalf("expected SMA20 119.5, got %v", *set.SMA20)
	}
}

func TestStochasticZeroRange(t *testing.T) {
	flat := linear(10, 0, 14)
	k, d := Stochastic(flat, flat, flat, StochPeriod, StochSmooth)
	if *k != 50 || *d != 50 {
		t.Fatalf("expected 50/50 on zero range, got %v/%v", *k, *d)
	}
}

func TestEWMMatchesAdjustedForm(t *testing.T) {
	got := EWM([]float64{1, 2}, 3)
	// alpha 0.5: (2 + 0.5*1) / (1 + 0.5)
	want := 2.5 / 1.5
	if math.Abs(got[1]-want) > 1e-12 {
		t.Fatalf("expected %v, got %v", want, got[1])
	}
}

func TestATRUsesPreviousClose(t *testing.T) {
	pts := series(linear(100, 2, 15)...)
	set := Compute(pts)
	if set.ATR == nil || math.Abs(*set.ATR-2) > 1e-9 {
		t.Fatalf("expected ATR 2 for price-only series stepping by 2, got %v", set.ATR)
	}
}

func TestWindowKeepsLastFifty(t *testing.T) {
	hist := series(linear(1, 1, 80)...)
	cur := models.MarketPoint{Symbol: "TEST", Price: 999}
	w := Window(hist, cur)
	if len(w) != MaxWindow+1 {
		t.Fatalf("expected %d points, got %d", MaxWindow+1, len(w))
	}
	if w[0].Price != 31 || w[len(w)-1].Price != 999 {
		t.Fatalf("unexpected window bounds %v..%v", w[0].Price, w[len(w)-1].Price)
	}
}
