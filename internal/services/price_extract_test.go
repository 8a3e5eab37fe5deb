package services

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/models"
)

func f(v float64) *float64 { return &v }

func TestExtractPricesPerFieldFallback(t *testing.T) {
	cm := &models.RawCardmarket{
		Prices: models.RawCardmarketPrices{
			AverageSellPrice: f(4.2),
			TrendPrice:       f(4.5),
			Avg7:             f(4.1),
			ReverseHoloTrend: f(6),
		},
	}
	tcg := &models.RawTCGPlayer{
		Prices: map[string]models.RawTCGPlayerPrice{
			"holofoil":        {Low: f(3), Mid: f(5), Market: f(4.8)},
			"reverseHolofoil": {Low: f(5.5), Market: f(6.5)},
		},
	}

	got := ExtractPrices(cm, tcg)
	want := &models.PriceRecord{
		Simple:        f(4.2), // cardmarket wins
		Low:           f(3),   // only tcgplayer knows it
		Trend:         f(4.5),
		Avg7:          f(4.1),
		ReverseSimple: f(6.5),
		ReverseLow:    f(5.5),
		ReverseTrend:  f(6),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtractPrices mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractPricesVariantOrder(t *testing.T) {
	tcg := &models.RawTCGPlayer{
		Prices: map[string]models.RawTCGPlayerPrice{
			"holofoil": {Market: f(10), Low: f(8)},
			"normal":   {Market: f(1)},
		},
	}
	got := ExtractPrices(nil, tcg)
	if got == nil || *got.Simple != 1 {
		t.Fatalf("Simple should come from the normal variant, got %+v", got)
	}
	if *got.Low != 8 {
		t.Errorf("Low should fall through to holofoil, got %v", *got.Low)
	}
}

func TestExtractPricesEmpty(t *testing.T) {
	if got := ExtractPrices(nil, nil); got != nil {
		t.Errorf("expected nil record, got %+v", got)
	}
	if got := ExtractPrices(&models.RawCardmarket{URL: "x"}, &models.RawTCGPlayer{}); got != nil {
		t.Errorf("expected nil record for blocks without figures, got %+v", got)
	}
}

func TestPriceRecordOmitsUnknownFields(t *testing.T) {
	rec := ExtractPrices(&models.RawCardmarket{Prices: models.RawCardmarketPrices{LowPrice: f(0.5), Avg30: f(0)}}, nil)
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "null") {
		t.Errorf("price record JSON contains null: %s", data)
	}
	if string(data) != `{"low":0.5,"avg30":0}` {
		t.Errorf("unexpected JSON %s", data)
	}
}

func TestParsePriceText(t *testing.T) {
	tests := []struct {
		input string
		want  *float64
	}{
		{"¥1,200", f(1200)},
		{"$3.50", f(3.5)},
		{"1.234,56 €", f(1234.56)},
		{"3,5 €", f(3.5)},
		{"12,345,678円", f(12345678)},
		{"1.234.567", f(1234567)},
		{"価格未定", nil},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParsePriceText(tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParsePriceText(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}
