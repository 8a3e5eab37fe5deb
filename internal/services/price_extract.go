package services

import (
	"sort"
	"strconv"
	"strings"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/models"
)

// TCGPlayer variants consulted for non-reverse figures, most common first.
var tcgPlayerVariantOrder = []string{
	"normal",
	"holofoil",
	"unlimitedHolofoil",
	"1stEditionHolofoil",
	"unlimited",
	"1stEditionNormal",
	"1stEdition",
}

const tcgPlayerReverseVariant = "reverseHolofoil"

// ExtractPrices builds a price record from the Cardmarket block, falling back to
// TCGPlayer field by field. Figures neither source knows stay nil. It returns
// nil when no figure is known at all.
func ExtractPrices(cm *models.RawCardmarket, tcg *models.RawTCGPlayer) *models.PriceRecord {
	var cmPrices models.RawCardmarketPrices
	if cm != nil {
		cmPrices = cm.Prices
	}

	tcgValue := func(get func(models.RawTCGPlayerPrice) *float64) *float64 {
		if tcg == nil {
			return nil
		}
		for _, variant := range tcgPlayerVariants(tcg.Prices) {
			if v := get(tcg.Prices[variant]); v != nil {
				return v
			}
		}
		return nil
	}
	tcgReverse := func(get func(models.RawTCGPlayerPrice) *float64) *float64 {
		if tcg == nil {
			return nil
		}
		if p, ok := tcg.Prices[tcgPlayerReverseVariant]; ok {
			return get(p)
		}
		return nil
	}

	market := func(p models.RawTCGPlayerPrice) *float64 { return p.Market }
	low := func(p models.RawTCGPlayerPrice) *float64 { return p.Low }
	mid := func(p models.RawTCGPlayerPrice) *float64 { return p.Mid }

	rec := &models.PriceRecord{
		Simple:        firstKnown(cmPrices.AverageSellPrice, tcgValue(market)),
		Low:           firstKnown(cmPrices.LowPrice, tcgValue(low)),
		Trend:         firstKnown(cmPrices.TrendPrice, tcgValue(mid)),
		Avg1:          copyFloat(cmPrices.Avg1),
		Avg7:          copyFloat(cmPrices.Avg7),
		Avg30:         copyFloat(cmPrices.Avg30),
		ReverseSimple: firstKnown(cmPrices.ReverseHoloSell, tcgReverse(market)),
		ReverseLow:    firstKnown(cmPrices.ReverseHoloLow, tcgReverse(low)),
		ReverseTrend:  firstKnown(cmPrices.ReverseHoloTrend, tcgReverse(mid)),
		ReverseAvg1:   copyFloat(cmPrices.ReverseHoloAvg1),
		ReverseAvg7:   copyFloat(cmPrices.ReverseHoloAvg7),
		ReverseAvg30:  copyFloat(cmPrices.ReverseHoloAvg30),
	}
	if rec.IsEmpty() {
		return nil
	}
	return rec
}

// tcgPlayerVariants lists the non-reverse variants present, in preference order.
func tcgPlayerVariants(prices map[string]models.RawTCGPlayerPrice) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range tcgPlayerVariantOrder {
		if _, ok := prices[v]; ok {
			out = append(out, v)
			seen[v] = true
		}
	}
	var rest []string
	for v := range prices {
		if !seen[v] && v != tcgPlayerReverseVariant {
			rest = append(rest, v)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func firstKnown(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return copyFloat(v)
		}
	}
	return nil
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// ParsePriceText reads a free-text price such as "¥1,200", "$3.50" or "1.234,56 €".
func ParsePriceText(text string) *float64 {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	s := strings.Trim(b.String(), ".,")
	if s == "" {
		return nil
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// 1.234,56
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// "1,200" groups thousands, "3,5" is a decimal comma
		if len(s)-lastComma-1 == 3 {
			s = strings.ReplaceAll(s, ",", "")
		} else if strings.Count(s, ",") == 1 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
