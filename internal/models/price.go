package models

import "time"

// PriceRecord holds the known price figures for one card. Nil fields are
// omitted when serialized so consumers check for presence, never for null.
type PriceRecord struct {
	CardCode      string    `json:"-" gorm:"primaryKey"`
	Simple        *float64  `json:"simple,omitempty"`
	Low           *float64  `json:"low,omitempty"`
	Trend         *float64  `json:"trend,omitempty"`
	Avg1          *float64  `json:"avg1,omitempty"`
	Avg7          *float64  `json:"avg7,omitempty"`
	Avg30         *float64  `json:"avg30,omitempty"`
	ReverseSimple *float64  `json:"reverseSimple,omitempty"`
	ReverseLow    *float64  `json:"reverseLow,omitempty"`
	ReverseTrend  *float64  `json:"reverseTrend,omitempty"`
	ReverseAvg1   *float64  `json:"reverseAvg1,omitempty"`
	ReverseAvg7   *float64  `json:"reverseAvg7,omitempty"`
	ReverseAvg30  *float64  `json:"reverseAvg30,omitempty"`
	UpdatedAt     time.Time `json:"-"`
}

func (PriceRecord) TableName() string {
	return "card_prices"
}

// IsEmpty reports whether no price figure is known.
func (p PriceRecord) IsEmpty() bool {
	for _, v := range p.fields() {
		if v != nil {
			return false
		}
	}
	return true
}

func (p PriceRecord) fields() []*float64 {
	return []*float64{p.Simple, p.Low, p.Trend, p.Avg1, p.Avg7, p.Avg30,
		p.ReverseSimple, p.ReverseLow, p.ReverseTrend, p.ReverseAvg1, p.ReverseAvg7, p.ReverseAvg30}
}
