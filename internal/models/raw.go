package models

// RawAPICard is a card as returned by the card REST API.
type RawAPICard struct {
	ID                     string         `json:"id"`
	Name                   string         `json:"name"`
	Supertype              string         `json:"supertype"`
	Subtypes               []string       `json:"subtypes"`
	Types                  []string       `json:"types"`
	Number                 string         `json:"number"`
	Artist                 string         `json:"artist"`
	Rarity                 string         `json:"rarity"`
	NationalPokedexNumbers []int          `json:"nationalPokedexNumbers"`
	Images                 RawImages      `json:"images"`
	Set                    RawSetRef      `json:"set"`
	Cardmarket             *RawCardmarket `json:"cardmarket,omitempty"`
	TCGPlayer              *RawTCGPlayer  `json:"tcgplayer,omitempty"`
}

type RawImages struct {
	Small string `json:"small"`
	Large string `json:"large"`
}

type RawSetRef struct {
	Name string `json:"name"`
}

type RawCardmarket struct {
	URL       string              `json:"url"`
	UpdatedAt string              `json:"updatedAt"`
	Prices    RawCardmarketPrices `json:"prices"`
}

type RawCardmarketPrices struct {
	AverageSellPrice *float64 `json:"averageSellPrice"`
	LowPrice         *float64 `json:"lowPrice"`
	TrendPrice       *float64 `json:"trendPrice"`
	ReverseHoloSell  *float64 `json:"reverseHoloSell"`
	ReverseHoloLow   *float64 `json:"reverseHoloLow"`
	ReverseHoloTrend *float64 `json:"reverseHoloTrend"`
	Avg1             *float64 `json:"avg1"`
	Avg7             *float64 `json:"avg7"`
	Avg30            *float64 `json:"avg30"`
	ReverseHoloAvg1  *float64 `json:"reverseHoloAvg1"`
	ReverseHoloAvg7  *float64 `json:"reverseHoloAvg7"`
	ReverseHoloAvg30 *float64 `json:"reverseHoloAvg30"`
}

type RawTCGPlayer struct {
	URL       string                       `json:"url"`
	UpdatedAt string                       `json:"updatedAt"`
	Prices    map[string]RawTCGPlayerPrice `json:"prices"`
}

type RawTCGPlayerPrice struct {
	Low       *float64 `json:"low"`
	Mid       *float64 `json:"mid"`
	High      *float64 `json:"high"`
	Market    *float64 `json:"market"`
	DirectLow *float64 `json:"directLow"`
}

// RawAPISet is a set as returned by the card REST API.
type RawAPISet struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Series       string       `json:"series"`
	PrintedTotal int          `json:"printedTotal"`
	Total        int          `json:"total"`
	PtcgoCode    string       `json:"ptcgoCode"`
	ReleaseDate  string       `json:"releaseDate"`
	Images       RawSetImages `json:"images"`
}

type RawSetImages struct {
	Symbol string `json:"symbol"`
	Logo   string `json:"logo"`
}

// RawHTMLCard is a card scraped from the Japanese listing site. All fields are free text.
type RawHTMLCard struct {
	URL         string `json:"url"`
	ImageURL    string `json:"image_url"`
	Name        string `json:"name"`
	CardType    string `json:"card_type"`
	PokemonType string `json:"pokemon_type"`
	SetName     string `json:"set_name"`
	SetCode     string `json:"set_code"`
	CardNumber  string `json:"card_number"`
	Rarity      string `json:"rarity"`
	Illustrator string `json:"illustrator"`
	Price       string `json:"price"`
}

// ScrapeFailure records one card URL that could not be scraped.
type ScrapeFailure struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}
