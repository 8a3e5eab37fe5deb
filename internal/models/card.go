package models

import "time"

// Supertype is the top-level card category.
type Supertype string

const (
	SupertypePokemon Supertype = "Pokémon"
	SupertypeTrainer Supertype = "Trainer"
	SupertypeEnergy  Supertype = "Energy"
)

// UnknownSpeciesID marks a confirmed Pokémon card whose species could not be resolved.
const UnknownSpeciesID = 99999

// CanonicalCard is the unified card record produced from either upstream.
type CanonicalCard struct {
	CardCode            string    `json:"cardCode" gorm:"primaryKey"`
	Name                string    `json:"name" gorm:"not null;index"`
	Artist              string    `json:"artist"`
	Rarity              string    `json:"rarity"`
	SetName             string    `json:"setName" gorm:"not null;index"`
	Supertype           Supertype `json:"supertype" gorm:"not null;index"`
	Types               string    `json:"types"`
	Image               string    `json:"image"`
	PokemonNumber       *int      `json:"pokemonNumber"`
	CardMarketURL       string    `json:"cardMarketUrl"`
	CardMarketUpdatedAt string    `json:"cardMarketUpdatedAt"`
	UpdatedAt           time.Time `json:"-"`
}

func (CanonicalCard) TableName() string {
	return "cards"
}

// HasUnknownSpecies reports whether the card is a Pokémon whose species is the sentinel.
func (c CanonicalCard) HasUnknownSpecies() bool {
	return c.PokemonNumber != nil && *c.PokemonNumber == UnknownSpeciesID
}
