package services

import (
	"fmt"
	"log"
	"strings"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/metrics"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/models"
)

// Items printed like Pokémon that the upstream files under the Pokémon supertype.
var forcedTrainerNames = map[string]bool{
	"clefairy doll":     true,
	"mysterious fossil": true,
}

// NormalizedCard is one canonical card with its optional price facts.
type NormalizedCard struct {
	Card  models.CanonicalCard
	Price *models.PriceRecord
}

// Normalizer turns raw upstream records into canonical cards. The resolver and
// set mapping are shared read-only across goroutines.
type Normalizer struct {
	resolver *NameResolver
	mapping  *models.SetMapping
}

func NewNormalizer(resolver *NameResolver, mapping *models.SetMapping) *Normalizer {
	if mapping == nil {
		mapping = models.NewSetMapping()
	}
	return &Normalizer{
		resolver: resolver,
		mapping:  mapping,
	}
}

// NormalizeAPICard maps a card from the REST API. Records without a name,
// number or set are rejected with ErrIncompleteRecord.
func (n *Normalizer) NormalizeAPICard(raw models.RawAPICard) (*NormalizedCard, error) {
	name := RepairText(raw.Name)
	setName := RepairText(raw.Set.Name)
	number := strings.TrimSpace(raw.Number)
	if missing := missingFields(map[string]string{"name": name, "number": number, "set": setName}); missing != "" {
		return nil, fmt.Errorf("card %q: %w: %s", raw.ID, ErrIncompleteRecord, missing)
	}

	supertype := canonicalSupertype(RepairText(raw.Supertype))
	if supertype == "" {
		return nil, fmt.Errorf("card %q: %w: supertype %q", raw.ID, ErrIncompleteRecord, raw.Supertype)
	}
	if forcedTrainerNames[strings.ToLower(name)] {
		supertype = models.SupertypeTrainer
	}

	var pokemonNumber *int
	if supertype == models.SupertypePokemon {
		if len(raw.NationalPokedexNumbers) > 0 && raw.NationalPokedexNumbers[0] > 0 {
			id := raw.NationalPokedexNumbers[0]
			pokemonNumber = &id
		} else {
			pokemonNumber = n.resolveSpecies(name)
		}
	}

	setCode := DeriveSetCode(raw.Images.Small)
	if setCode == "" {
		setCode = DeriveSetCode(raw.Images.Large)
	}
	setName, setCode = n.applySetMapping(setName, setCode)

	card := models.CanonicalCard{
		CardCode:  GenerateCardCode(string(supertype), speciesOrUnknown(pokemonNumber), setCode, number),
		Name:      name,
		Artist:    RepairText(raw.Artist),
		Rarity:    RepairText(raw.Rarity),
		SetName:   setName,
		Supertype: supertype,
		Types:     strings.Join(raw.Types, ","),
		Image:     firstNonEmpty(raw.Images.Large, raw.Images.Small),

		PokemonNumber: pokemonNumber,
	}
	if raw.Cardmarket != nil {
		card.CardMarketURL = raw.Cardmarket.URL
		card.CardMarketUpdatedAt = raw.Cardmarket.UpdatedAt
	}

	price := ExtractPrices(raw.Cardmarket, raw.TCGPlayer)
	if price != nil {
		price.CardCode = card.CardCode
	}

	metrics.CardsNormalizedTotal.WithLabelValues("api", string(supertype)).Inc()
	return &NormalizedCard{Card: card, Price: price}, nil
}

// NormalizeHTMLCard maps a card scraped from the Japanese listing site.
func (n *Normalizer) NormalizeHTMLCard(raw models.RawHTMLCard) (*NormalizedCard, error) {
	name := RepairText(raw.Name)
	setName := RepairText(raw.SetName)
	number := strings.TrimSpace(raw.CardNumber)
	setRef := firstNonEmpty(setName, strings.TrimSpace(raw.SetCode))
	if missing := missingFields(map[string]string{"name": name, "card_number": number, "set": setRef}); missing != "" {
		return nil, fmt.Errorf("card %s: %w: %s", raw.URL, ErrIncompleteRecord, missing)
	}

	supertype := classifyCardType(RepairText(raw.CardType))
	if supertype == "" {
		// Listing pages omit the type for most Pokémon
		supertype = models.SupertypePokemon
	}
	if forcedTrainerNames[strings.ToLower(name)] {
		supertype = models.SupertypeTrainer
	}

	var pokemonNumber *int
	if supertype == models.SupertypePokemon {
		pokemonNumber = n.resolveSpecies(name)
	}

	setCode := NormalizeToken(raw.SetCode)
	if setCode == "" {
		setCode = NormalizeToken(setName)
	}
	if setName == "" {
		setName = strings.TrimSpace(raw.SetCode)
	}
	setName, setCode = n.applySetMapping(setName, setCode)

	card := models.CanonicalCard{
		CardCode:  GenerateCardCode(string(supertype), speciesOrUnknown(pokemonNumber), setCode, number),
		Name:      name,
		Artist:    RepairText(raw.Illustrator),
		Rarity:    RepairText(raw.Rarity),
		SetName:   setName,
		Supertype: supertype,
		Types:     RepairText(raw.PokemonType),
		Image:     strings.TrimSpace(raw.ImageURL),

		PokemonNumber: pokemonNumber,
	}

	var price *models.PriceRecord
	if v := ParsePriceText(raw.Price); v != nil {
		price = &models.PriceRecord{CardCode: card.CardCode, Simple: v}
	}

	metrics.CardsNormalizedTotal.WithLabelValues("jp", string(supertype)).Inc()
	return &NormalizedCard{Card: card, Price: price}, nil
}

// resolveSpecies returns the species id for a Pokémon card name, or the
// unknown-species sentinel.
func (n *Normalizer) resolveSpecies(name string) *int {
	id := models.UnknownSpeciesID
	if n.resolver != nil {
		if resolved, ok := n.resolver.ResolveID(name); ok {
			id = resolved
			return &id
		}
	}
	metrics.UnresolvedSpeciesTotal.Inc()
	log.Printf("Normalizer: no species for %q, using %d", name, models.UnknownSpeciesID)
	return &id
}

// applySetMapping replaces an alias set with its canonical set. The set name is
// checked first, then the machine code.
func (n *Normalizer) applySetMapping(setName, setCode string) (string, string) {
	if target, ok := n.mapping.LookupName(setName); ok {
		return target.PrimarySetName, firstNonEmpty(target.PrimarySetCode, setCode)
	}
	if setCode != "" {
		if target, ok := n.mapping.LookupCode(setCode); ok {
			return target.PrimarySetName, firstNonEmpty(target.PrimarySetCode, setCode)
		}
	}
	if setCode == "" {
		setCode = NormalizeToken(setName)
	}
	return setName, setCode
}

func canonicalSupertype(s string) models.Supertype {
	switch normalizeSupertype(s) {
	case "pokemon":
		return models.SupertypePokemon
	case "trainer":
		return models.SupertypeTrainer
	case "energy":
		return models.SupertypeEnergy
	}
	return ""
}

// classifyCardType reads the free-text card type of the Japanese site, which may
// be English or Japanese ("Supporter", "グッズ", "基本エネルギー").
func classifyCardType(cardType string) models.Supertype {
	lower := strings.ToLower(cardType)
	switch {
	case lower == "":
		return ""
	case strings.Contains(lower, "energy"), strings.Contains(lower, "エネルギー"):
		return models.SupertypeEnergy
	case strings.Contains(lower, "trainer"), strings.Contains(lower, "supporter"),
		strings.Contains(lower, "item"), strings.Contains(lower, "stadium"),
		strings.Contains(lower, "tool"), strings.Contains(lower, "トレーナー"),
		strings.Contains(lower, "サポート"), strings.Contains(lower, "グッズ"),
		strings.Contains(lower, "スタジアム"), strings.Contains(lower, "どうぐ"):
		return models.SupertypeTrainer
	case normalizeSupertype(lower) == "pokemon", strings.Contains(lower, "pokemon"),
		strings.Contains(lower, "pokémon"), strings.Contains(lower, "ポケモン"),
		strings.Contains(lower, "basic"), strings.Contains(lower, "stage"), strings.Contains(lower, "たね"):
		return models.SupertypePokemon
	}
	return ""
}

func missingFields(fields map[string]string) string {
	var missing []string
	for _, key := range []string{"name", "number", "card_number", "set"} {
		if v, ok := fields[key]; ok && strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
	}
	return strings.Join(missing, ", ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
