package services

import (
	"testing"
)

func TestGenerateCardCode(t *testing.T) {
	tests := []struct {
		name       string
		supertype  string
		species    int
		setCode    string
		cardNumber string
		want       string
	}{
		{"accented pokemon", "Pokémon", 145, "tr", "21", "pokemon_145_tr_21"},
		{"ascii pokemon", "pokemon", 145, "TR", "21", "pokemon_145_tr_21"},
		{"decomposed accent", "Poke\u0301mon", 6, "base1", "4", "pokemon_6_base1_4"},
		{"mis-encoded accent", "Pok\u00c3\u00a9mon", 6, "base1", "4", "pokemon_6_base1_4"},
		{"accent lost upstream", "Pok?mon", 6, "base1", "4", "pokemon_6_base1_4"},
		{"number with total", "Pokémon", 6, "base1", "4/102", "pokemon_6_base1_4"},
		{"alphanumeric number", "Pokémon", 25, "swshp", "SWSH050", "pokemon_25_swshp_swsh050"},
		{"trainer sentinel species", "Trainer", 0, "sv1", "172/198", "trainer_0_sv1_172"},
		{"energy punctuation", "Energy", 0, "sm-115", "#7", "energy_0_sm115_7"},
		{"negative species clamps", "Pokémon", -4, "base1", "1", "pokemon_0_base1_1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateCardCode(tt.supertype, tt.species, tt.setCode, tt.cardNumber)
			if got != tt.want {
				t.Errorf("GenerateCardCode(%q, %d, %q, %q) = %q, want %q",
					tt.supertype, tt.species, tt.setCode, tt.cardNumber, got, tt.want)
			}
		})
	}
}

func TestGenerateCardCodeDeterministic(t *testing.T) {
	first := GenerateCardCode("Pokémon", 145, "tr", "21")
	for i := 0; i < 10; i++ {
		if got := GenerateCardCode("Pokémon", 145, "tr", "21"); got != first {
			t.Fatalf("call %d returned %q, want %q", i, got, first)
		}
	}
}

func TestGenerateCardCodeCollisionAvoidance(t *testing.T) {
	base := GenerateCardCode("Pokémon", 145, "tr", "21")
	variants := map[string]string{
		"supertype": GenerateCardCode("Trainer", 145, "tr", "21"),
		"species":   GenerateCardCode("Pokémon", 146, "tr", "21"),
		"set":       GenerateCardCode("Pokémon", 145, "base1", "21"),
		"number":    GenerateCardCode("Pokémon", 145, "tr", "22"),
	}
	for field, code := range variants {
		if code == base {
			t.Errorf("changing %s produced the same code %q", field, code)
		}
	}

	// Case and accent differences collapse on purpose
	if got := GenerateCardCode("POKEMON", 145, "Tr", "21/82"); got != base {
		t.Errorf("normalized variant = %q, want %q", got, base)
	}
}

func TestNormalizeToken(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Pokémon", "pokemon"},
		{"Flabébé", "flabebe"},
		{"SWSH 4.5", "swsh45"},
		{"", ""},
		{"---", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeToken(tt.input); got != tt.want {
				t.Errorf("NormalizeToken(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestReplaceSetCode(t *testing.T) {
	if got := ReplaceSetCode("pokemon_25_sma_sv49", "sm115"); got != "pokemon_25_sm115_sv49" {
		t.Errorf("ReplaceSetCode = %q", got)
	}
	if got := ReplaceSetCode("not-a-code", "sm115"); got != "not-a-code" {
		t.Errorf("ReplaceSetCode on malformed code = %q", got)
	}
}
