package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/config"
)

func TestSpeciesDisplayName(t *testing.T) {
	tests := []struct {
		slug string
		want string
	}{
		{"bulbasaur", "bulbasaur"},
		{"mr-mime", "mr. mime"},
		{"nidoran-f", "nidoran♀"},
		{"farfetchd", "farfetch'd"},
		{"ho-oh", "ho-oh"},
		{"tapu-koko", "tapu koko"},
		{"Great-Tusk", "great tusk"},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			if got := speciesDisplayName(tt.slug); got != tt.want {
				t.Errorf("speciesDisplayName(%q) = %q, want %q", tt.slug, got, tt.want)
			}
		})
	}
}

func TestFetchSpecies(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pokemon-species" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "3" {
			t.Errorf("limit = %q, want 3", r.URL.Query().Get("limit"))
		}
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count":3,"results":[
			{"name":"mr-mime","url":"https://pokeapi.co/api/v2/pokemon-species/122/"},
			{"name":"bulbasaur","url":"https://pokeapi.co/api/v2/pokemon-species/1/"},
			{"name":"missingno","url":"https://pokeapi.co/api/v2/pokemon-species/0/"}
		]}`))
	}))
	defer server.Close()

	retry := DefaultRetryPolicy()
	retry.BaseDelay = time.Millisecond
	svc := NewSpeciesService(config.SpeciesConfig{SourceURL: server.URL, MaxID: 3}, retry)

	species, err := svc.FetchSpecies(context.Background())
	if err != nil {
		t.Fatalf("FetchSpecies: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}

	// 122 is above MaxID 3 and 0 is invalid
	want := []Species{{ID: 1, Name: "bulbasaur"}}
	if diff := cmp.Diff(want, species); diff != "" {
		t.Errorf("FetchSpecies mismatch (-want +got):\n%s", diff)
	}
}

func TestSpeciesFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "species.json")
	in := []Species{{ID: 145, Name: "zapdos"}, {ID: 6, Name: "charizard"}}

	if err := SaveSpeciesFile(path, in); err != nil {
		t.Fatalf("SaveSpeciesFile: %v", err)
	}
	out, err := LoadSpeciesFile(path)
	if err != nil {
		t.Fatalf("LoadSpeciesFile: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	table := NewSpeciesTable(out)
	if id, ok := table.ID("zapdos"); !ok || id != 145 {
		t.Errorf("table.ID(zapdos) = (%d, %v)", id, ok)
	}
}

func TestNewSpeciesTableDedupes(t *testing.T) {
	table := NewSpeciesTable([]Species{{ID: 1, Name: "Bulbasaur"}, {ID: 2, Name: "bulbasaur"}, {ID: 3, Name: " "}})
	if table.Len() != 1 {
		t.Fatalf("Len = %d, want 1", table.Len())
	}
	if id, _ := table.ID("bulbasaur"); id != 1 {
		t.Errorf("first entry should win, got id %d", id)
	}
}
