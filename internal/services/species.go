package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/config"
)

// Species is one entry of the national species reference table.
type Species struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// SpeciesTable is the read-only lookup from canonical lowercase species name to id.
type SpeciesTable struct {
	byName map[string]int
	names  []string
}

func NewSpeciesTable(species []Species) *SpeciesTable {
	t := &SpeciesTable{byName: make(map[string]int, len(species))}
	for _, sp := range species {
		name := strings.ToLower(strings.TrimSpace(sp.Name))
		if name == "" {
			continue
		}
		if _, exists := t.byName[name]; exists {
			continue
		}
		t.byName[name] = sp.ID
		t.names = append(t.names, name)
	}
	sort.Strings(t.names)
	return t
}

// ID returns the species id for a canonical name.
func (t *SpeciesTable) ID(name string) (int, bool) {
	id, ok := t.byName[name]
	return id, ok
}

func (t *SpeciesTable) Has(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Names returns the canonical names in alphabetical order.
func (t *SpeciesTable) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

func (t *SpeciesTable) Len() int {
	return len(t.names)
}

// LoadSpeciesFile reads a table previously written by SaveSpeciesFile.
func LoadSpeciesFile(filePath string) ([]Species, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read species file: %w", err)
	}
	var species []Species
	if err := json.Unmarshal(data, &species); err != nil {
		return nil, fmt.Errorf("failed to parse species file: %w", err)
	}
	return species, nil
}

func SaveSpeciesFile(filePath string, species []Species) error {
	data, err := json.MarshalIndent(species, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode species: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create species directory: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write species file: %w", err)
	}
	return nil
}

// SpeciesService downloads the species list from PokeAPI.
type SpeciesService struct {
	client  *http.Client
	baseURL string
	maxID   int
	retry   RetryPolicy
}

func NewSpeciesService(cfg config.SpeciesConfig, retry RetryPolicy) *SpeciesService {
	maxID := cfg.MaxID
	if maxID <= 0 {
		maxID = 1025
	}
	return &SpeciesService{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: strings.TrimRight(cfg.SourceURL, "/"),
		maxID:   maxID,
		retry:   retry,
	}
}

type speciesListResponse struct {
	Count int `json:"count"`
	Results []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"results"`
}

// FetchSpecies returns species 1..maxID with card-print display names.
func (s *SpeciesService) FetchSpecies(ctx context.Context) ([]Species, error) {
	reqURL := fmt.Sprintf("%s/pokemon-species?limit=%d&offset=0", s.baseURL, s.maxID)

	list, err := Retry(ctx, s.retry, "species list", func(ctx context.Context) (*speciesListResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("pokeapi request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, &HTTPError{StatusCode: resp.StatusCode, URL: "pokemon-species", Body: truncateBody(body)}
		}

		var list speciesListResponse
		if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
			return nil, Permanent(fmt.Errorf("failed to decode pokeapi response: %w", err))
		}
		return &list, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch species: %w", err)
	}

	species := make([]Species, 0, len(list.Results))
	for _, r := range list.Results {
		id, err := strconv.Atoi(path.Base(strings.TrimRight(r.URL, "/")))
		if err != nil || id <= 0 || id > s.maxID {
			continue
		}
		species = append(species, Species{ID: id, Name: speciesDisplayName(r.Name)})
	}
	sort.Slice(species, func(i, j int) bool {
		return species[i].ID < species[j].ID
	})
	return species, nil
}

// Slugs whose printed card name is not the slug with spaces.
var speciesSlugNames = map[string]string{
	"mr-mime":   "mr. mime",
	"mime-jr":   "mime jr.",
	"mr-rime":   "mr. rime",
	"farfetchd": "farfetch'd",
	"sirfetchd": "sirfetch'd",
	"nidoran-f": "nidoran♀",
	"nidoran-m": "nidoran♂",
	"type-null": "type: null",
	"flabebe":   "flabébé",
	"ho-oh":     "ho-oh",
	"porygon-z": "porygon-z",
	"jangmo-o":  "jangmo-o",
	"hakamo-o":  "hakamo-o",
	"kommo-o":   "kommo-o",
	"wo-chien":  "wo-chien",
	"chien-pao": "chien-pao",
	"ting-lu":   "ting-lu",
	"chi-yu":    "chi-yu",
}

// speciesDisplayName turns a PokeAPI slug into the lowercase name printed on cards.
func speciesDisplayName(slug string) string {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if name, ok := speciesSlugNames[slug]; ok {
		return name
	}
	return strings.ReplaceAll(slug, "-", " ")
}
