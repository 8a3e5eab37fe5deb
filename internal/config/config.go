// Package config holds the explicit configuration object handed to every
// pipeline component. Nothing in the module reads credentials from globals.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	API       APIConfig       `toml:"api"`
	Scraper   ScraperConfig   `toml:"scraper"`
	Species   SpeciesConfig   `toml:"species"`
	Reconcile ReconcileConfig `toml:"reconcile"`
	Output    OutputConfig    `toml:"output"`
	Server    ServerConfig    `toml:"server"`
}

// APIConfig configures the card REST API client and the API pipeline.
type APIConfig struct {
	BaseURL           string   `toml:"base_url"`
	APIKey            string   `toml:"api_key"`
	Query             string   `toml:"query"`
	Select            string   `toml:"select"`
	OrderBy           string   `toml:"order_by"`
	PageSize          int      `toml:"page_size"`
	BatchSize         int      `toml:"batch_size"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Timeout           Duration `toml:"timeout"`
	MaxAttempts       int      `toml:"max_attempts"`
	BaseDelay         Duration `toml:"base_delay"`
}

// ScraperConfig configures the Japanese listing site scraper.
type ScraperConfig struct {
	BaseURL        string   `toml:"base_url"`
	ListPath       string   `toml:"list_path"`
	UserAgent      string   `toml:"user_agent"`
	Sort           string   `toml:"sort"`
	Display        string   `toml:"display"`
	PageSize       int      `toml:"page_size"`
	Workers        int      `toml:"workers"`
	ChunkDelay     Duration `toml:"chunk_delay"`
	Timeout        Duration `toml:"timeout"`
	CheckpointFile string   `toml:"checkpoint_file"`
	MaxPages       int      `toml:"max_pages"`
}

type SpeciesConfig struct {
	SourceURL string `toml:"source_url"`
	File      string `toml:"file"`
	MaxID     int    `toml:"max_id"`
	CacheSize int    `toml:"cache_size"`
}

type ReconcileConfig struct {
	AliasFile      string  `toml:"alias_file"`
	FuzzyThreshold float64 `toml:"fuzzy_threshold"`
}

// OutputConfig selects the sinks a run writes to. Empty values disable a sink,
// except Dir which always receives the JSON files.
type OutputConfig struct {
	Dir         string `toml:"dir"`
	ObjectDir   string `toml:"object_dir"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresURL string `toml:"postgres_url"`
}

type ServerConfig struct {
	Port        string   `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// RunHistory is how many finished runs the server remembers.
	RunHistory int `toml:"run_history"`
}

// Default returns the configuration used when no file or environment overrides are given.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:           "https://api.pokemontcg.io/v2",
			Select:            "id,name,supertype,subtypes,types,number,artist,rarity,nationalPokedexNumbers,images,set,cardmarket,tcgplayer",
			OrderBy:           "set.releaseDate,number",
			PageSize:          250,
			BatchSize:         10,
			RequestsPerSecond: 5,
			Timeout:           Duration(30 * time.Second),
			MaxAttempts:       5,
			BaseDelay:         Duration(time.Second),
		},
		Scraper: ScraperConfig{
			BaseURL:        "https://www.pokellector.jp",
			ListPath:       "/cards/jp",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36",
			Sort:           "release",
			Display:        "list",
			PageSize:       60,
			Workers:        5,
			ChunkDelay:     Duration(2 * time.Second),
			Timeout:        Duration(20 * time.Second),
			CheckpointFile: "./output/jp_cards.checkpoint.json",
		},
		Species: SpeciesConfig{
			SourceURL: "https://pokeapi.co/api/v2",
			File:      "./data/species.json",
			MaxID:     1025,
			CacheSize: 4096,
		},
		Reconcile: ReconcileConfig{
			FuzzyThreshold: 0.92,
		},
		Output: OutputConfig{
			Dir: "./output",
		},
		Server: ServerConfig{
			Port:        "8080",
			CORSOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
			RunHistory:  50,
		},
	}
}

// Load starts from Default, decodes the TOML file at path over it (skipped when
// path is empty) and then applies environment overrides. Values the file sets
// explicitly, zero included, are kept.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := mergo.Merge(&cfg, envOverrides(), mergo.WithOverride); err != nil {
		return Config{}, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envOverrides returns a Config holding only the values set in the environment.
// Unset variables leave zero fields, which the merge skips.
func envOverrides() Config {
	var cfg Config
	cfg.API.APIKey = os.Getenv("POKEMONTCG_API_KEY")
	cfg.API.BaseURL = os.Getenv("POKEMONTCG_BASE_URL")
	if v := os.Getenv("CARDSYNC_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.PageSize = n
		}
	}
	cfg.Scraper.BaseURL = os.Getenv("JP_BASE_URL")
	cfg.Species.File = os.Getenv("SPECIES_FILE")
	cfg.Reconcile.AliasFile = os.Getenv("SET_ALIAS_FILE")
	cfg.Output.Dir = os.Getenv("CARDSYNC_OUTPUT_DIR")
	cfg.Output.ObjectDir = os.Getenv("OBJECT_STORAGE_DIR")
	cfg.Output.SQLitePath = os.Getenv("DB_PATH")
	cfg.Output.PostgresURL = os.Getenv("DATABASE_URL")
	cfg.Server.Port = os.Getenv("PORT")
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	return cfg
}

// Validate checks values that would make a run misbehave rather than fail loudly.
// A missing API key is not checked here; the client reports it per request.
func (c Config) Validate() error {
	var errs []error
	if c.API.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("api.page_size must be positive, got %d", c.API.PageSize))
	}
	if c.API.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("api.batch_size must be positive, got %d", c.API.BatchSize))
	}
	if c.API.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("api.max_attempts must be positive, got %d", c.API.MaxAttempts))
	}
	if c.Scraper.Workers <= 0 {
		errs = append(errs, fmt.Errorf("scraper.workers must be positive, got %d", c.Scraper.Workers))
	}
	if c.Reconcile.FuzzyThreshold < 0 || c.Reconcile.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("reconcile.fuzzy_threshold must be within [0,1], got %v", c.Reconcile.FuzzyThreshold))
	}
	return errors.Join(errs...)
}
