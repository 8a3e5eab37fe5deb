// Package app wires configuration into the services shared by the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/config"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/database"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/services"
)

// objectPrefix is the key prefix the latest run's documents are uploaded under.
const objectPrefix = "latest"

type App struct {
	Config     config.Config
	Species    *services.SpeciesTable
	Resolver   *services.NameResolver
	Reconciler *services.SetReconciler
	Cards      *services.CardPipeline
	JP         *services.JPPipeline
	Sink       services.MultiSink
	Store      *database.CardStore
	// Snapshots reads the previous run's output, from the object store when
	// one is configured.
	Snapshots *services.SnapshotSource

	closers []func()
}

// New builds every service from cfg. The species table is read from
// cfg.Species.File, or fetched and saved there when the file does not exist.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg}
	retry := services.RetryPolicyFromConfig(cfg.API)

	species, err := LoadSpecies(ctx, cfg.Species, retry)
	if err != nil {
		return nil, err
	}
	a.Species = species

	a.Resolver, err = services.NewNameResolver(species, cfg.Species.CacheSize)
	if err != nil {
		return nil, err
	}

	rules, err := aliasRules(cfg.Reconcile)
	if err != nil {
		return nil, err
	}
	a.Reconciler = services.NewSetReconciler(rules, cfg.Reconcile.FuzzyThreshold)

	if err := a.openSinks(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Cards = services.NewCardPipeline(services.NewPokemonTCGService(cfg.API), a.Reconciler, a.Resolver, a.Sink, cfg.API)

	scraper, err := services.NewJPScraperService(cfg.Scraper, retry)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.JP = services.NewJPPipeline(scraper, a.Resolver, a.Sink, cfg.Scraper)

	return a, nil
}

func (a *App) openSinks(ctx context.Context) error {
	out := a.Config.Output
	a.Sink = services.MultiSink{services.NewJSONFileSink(out.Dir)}
	a.Snapshots = services.NewSnapshotSource(out.Dir, nil, "")

	if out.ObjectDir != "" {
		store, err := services.NewObjectStorageService(out.ObjectDir)
		if err != nil {
			return err
		}
		a.Sink = append(a.Sink, services.NewObjectStoreSink(store, objectPrefix))
		a.Snapshots = services.NewSnapshotSource(out.Dir, store, objectPrefix)
	}

	if out.SQLitePath != "" {
		db, err := database.Open(out.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		a.Store = database.NewCardStore(db)
		a.Sink = append(a.Sink, a.Store)
		a.closers = append(a.closers, func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
	}

	if out.PostgresURL != "" {
		pg, err := database.OpenPostgres(ctx, out.PostgresURL, 4)
		if err != nil {
			return err
		}
		a.Sink = append(a.Sink, pg)
		a.closers = append(a.closers, pg.Close)
	}

	log.Printf("App: writing output to %d sink(s)", len(a.Sink))
	return nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// LoadSpecies reads the species file, fetching and saving it first when missing.
func LoadSpecies(ctx context.Context, cfg config.SpeciesConfig, retry services.RetryPolicy) (*services.SpeciesTable, error) {
	species, err := services.LoadSpeciesFile(cfg.File)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("App: no species file at %s, fetching", cfg.File)
		species, err = services.NewSpeciesService(cfg, retry).FetchSpecies(ctx)
		if err != nil {
			return nil, err
		}
		if err := services.SaveSpeciesFile(cfg.File, species); err != nil {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}

	table := services.NewSpeciesTable(species)
	log.Printf("App: loaded %d species", table.Len())
	return table, nil
}

func aliasRules(cfg config.ReconcileConfig) ([]services.AliasRule, error) {
	if cfg.AliasFile != "" {
		return services.LoadAliasRules(cfg.AliasFile)
	}
	return services.DefaultAliasRules()
}
