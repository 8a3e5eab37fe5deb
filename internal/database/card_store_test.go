package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/models"
)

func newTestStore(t *testing.T) *CardStore {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "cards.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewCardStore(db)
}

func fp(v float64) *float64 { return &v }
func ip(v int) *int         { return &v }

var ignoreUpdatedAt = cmpopts.IgnoreFields(models.CanonicalCard{}, "UpdatedAt")

func TestCardStoreUpsertCards(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cards := []models.CanonicalCard{
		{CardCode: "pokemon_25_base1_58", Name: "Pikachu", SetName: "Base", Supertype: models.SupertypePokemon, PokemonNumber: ip(25)},
		{CardCode: "trainer_0_base1_91", Name: "Bill", SetName: "Base", Supertype: models.SupertypeTrainer},
	}
	require.NoError(t, store.WriteCards(ctx, cards))

	// Same key again replaces the row instead of failing
	cards[0].Rarity = "Common"
	require.NoError(t, store.WriteCards(ctx, cards[:1]))

	got, err := store.LoadCards(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(cards, got, ignoreUpdatedAt); diff != "" {
		t.Errorf("cards mismatch (-want +got):\n%s", diff)
	}
}

func TestCardStorePrices(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.WritePrices(ctx, map[string]models.PriceRecord{
		"pokemon_25_base1_58": {Simple: fp(3.5), Avg30: fp(0)},
		"trainer_0_base1_91":  {Low: fp(0.25)},
	}))

	prices, err := store.LoadPrices(ctx)
	require.NoError(t, err)
	require.Len(t, prices, 2)
	require.Equal(t, 3.5, *prices["pokemon_25_base1_58"].Simple)
	require.NotNil(t, prices["pokemon_25_base1_58"].Avg30)
	require.Zero(t, *prices["pokemon_25_base1_58"].Avg30)
	require.Nil(t, prices["pokemon_25_base1_58"].Low)
}

func TestCardStoreSetsKeepAliases(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sets := []models.SetRecord{
		{Name: "Hidden Fates", Code: "sm115", PrintedTotal: 162, ReleaseDate: "2019/08/23", Aliases: []string{"sma"}, AliasNames: []string{"Hidden Fates Shiny Vault"}},
		{Name: "Base", Code: "base1", PrintedTotal: 102, ReleaseDate: "1999/01/09"},
	}
	require.NoError(t, store.WriteSets(ctx, sets))

	got, err := store.LoadSets(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Base", got[0].Name)
	require.Equal(t, []string{"sma"}, got[1].Aliases)
	require.Equal(t, []string{"Hidden Fates Shiny Vault"}, got[1].AliasNames)
}

func TestCardStoreDeleteCards(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.WriteCards(ctx, []models.CanonicalCard{
		{CardCode: "a", Name: "A", SetName: "S", Supertype: models.SupertypeEnergy},
		{CardCode: "b", Name: "B", SetName: "S", Supertype: models.SupertypeEnergy},
	}))
	require.NoError(t, store.WritePrices(ctx, map[string]models.PriceRecord{"a": {Simple: fp(1)}}))

	require.NoError(t, store.DeleteCards(ctx, []string{"a"}))

	cards, err := store.LoadCards(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	require.Equal(t, "b", cards[0].CardCode)

	prices, err := store.LoadPrices(ctx)
	require.NoError(t, err)
	require.Empty(t, prices)
}

func TestMigrationsRemoveOrphanPrices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.db")
	db, err := Open(path)
	require.NoError(t, err)
	store := NewCardStore(db)
	ctx := context.Background()

	require.NoError(t, store.WriteCards(ctx, []models.CanonicalCard{{CardCode: "kept", Name: "K", SetName: "S", Supertype: models.SupertypeEnergy}}))
	require.NoError(t, store.WritePrices(ctx, map[string]models.PriceRecord{
		"kept":   {Simple: fp(1)},
		"orphan": {Simple: fp(2)},
	}))

	require.NoError(t, RunMigrations(db))

	prices, err := store.LoadPrices(ctx)
	require.NoError(t, err)
	require.Len(t, prices, 1)
	require.Contains(t, prices, "kept")
}

func TestPriceRows(t *testing.T) {
	rows := PriceRows(map[string]models.PriceRecord{
		"b": {Simple: fp(2)},
		"a": {Simple: fp(1)},
	})
	require.Len(t, rows, 2)
	require.Equal(t, "a", rows[0].CardCode)
	require.Equal(t, "b", rows[1].CardCode)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CARDSYNC_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CARDSYNC_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := OpenPostgres(ctx, dsn, 2)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.WriteSets(ctx, []models.SetRecord{{Name: "Test Set", Code: "tst", Aliases: []string{"tsa"}}}))
	require.NoError(t, store.WriteCards(ctx, []models.CanonicalCard{{CardCode: "energy_0_tst_1", Name: "E", SetName: "Test Set", Supertype: models.SupertypeEnergy}}))
	require.NoError(t, store.WritePrices(ctx, map[string]models.PriceRecord{"energy_0_tst_1": {Simple: fp(0.1)}}))
	require.NoError(t, store.DeleteCards(ctx, []string{"energy_0_tst_1"}))
}
