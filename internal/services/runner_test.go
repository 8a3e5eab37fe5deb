package services

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/models"
)

func newTestRunner(t *testing.T, api *fakeCardAPI, sink Sink, snapshots *SnapshotSource) *Runner {
	t.Helper()
	p, done := newTestPipeline(t, api, sink, 3, 2)
	t.Cleanup(done)
	reg, err := NewRunRegistry(10)
	require.NoError(t, err)
	t.Cleanup(reg.Shutdown)
	return NewRunner(p, nil, reg, snapshots)
}

func TestRunnerSetsThenCards(t *testing.T) {
	vault := fakeAPICard(4)
	vault.Set.Name = "Hidden Fates Shiny Vault"
	vault.Images.Small = "https://images.pokemontcg.io/sma/SV4.png"
	vault.Number = "SV4"

	api := &fakeCardAPI{
		cards: []models.RawAPICard{vault},
		sets: []models.RawAPISet{
			rawSet("sm115", "Hidden Fates", "HIF", 68),
			rawSet("sma", "Hidden Fates Shiny Vault", "HIF", 94),
		},
	}
	sink := &memorySink{}
	r := newTestRunner(t, api, sink, nil)

	sets, err := r.StartSets("")
	require.NoError(t, err)
	r.Registry().Wait()
	require.Equal(t, RunDone, sets.View().State)

	cards, err := r.StartCards("")
	require.NoError(t, err)
	r.Registry().Wait()
	require.Equal(t, RunDone, cards.View().State, cards.View().Error)

	require.Len(t, sink.cards, 1)
	require.Equal(t, "Hidden Fates", sink.cards[0].SetName)
}

func TestRunnerMappingFromSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeAll(t, NewJSONFileSink(dir))

	r := newTestRunner(t, &fakeCardAPI{}, nil, NewSnapshotSource(dir, nil, ""))
	target, ok := r.Mapping(context.Background()).LookupCode("sma")
	require.True(t, ok)
	require.Equal(t, "Hidden Fates", target.PrimarySetName)
}

func TestRunnerMappingFromObjectStore(t *testing.T) {
	store, err := NewObjectStorageService(t.TempDir())
	require.NoError(t, err)
	writeAll(t, NewObjectStoreSink(store, "latest"))

	// The output directory is empty; only the object store has the snapshot.
	r := newTestRunner(t, &fakeCardAPI{}, nil, NewSnapshotSource(t.TempDir(), store, "latest"))
	m := r.Mapping(context.Background())

	target, ok := m.LookupCode("sma")
	require.True(t, ok)
	require.Equal(t, "Hidden Fates", target.PrimarySetName)

	target, ok = m.LookupName("Hidden Fates Shiny Vault")
	require.True(t, ok)
	require.Equal(t, "sm115", target.PrimarySetCode)
}

func TestRunnerMissingSnapshot(t *testing.T) {
	r := newTestRunner(t, &fakeCardAPI{}, nil, NewSnapshotSource(t.TempDir(), nil, ""))
	require.Zero(t, r.Mapping(context.Background()).Len())

	store, err := NewObjectStorageService(t.TempDir())
	require.NoError(t, err)
	r = newTestRunner(t, &fakeCardAPI{}, nil, NewSnapshotSource("", store, "latest"))
	require.Zero(t, r.Mapping(context.Background()).Len())
}

func TestRunnerRequiresCredential(t *testing.T) {
	api := &fakeCardAPI{}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	cfg := testAPIConfig(srv.URL)
	cfg.APIKey = ""
	reg, err := NewRunRegistry(10)
	require.NoError(t, err)
	defer reg.Shutdown()

	r := NewRunner(NewCardPipeline(NewPokemonTCGService(cfg), NewSetReconciler(nil, 0.92), newTestResolver(t), nil, cfg), nil, reg, nil)

	_, err = r.StartCards("")
	require.ErrorIs(t, err, ErrMissingCredential)
	require.Empty(t, reg.List())

	// A key supplied with the request is enough
	status, err := r.StartSets(testAPIKey)
	require.NoError(t, err)
	reg.Wait()
	require.Equal(t, RunDone, status.View().State)

	_, err = r.StartJP(JPQuery{})
	require.Error(t, err)
}
