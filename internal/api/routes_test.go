package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/api/handlers"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/config"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestRouter wires a router to an upstream that serves empty pages and
// accepts only the key "good-key".
func newTestRouter(t *testing.T) (*gin.Engine, *services.RunRegistry) {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "good-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"data":[],"page":1,"pageSize":250,"count":0,"totalCount":0}`))
	}))
	t.Cleanup(upstream.Close)

	cfg := config.Default()
	cfg.API.BaseURL = upstream.URL
	cfg.API.APIKey = ""
	cfg.API.RequestsPerSecond = 0
	cfg.API.MaxAttempts = 1
	cfg.API.BaseDelay = config.Duration(time.Millisecond)

	resolver, err := services.NewNameResolver(services.NewSpeciesTable(nil), 16)
	require.NoError(t, err)
	pipeline := services.NewCardPipeline(services.NewPokemonTCGService(cfg.API), services.NewSetReconciler(nil, 0.92), resolver, nil, cfg.API)

	registry, err := services.NewRunRegistry(10)
	require.NoError(t, err)
	t.Cleanup(registry.Shutdown)

	runner := services.NewRunner(pipeline, nil, registry, nil)
	return SetupRouter(cfg.Server, runner), registry
}

func serve(router *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)
	w := serve(router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStartRunRequiresKey(t *testing.T) {
	router, registry := newTestRouter(t)
	w := serve(router, http.MethodPost, "/api/runs/cards", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, registry.List())
}

func TestStartSetsRunAndPoll(t *testing.T) {
	router, registry := newTestRouter(t)

	w := serve(router, http.MethodPost, "/api/runs/sets", "", map[string]string{handlers.APIKeyHeader: "good-key"})
	require.Equal(t, http.StatusAccepted, w.Code)

	var started services.RunView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	require.Equal(t, services.KindSets, started.Kind)
	require.NotEmpty(t, started.ID)

	registry.Wait()

	w = serve(router, http.MethodGet, "/api/runs/"+started.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var finished services.RunView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &finished))
	require.Equal(t, services.RunDone, finished.State)

	w = serve(router, http.MethodGet, "/api/runs", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Runs []services.RunView `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Runs, 1)
}

func TestFailedRunReportsError(t *testing.T) {
	router, registry := newTestRouter(t)

	w := serve(router, http.MethodPost, "/api/runs/sets", "", map[string]string{handlers.APIKeyHeader: "bad-key"})
	require.Equal(t, http.StatusAccepted, w.Code)
	var started services.RunView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))

	registry.Wait()

	w = serve(router, http.MethodGet, "/api/runs/"+started.ID, "", nil)
	var finished services.RunView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &finished))
	require.Equal(t, services.RunFailed, finished.State)
	require.Contains(t, finished.Error, "403")
}

func TestGetUnknownRun(t *testing.T) {
	router, _ := newTestRouter(t)
	w := serve(router, http.MethodGet, "/api/runs/nope", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartJP(t *testing.T) {
	router, _ := newTestRouter(t)

	w := serve(router, http.MethodPost, "/api/runs/jp", "{bad", map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// No scraper configured on this router
	w = serve(router, http.MethodPost, "/api/runs/jp", `{"keyword":"pikachu"}`, map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	serve(router, http.MethodGet, "/health", "", nil)

	w := serve(router, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "cardsync_http_requests_total")
}
