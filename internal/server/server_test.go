package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/UnknownOlympus/geomap/internal/mapview"
	"github.com/UnknownOlympus/geomap/internal/models"
	"github.com/UnknownOlympus/geomap/internal/server"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockController is a hand-rolled Controller double.
type mockController struct {
	cities      []models.CityFeature
	results     []models.SearchResult
	loading     bool
	searchQuery string
	searchTopK  int
	uploadBody  string
	status      string
}

func (m *mockController) Search(_ context.Context, query string, topK int) []models.SearchResult {
	m.searchQuery = query
	m.searchTopK = topK
	if query == "" {
		m.results = nil
	}
	return m.results
}

func (m *mockController) Upload(_ context.Context, payload io.Reader) string {
	body, _ := io.ReadAll(payload)
	m.uploadBody = string(body)
	return m.status
}

func (m *mockController) Snapshot() ([]models.CityFeature, []models.SearchResult, bool) {
	return m.cities, m.results, m.loading
}

// mockPlatform is a hand-rolled Platform double.
type mockPlatform struct {
	probeErr error
	stats    map[string]any
	statsErr error
}

func (m *mockPlatform) ListModels(_ context.Context) error { return m.probeErr }

func (m *mockPlatform) Stats(_ context.Context) (map[string]any, error) {
	return m.stats, m.statsErr
}

func newTestServer(ctrl server.Controller, platformClient server.Platform) *server.Server {
	metricsHandler := promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	return server.NewServer(slog.Default(), ctrl, platformClient, metricsHandler, 5)
}

func TestHandleIndex(t *testing.T) {
	ctrl := &mockController{
		cities: []models.CityFeature{
			{Name: "X", Coords: models.Coordinates{Longitude: 10, Latitude: 20}},
		},
	}
	srv := newTestServer(ctrl, &mockPlatform{})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Geospatial Embeddings Demo")
	// Initial city markers are inlined for the first paint.
	assert.Contains(t, rec.Body.String(), `"popup":"X"`)
}

func TestHandleCities(t *testing.T) {
	ctrl := &mockController{
		cities: []models.CityFeature{
			{Name: "X", Coords: models.Coordinates{Longitude: 10, Latitude: 20}},
		},
	}
	srv := newTestServer(ctrl, &mockPlatform{})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cities", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var markers []mapview.Marker
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &markers))
	require.Len(t, markers, 1)
	assert.Equal(t, mapview.KindCity, markers[0].Kind)
	assert.InEpsilon(t, 20.0, markers[0].Latitude, 0.0001)
	assert.InEpsilon(t, 10.0, markers[0].Longitude, 0.0001)
	assert.Contains(t, markers[0].Popup, "X")
}

func TestHandleSearch(t *testing.T) {
	t.Run("results list and markers", func(t *testing.T) {
		ctrl := &mockController{
			cities: []models.CityFeature{
				{Name: "X", Coords: models.Coordinates{Longitude: 10, Latitude: 20}},
			},
			results: []models.SearchResult{
				{ID: "a", Name: "Kyiv", Similarity: 0.876,
					Geometry:   geojson.NewGeometry(orb.Point{30.52, 50.45}),
					Properties: map[string]any{"description": "Capital of Ukraine"}},
				{ID: "b", Name: "No geometry", Similarity: 0.4},
			},
		}
		srv := newTestServer(ctrl, &mockPlatform{})

		body := strings.NewReader(`{"query_text":"capital","k":3}`)
		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search", body))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "capital", ctrl.searchQuery)
		assert.Equal(t, 3, ctrl.searchTopK)

		var resp struct {
			Results []struct {
				Name          string `json:"name"`
				SimilarityPct string `json:"similarity_pct"`
				Description   string `json:"description"`
			} `json:"results"`
			Markers []mapview.Marker `json:"markers"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

		// All results stay in the ranked list; only the one with point geometry
		// becomes a marker.
		require.Len(t, resp.Results, 2)
		assert.Equal(t, "87.6%", resp.Results[0].SimilarityPct)
		assert.Equal(t, "Capital of Ukraine", resp.Results[0].Description)
		require.Len(t, resp.Markers, 2)
		assert.Equal(t, mapview.KindCity, resp.Markers[0].Kind)
		assert.Equal(t, mapview.KindResult, resp.Markers[1].Kind)

		// The search that produced this response has already finished, so the
		// payload carries no loading flag; the page tracks loading itself.
		assert.NotContains(t, rec.Body.String(), `"loading"`)
	})

	t.Run("missing k falls back to the default", func(t *testing.T) {
		ctrl := &mockController{}
		srv := newTestServer(ctrl, &mockPlatform{})

		body := strings.NewReader(`{"query_text":"capital"}`)
		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search", body))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 5, ctrl.searchTopK)
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := newTestServer(&mockController{}, &mockPlatform{})

		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec,
			httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{`)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleUpload(t *testing.T) {
	t.Run("file forwarded to the controller", func(t *testing.T) {
		ctrl := &mockController{status: "Upload complete: 1 feature embedded."}
		srv := newTestServer(ctrl, &mockPlatform{})

		payload := `{"features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{}}]}`

		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		part, err := writer.CreateFormFile("file", "upload.geojson")
		require.NoError(t, err)
		_, err = part.Write([]byte(payload))
		require.NoError(t, err)
		require.NoError(t, writer.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
		req.Header.Set("Content-Type", writer.FormDataContentType())

		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"Upload complete: 1 feature embedded."}`, rec.Body.String())
		assert.Equal(t, payload, ctrl.uploadBody)
	})

	t.Run("missing file", func(t *testing.T) {
		srv := newTestServer(&mockController{}, &mockPlatform{})

		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/upload", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleStats(t *testing.T) {
	t.Run("stats passthrough", func(t *testing.T) {
		srv := newTestServer(&mockController{}, &mockPlatform{stats: map[string]any{"total_embeddings": 42}})

		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"total_embeddings":42}`, rec.Body.String())
	})

	t.Run("platform unavailable", func(t *testing.T) {
		srv := newTestServer(&mockController{}, &mockPlatform{statsErr: assert.AnError})

		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestHandleHealthz(t *testing.T) {
	t.Run("platform reachable", func(t *testing.T) {
		srv := newTestServer(&mockController{}, &mockPlatform{})

		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())
	})

	t.Run("platform down", func(t *testing.T) {
		srv := newTestServer(&mockController{}, &mockPlatform{probeErr: assert.AnError})

		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestHandleMetrics(t *testing.T) {
	srv := newTestServer(&mockController{}, &mockPlatform{})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
