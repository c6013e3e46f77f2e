package server

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"io"
	"log/slog"
	"net/http"

	"github.com/UnknownOlympus/geomap/internal/mapview"
	"github.com/UnknownOlympus/geomap/internal/models"
)

//go:embed web
var webFS embed.FS

// Controller is the slice of the application controller the handlers need.
type Controller interface {
	Search(ctx context.Context, query string, topK int) []models.SearchResult
	Upload(ctx context.Context, payload io.Reader) string
	Snapshot() ([]models.CityFeature, []models.SearchResult, bool)
}

// Platform is the slice of the platform client used for liveness and stats.
type Platform interface {
	ListModels(ctx context.Context) error
	Stats(ctx context.Context) (map[string]any, error)
}

// Server exposes the demo page and its JSON API.
type Server struct {
	log         *slog.Logger
	app         Controller
	platform    Platform
	metricsH    http.Handler
	defaultTopK int
	page        *template.Template
}

// searchRequest is the body accepted by the search endpoint. The shape matches
// what the platform itself accepts so the page can stay format-agnostic.
type searchRequest struct {
	QueryText string `json:"query_text"`
	K         int    `json:"k"`
}

// resultView is one row of the ranked results list.
type resultView struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Similarity    float64 `json:"similarity"`
	SimilarityPct string  `json:"similarity_pct"`
	Description   string  `json:"description,omitempty"`
}

// searchResponse is the payload the page redraws from: the ranked list and the
// complete, re-derived marker set. The page tracks its own loading state; by
// the time this response exists the search that produced it has finished.
type searchResponse struct {
	Results []resultView     `json:"results"`
	Markers []mapview.Marker `json:"markers"`
}

// NewServer creates the web server for the demo client.
func NewServer(
	log *slog.Logger,
	app Controller,
	platformClient Platform,
	metricsHandler http.Handler,
	defaultTopK int,
) *Server {
	page := template.Must(template.ParseFS(webFS, "web/index.html"))

	return &Server{
		log:         log,
		app:         app,
		platform:    platformClient,
		metricsH:    metricsHandler,
		defaultTopK: defaultTopK,
		page:        page,
	}
}

// Routes builds the HTTP handler for all endpoints.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/cities", s.handleCities)
	mux.HandleFunc("POST /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", s.metricsH)

	return mux
}

// handleIndex renders the map page with the current city markers inlined, so
// the static layer appears without a second round trip.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	cities, results, _ := s.app.Snapshot()

	markers, err := json.Marshal(mapview.Markers(cities, results))
	if err != nil {
		s.log.ErrorContext(r.Context(), "failed to encode initial markers", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	data := struct {
		InitialMarkers template.JS
		DefaultTopK    int
	}{
		InitialMarkers: template.JS(markers),
		DefaultTopK:    s.defaultTopK,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err = s.page.Execute(w, data); err != nil {
		s.log.ErrorContext(r.Context(), "failed to render page", "error", err)
	}
}

// handleCities serves the static marker layer.
func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	cities, _, _ := s.app.Snapshot()
	s.writeJSON(r.Context(), w, mapview.Markers(cities, nil))
}

// handleSearch runs one search and answers with the ranked list plus the fully
// re-derived marker set. Failures upstream surface as an empty list with a 200;
// the page cannot tell "failed" from "no matches".
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.K <= 0 {
		req.K = s.defaultTopK
	}

	results := s.app.Search(r.Context(), req.QueryText, req.K)
	cities, _, _ := s.app.Snapshot()

	views := make([]resultView, 0, len(results))
	for i := range results {
		views = append(views, resultView{
			ID:            results[i].ID,
			Name:          results[i].Name,
			Similarity:    results[i].Similarity,
			SimilarityPct: mapview.FormatSimilarity(results[i].Similarity),
			Description:   results[i].Description(),
		})
	}

	s.writeJSON(r.Context(), w, searchResponse{
		Results: views,
		Markers: mapview.Markers(cities, results),
	})
}

// handleUpload accepts a multipart upload, hands the file to the controller,
// and reports the outcome as a status string. The response is always 200 when
// a file was present; the status text is the whole verdict.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "no file selected", http.StatusBadRequest)
		return
	}
	defer file.Close()

	status := s.app.Upload(r.Context(), file)
	s.writeJSON(r.Context(), w, map[string]string{"status": status})
}

// handleStats passes the platform statistics document through.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.platform.Stats(r.Context())
	if err != nil {
		s.log.DebugContext(r.Context(), "stats fetch failed", "error", err)
		http.Error(w, "platform unavailable", http.StatusBadGateway)
		return
	}
	s.writeJSON(r.Context(), w, stats)
}

// handleHealthz reports whether the embeddings platform answers the probe.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.log.DebugContext(r.Context(), "Performing health checks...")

	status, body := http.StatusOK, "OK"
	if err := s.platform.ListModels(r.Context()); err != nil {
		status, body = http.StatusServiceUnavailable, "platform probe failed"
	}
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		s.log.ErrorContext(r.Context(), "failed to write reply", "error", err)
	}
}

func (s *Server) writeJSON(ctx context.Context, w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.ErrorContext(ctx, "failed to write reply", "error", err)
	}
}
