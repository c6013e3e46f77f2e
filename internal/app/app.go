package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/UnknownOlympus/geomap/internal/metrics"
	"github.com/UnknownOlympus/geomap/internal/models"
	"github.com/UnknownOlympus/geomap/internal/platform"
	"github.com/paulmach/orb/geojson"
)

// Upload status messages shown to the user. The text is the whole outcome
// report; upload errors are never surfaced any other way.
const (
	UploadStatusInvalid = "Invalid file: could not parse a feature collection."
	UploadStatusFailed  = "Upload failed: the embeddings platform returned an error."
)

// PlatformClient is the slice of the platform API the controller needs.
// Declared here so tests can substitute a mock.
type PlatformClient interface {
	ListModels(ctx context.Context) error
	SemanticSearch(ctx context.Context, query string, topK int) ([]models.SearchResult, error)
	EmbedFeatures(ctx context.Context, features []*geojson.Feature) (*platform.EmbedResponse, error)
}

// DatasetLoader loads the static city dataset.
type DatasetLoader interface {
	Load(path string) ([]models.CityFeature, error)
}

// App owns the shared client state: the immutable city list, the latest search
// results, and the loading flag. Handlers and the page are views over it; they
// never talk to the platform directly for search or upload.
type App struct {
	log         *slog.Logger     // Logger for controller activity
	client      PlatformClient   // Client for the remote embeddings platform
	loader      DatasetLoader    // Loader for the startup city dataset
	datasetPath string           // Path of the startup city dataset
	defaultTopK int              // Result count used when a search does not specify one
	metrics     *metrics.Metrics // Metrics for tracking searches and uploads

	mu        sync.Mutex            // mu guards everything below.
	cities    []models.CityFeature  // cities is immutable once Bootstrap has run.
	results   []models.SearchResult // results is the outcome of the newest applied search.
	inFlight  int                   // inFlight counts searches currently running.
	searchSeq uint64                // searchSeq orders searches so stale completions lose.
}

// New creates the controller.
func New(
	log *slog.Logger,
	client PlatformClient,
	loader DatasetLoader,
	datasetPath string,
	defaultTopK int,
	appMetrics *metrics.Metrics,
) *App {
	return &App{
		log:         log,
		client:      client,
		loader:      loader,
		datasetPath: datasetPath,
		defaultTopK: defaultTopK,
		metrics:     appMetrics,
	}
}

// Bootstrap performs the two startup fetches: the model-listing probe, whose
// result is discarded and whose failure is ignored, and the city dataset load,
// which degrades to an empty list on any failure. Neither outcome is surfaced
// to the user.
func (a *App) Bootstrap(ctx context.Context) {
	if err := a.client.ListModels(ctx); err != nil {
		a.log.DebugContext(ctx, "Platform probe failed, continuing anyway", "error", err)
	}

	cities, err := a.loader.Load(a.datasetPath)
	if err != nil {
		a.log.WarnContext(ctx, "Could not load city dataset, starting with an empty map", "error", err)
		cities = []models.CityFeature{}
	}

	a.mu.Lock()
	a.cities = cities
	a.mu.Unlock()
}

// Search runs one semantic search against the platform and returns the results
// now held by the controller. An empty query clears the results immediately
// without a network call. Any platform or decode failure clears them as well;
// a failed search is indistinguishable from one with no matches.
//
// Searches are ordered by a sequence number taken at issue time. A completion
// belonging to a superseded search does not touch shared state, so a slow early
// response can never overwrite the outcome of a later one. The loading flag is
// dropped on every path.
func (a *App) Search(ctx context.Context, query string, topK int) []models.SearchResult {
	if query == "" {
		a.mu.Lock()
		// The clear supersedes any search still in flight.
		a.searchSeq++
		a.results = nil
		out := a.snapshotResultsLocked()
		a.mu.Unlock()
		return out
	}

	if topK <= 0 {
		topK = a.defaultTopK
	}

	a.mu.Lock()
	a.searchSeq++
	seq := a.searchSeq
	a.inFlight++
	a.mu.Unlock()

	a.metrics.ActiveSearches.Inc()
	defer func() {
		a.mu.Lock()
		a.inFlight--
		a.mu.Unlock()
		a.metrics.ActiveSearches.Dec()
	}()

	startTime := time.Now()
	results, err := a.client.SemanticSearch(ctx, query, topK)
	a.metrics.PlatformSeconds.WithLabelValues("search").Observe(time.Since(startTime).Seconds())

	a.mu.Lock()
	defer a.mu.Unlock()

	if seq != a.searchSeq {
		a.log.DebugContext(ctx, "Discarding stale search completion", "query", query, "seq", seq)
		a.metrics.SearchesTotal.WithLabelValues("stale").Inc()
		return a.snapshotResultsLocked()
	}

	if err != nil {
		a.log.ErrorContext(ctx, "Search failed, clearing results", "query", query, "error", err)
		a.metrics.SearchesTotal.WithLabelValues("failure").Inc()
		a.results = nil
		return a.snapshotResultsLocked()
	}

	a.metrics.SearchesTotal.WithLabelValues("success").Inc()
	a.results = results

	return a.snapshotResultsLocked()
}

// Upload parses the payload as a feature collection and forwards its features
// to the embedding endpoint in exactly one request. The returned string is the
// complete user-facing outcome. Only a payload that cannot be parsed produces
// the invalid-file status and no network call; the features array is forwarded
// exactly as parsed, even when it is empty.
// Overlapping uploads are not coordinated; each reports independently.
func (a *App) Upload(ctx context.Context, payload io.Reader) string {
	var doc struct {
		Features []*geojson.Feature `json:"features"`
	}

	dec := json.NewDecoder(payload)
	if err := dec.Decode(&doc); err != nil {
		a.log.DebugContext(ctx, "Rejecting unparsable upload", "error", err)
		a.metrics.UploadsTotal.WithLabelValues("invalid").Inc()
		return UploadStatusInvalid
	}
	// The file must be a single JSON document; trailing content means it was
	// never valid JSON to begin with.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		a.log.DebugContext(ctx, "Rejecting upload with trailing content")
		a.metrics.UploadsTotal.WithLabelValues("invalid").Inc()
		return UploadStatusInvalid
	}

	startTime := time.Now()
	resp, err := a.client.EmbedFeatures(ctx, doc.Features)
	a.metrics.PlatformSeconds.WithLabelValues("embed").Observe(time.Since(startTime).Seconds())

	if err != nil {
		a.log.ErrorContext(ctx, "Upload failed", "features", len(doc.Features), "error", err)
		a.metrics.UploadsTotal.WithLabelValues("failure").Inc()
		return UploadStatusFailed
	}

	a.metrics.UploadsTotal.WithLabelValues("success").Inc()
	a.log.InfoContext(ctx, "Upload finished", "features", resp.FeatureCount)

	return UploadStatusSuccess(resp.FeatureCount)
}

// UploadStatusSuccess renders the success status for an upload of count features.
func UploadStatusSuccess(count int) string {
	if count == 1 {
		return "Upload complete: 1 feature embedded."
	}
	return fmt.Sprintf("Upload complete: %d features embedded.", count)
}

// Snapshot returns copies of the shared state: the city list, the latest
// results, and whether any search is in flight.
func (a *App) Snapshot() ([]models.CityFeature, []models.SearchResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cities := make([]models.CityFeature, len(a.cities))
	copy(cities, a.cities)

	return cities, a.snapshotResultsLocked(), a.inFlight > 0
}

// snapshotResultsLocked copies the result slice. Callers must hold mu.
func (a *App) snapshotResultsLocked() []models.SearchResult {
	out := make([]models.SearchResult, len(a.results))
	copy(out, a.results)
	return out
}
