// Package httpapi is the archiver's control-plane HTTP surface
// (spec.md §6): the scrape/download/transfer job endpoints and the
// data source registry endpoint, consumed by the UI and CLI. It never
// mutates core state directly — every handler delegates to a job
// manager, the registry, or the analyzer.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/junglemonkey/wumpus-archiver/internal/analyzer"
	"github.com/junglemonkey/wumpus-archiver/internal/jobs"
	"github.com/junglemonkey/wumpus-archiver/internal/metrics"
	"github.com/junglemonkey/wumpus-archiver/internal/store"
)

// Server wires the job managers and registry this API surface reads
// and writes through. It holds no state of its own.
type Server struct {
	registry *store.Registry
	scrape   *jobs.ScrapeManager
	download *jobs.DownloadManager
	transfer *jobs.TransferManager
	token    string
	log      *logrus.Entry
	metrics  *metrics.Metrics
}

// SetMetrics attaches the Prometheus recorder used to count Analyzer
// invocations and exposes /metrics on the router once set.
func (s *Server) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// New constructs the control-plane HTTP surface. token is the Discord
// credential surfaced (as a presence boolean only) on /scrape/status.
func New(registry *store.Registry, scrape *jobs.ScrapeManager, download *jobs.DownloadManager, transfer *jobs.TransferManager, token string, log *logrus.Entry) *Server {
	return &Server{registry: registry, scrape: scrape, download: download, transfer: transfer, token: token, log: log}
}

// Router builds the chi mux for every endpoint spec.md §6 names.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Route("/scrape", func(r chi.Router) {
		r.Post("/start", s.handleScrapeStart)
		r.Get("/status", s.handleScrapeStatus)
		r.Post("/cancel", s.handleScrapeCancel)
		r.Get("/history", s.handleScrapeHistory)
		r.Get("/guilds/{id}/channels", s.handleScrapeChannels)
		r.Get("/analyze/{id}", s.handleAnalyze)
	})

	r.Route("/downloads", func(r chi.Router) {
		r.Post("/start", s.handleDownloadsStart)
		r.Get("/job", s.handleDownloadsJob)
		r.Post("/cancel", s.handleDownloadsCancel)
	})

	r.Route("/transfer", func(r chi.Router) {
		r.Post("/start", s.handleTransferStart)
		r.Get("/status", s.handleTransferStatus)
		r.Post("/cancel", s.handleTransferCancel)
	})

	r.Get("/datasource", s.handleDatasourceGet)
	r.Put("/datasource", s.handleDatasourcePut)

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// analyzeFor is a small seam so handleAnalyze can be tested without a
// live Discord credential: it always attempts the Scrape Manager's
// live-channel-listing helper and falls back to the persisted-only
// path on nil, per spec.md §4.5.
func (s *Server) analyzeFor(r *http.Request, guildIDStr string) (analyzer.Report, error) {
	guildID, err := parseSnowflake(guildIDStr)
	if err != nil {
		return analyzer.Report{}, err
	}
	st, err := s.registry.GetActive()
	if err != nil {
		return analyzer.Report{}, err
	}
	live := s.scrape.ListLiveChannels(r.Context(), guildID)
	report, err := analyzer.Analyze(r.Context(), st, guildID, live)
	if err == nil && s.metrics != nil {
		s.metrics.RecordAnalyzerRun()
	}
	return report, err
}
