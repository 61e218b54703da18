// Package metrics exposes the archiver's Prometheus instrumentation,
// generalizing the teacher's per-session/broadcast metric set to the
// job-manager domain: jobs started/completed/failed by kind, scrape
// throughput, transfer throughput, and analyzer call volume.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the archiver registers.
type Metrics struct {
	jobsStarted   *prometheus.CounterVec
	jobsCompleted *prometheus.CounterVec
	jobsFailed    *prometheus.CounterVec
	jobsCancelled *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec

	messagesScraped    prometheus.Counter
	attachmentsScraped prometheus.Counter
	reactionsRejected  prometheus.Counter

	attachmentsDownloaded prometheus.Counter
	attachmentsFailed     prometheus.Counter
	attachmentsSkipped    prometheus.Counter

	transferRowsCopied *prometheus.CounterVec

	analyzerRuns prometheus.Counter
}

// New registers and returns a fresh Metrics instance.
func New() *Metrics {
	return &Metrics{
		jobsStarted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wumpus_jobs_started_total",
				Help: "Total number of jobs started, by kind (scrape, download, transfer)",
			},
			[]string{"kind"},
		),
		jobsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wumpus_jobs_completed_total",
				Help: "Total number of jobs that completed successfully, by kind",
			},
			[]string{"kind"},
		),
		jobsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wumpus_jobs_failed_total",
				Help: "Total number of jobs that failed, by kind",
			},
			[]string{"kind"},
		),
		jobsCancelled: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wumpus_jobs_cancelled_total",
				Help: "Total number of jobs that were cancelled, by kind",
			},
			[]string{"kind"},
		),
		jobDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wumpus_job_duration_seconds",
				Help:    "Job run time in seconds, by kind",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		messagesScraped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wumpus_messages_scraped_total",
				Help: "Total number of messages written by the scraper",
			},
		),
		attachmentsScraped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wumpus_attachments_scraped_total",
				Help: "Total number of attachment rows written by the scraper",
			},
		),
		reactionsRejected: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wumpus_reactions_rejected_total",
				Help: "Total number of malformed reactions skipped during a scrape",
			},
		),
		attachmentsDownloaded: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wumpus_attachments_downloaded_total",
				Help: "Total number of attachments successfully downloaded",
			},
		),
		attachmentsFailed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wumpus_attachments_download_failed_total",
				Help: "Total number of attachments that failed to download after retries",
			},
		),
		attachmentsSkipped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wumpus_attachments_download_skipped_total",
				Help: "Total number of pending attachments skipped as non-image",
			},
		),
		transferRowsCopied: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wumpus_transfer_rows_copied_total",
				Help: "Total number of rows copied by the Transfer Manager, by table",
			},
			[]string{"table"},
		),
		analyzerRuns: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wumpus_analyzer_runs_total",
				Help: "Total number of Analyzer invocations",
			},
		),
	}
}

// RecordJobStarted increments the started counter for a job kind
// ("scrape", "download", "transfer").
func (m *Metrics) RecordJobStarted(kind string) { m.jobsStarted.WithLabelValues(kind).Inc() }

// RecordJobFinished increments the appropriate terminal counter and
// observes the job's duration, by kind.
func (m *Metrics) RecordJobFinished(kind, status string, durationSeconds float64) {
	switch status {
	case "completed":
		m.jobsCompleted.WithLabelValues(kind).Inc()
	case "failed":
		m.jobsFailed.WithLabelValues(kind).Inc()
	case "cancelled":
		m.jobsCancelled.WithLabelValues(kind).Inc()
	}
	m.jobDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordScrapeBatch adds batch-level scrape counters.
func (m *Metrics) RecordScrapeBatch(messages, attachments, rejectedReactions int) {
	m.messagesScraped.Add(float64(messages))
	m.attachmentsScraped.Add(float64(attachments))
	m.reactionsRejected.Add(float64(rejectedReactions))
}

// RecordDownloadOutcome increments the matching per-attachment download counter.
func (m *Metrics) RecordDownloadOutcome(outcome string) {
	switch outcome {
	case "downloaded":
		m.attachmentsDownloaded.Inc()
	case "failed":
		m.attachmentsFailed.Inc()
	case "skipped":
		m.attachmentsSkipped.Inc()
	}
}

// RecordTransferRows adds rows copied for one table during a transfer batch.
func (m *Metrics) RecordTransferRows(table string, rows int) {
	m.transferRowsCopied.WithLabelValues(table).Add(float64(rows))
}

// RecordAnalyzerRun increments the Analyzer invocation counter.
func (m *Metrics) RecordAnalyzerRun() { m.analyzerRuns.Inc() }
