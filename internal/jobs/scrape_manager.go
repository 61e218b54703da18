package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/junglemonkey/wumpus-archiver/internal/discord"
	"github.com/junglemonkey/wumpus-archiver/internal/metrics"
	"github.com/junglemonkey/wumpus-archiver/internal/model"
	"github.com/junglemonkey/wumpus-archiver/internal/scraper"
	"github.com/junglemonkey/wumpus-archiver/internal/store"
)

// ErrEmptyChannelIDs is returned by ScrapeManager.Start when the caller
// passes a non-nil but empty channel subset. Per spec.md §9, absent
// means full-guild; an explicit empty list would be a no-op scrape and
// is rejected instead.
var ErrEmptyChannelIDs = errors.New("jobs: channel_ids must be non-empty when provided")

const scrapeHistoryCapacity = 100

// ScrapeProgress mirrors scraper.Progress plus the running warnings
// list and a channel total. ChannelsTotal is set when the job starts,
// from the caller's channel subset; a full-guild scrape leaves it 0.
type ScrapeProgress struct {
	CurrentChannel   model.Snowflake `json:"current_channel,omitempty"`
	ChannelsDone     int             `json:"channels_done"`
	ChannelsTotal    int             `json:"channels_total"`
	MessagesScraped  int             `json:"messages_scraped"`
	AttachmentsFound int             `json:"attachments_found"`
	Errors           []string        `json:"errors"`
}

// ScrapeJob is the Scrape Manager's job record, per spec.md §4.3.1.
type ScrapeJob struct {
	ID              string            `json:"id"`
	GuildID         model.Snowflake   `json:"guild_id"`
	ChannelIDs      []model.Snowflake `json:"channel_ids,omitempty"`
	Scope           string            `json:"scope"`
	Status          Status            `json:"status"`
	Progress        ScrapeProgress    `json:"progress"`
	StartedAt       time.Time         `json:"started_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	DurationSeconds float64           `json:"duration_seconds,omitempty"`
	Result          *scraper.Summary  `json:"result,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
}

func (j ScrapeJob) copy() ScrapeJob {
	out := j
	out.ChannelIDs = append([]model.Snowflake(nil), j.ChannelIDs...)
	out.Progress.Errors = append([]string(nil), j.Progress.Errors...)
	return out
}

// ScrapeManager drives the Scraper as a background task, per spec.md
// §4.3.1: it holds a reference to the Data Source Registry rather than
// a single store, resolving the active one when each task begins.
type ScrapeManager struct {
	runner

	registry  *store.Registry
	scraper   *scraper.Scraper
	newClient func() discord.Client
	token     string
	log       *logrus.Entry

	mu      sync.Mutex
	current *ScrapeJob

	history *boundedHistory[ScrapeJob]

	metrics *metrics.Metrics

	onCompleted func(ScrapeJob)
}

// SetMetrics attaches the Prometheus recorder this manager reports job
// lifecycle and scrape throughput counters to. Nil (the zero value) is
// a valid no-op state, for callers that don't run a metrics server.
func (m *ScrapeManager) SetMetrics(mt *metrics.Metrics) { m.metrics = mt }

// SetOnCompleted registers a callback fired, outside the manager's
// lock, after a scrape job reaches StatusCompleted. cmd/server uses
// this to auto-trigger the Download Manager when config enables it;
// nil (the zero value) is a valid no-op state.
func (m *ScrapeManager) SetOnCompleted(fn func(ScrapeJob)) { m.onCompleted = fn }

func NewScrapeManager(registry *store.Registry, sc *scraper.Scraper, newClient func() discord.Client, token string, log *logrus.Entry) *ScrapeManager {
	return &ScrapeManager{
		registry:  registry,
		scraper:   sc,
		newClient: newClient,
		token:     token,
		log:       log,
		history:   newBoundedHistory[ScrapeJob](scrapeHistoryCapacity),
	}
}

// Start begins a scrape of guildID, or the caller-supplied channel
// subset when channelIDs is non-nil. Fails with ErrAlreadyBusy if a
// scrape is already pending or running, and does not modify the
// current job record in that case.
func (m *ScrapeManager) Start(guildID model.Snowflake, channelIDs []model.Snowflake) (ScrapeJob, error) {
	if channelIDs != nil && len(channelIDs) == 0 {
		return ScrapeJob{}, ErrEmptyChannelIDs
	}

	cancel, err := m.tryStart()
	if err != nil {
		return ScrapeJob{}, err
	}

	scope := "guild"
	if channelIDs != nil {
		scope = "channels"
	}
	job := &ScrapeJob{
		ID:         newJobID(),
		GuildID:    guildID,
		ChannelIDs: channelIDs,
		Scope:      scope,
		Status:     StatusPending,
		Progress:   ScrapeProgress{ChannelsTotal: len(channelIDs)},
	}

	m.mu.Lock()
	m.current = job
	m.mu.Unlock()

	go m.run(job, cancel)

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.copy(), nil
}

func (m *ScrapeManager) run(job *ScrapeJob, cancel *cancelSignal) {
	defer m.finish()
	defer func() {
		if r := recover(); r != nil {
			m.log.WithField("panic", r).Error("scrape job panicked")
			m.terminate(job, StatusFailed, nil, fmt.Errorf("panic: %v", r))
		}
	}()

	ctx := context.Background()

	m.mu.Lock()
	job.Status = StatusRunning
	job.StartedAt = time.Now()
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordJobStarted("scrape")
	}

	st, err := m.registry.GetActive()
	if err != nil {
		m.terminate(job, StatusFailed, nil, err)
		return
	}

	client := m.newClient()
	if err := client.Login(ctx, m.token); err != nil {
		m.terminate(job, StatusFailed, nil, err)
		return
	}
	defer client.Close()

	onProgress := func(p scraper.Progress) {
		m.mu.Lock()
		job.Progress.CurrentChannel = p.CurrentChannel
		job.Progress.ChannelsDone = p.ChannelsDone
		job.Progress.MessagesScraped = p.MessagesScraped
		job.Progress.AttachmentsFound = p.AttachmentsFound
		m.mu.Unlock()
	}

	sum, err := m.scraper.Run(ctx, client, st, job.GuildID, job.ChannelIDs, onProgress, cancel.Cancelled)

	switch {
	case errors.Is(err, scraper.ErrCancelled):
		m.terminate(job, StatusCancelled, &sum, nil)
	case err != nil:
		m.terminate(job, StatusFailed, &sum, err)
	default:
		m.terminate(job, StatusCompleted, &sum, nil)
	}
}

func (m *ScrapeManager) terminate(job *ScrapeJob, status Status, sum *scraper.Summary, err error) {
	m.mu.Lock()

	now := time.Now()
	job.Status = status
	job.CompletedAt = &now
	job.DurationSeconds = now.Sub(job.StartedAt).Seconds()
	if sum != nil {
		job.Result = sum
		job.Progress.Errors = sum.Errors
	}
	if err != nil {
		job.ErrorMessage = err.Error()
	}

	m.history.push(job.copy())

	if m.metrics != nil {
		m.metrics.RecordJobFinished("scrape", string(status), job.DurationSeconds)
		if sum != nil {
			m.metrics.RecordScrapeBatch(sum.MessagesAdded, sum.AttachmentsAdded, sum.ReactionsRejected)
		}
	}

	onCompleted := m.onCompleted
	result := job.copy()
	m.mu.Unlock()

	if status == StatusCompleted && onCompleted != nil {
		onCompleted(result)
	}
}

// idleScrapeJob is the sentinel Status returns when no scrape has ever run.
func idleScrapeJob() ScrapeJob { return ScrapeJob{Status: "idle"} }

// Status returns a snapshot of the current job record, or an idle
// sentinel if no scrape has ever been started.
func (m *ScrapeManager) Status() ScrapeJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return idleScrapeJob()
	}
	return m.current.copy()
}

// Cancel requests cancellation of the running scrape. Idempotent;
// returns ErrNoJob if nothing is running.
func (m *ScrapeManager) Cancel() error {
	return m.requestCancel()
}

// History returns past scrape job records in reverse-chronological
// order, bounded at scrapeHistoryCapacity.
func (m *ScrapeManager) History() []ScrapeJob {
	return m.history.list()
}

// IsBusy reports whether a scrape is pending or running.
func (m *ScrapeManager) IsBusy() bool { return m.isBusy() }

// ListLiveChannels instantiates a throwaway HTTP-only Discord client,
// logs in, fetches guildID's channel list, and closes the client. Per
// spec.md §4.3.1 this degrades to nil on any failure whatsoever —
// including client construction — so callers always have a safe
// fallback to the persisted channel list.
func (m *ScrapeManager) ListLiveChannels(ctx context.Context, guildID model.Snowflake) []discord.ChannelInfo {
	client := m.safeNewClient()
	if client == nil {
		return nil
	}
	defer client.Close()

	if err := client.Login(ctx, m.token); err != nil {
		m.log.WithError(err).Warn("live channel listing: login failed, degrading to nil")
		return nil
	}
	channels, err := client.GetGuildChannels(ctx, guildID)
	if err != nil {
		m.log.WithError(err).Warn("live channel listing: fetch failed, degrading to nil")
		return nil
	}
	return channels
}

func (m *ScrapeManager) safeNewClient() (client discord.Client) {
	defer func() {
		if r := recover(); r != nil {
			m.log.WithField("panic", r).Warn("live channel listing: client construction panicked, degrading to nil")
			client = nil
		}
	}()
	return m.newClient()
}
