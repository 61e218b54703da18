package jobs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/junglemonkey/wumpus-archiver/internal/metrics"
	"github.com/junglemonkey/wumpus-archiver/internal/model"
	"github.com/junglemonkey/wumpus-archiver/internal/store"
)

// DownloadConfig tunes the Download Manager's pacing, per spec.md
// §4.3.2 / §5.
type DownloadConfig struct {
	BasePath    string
	Concurrency int64
	MaxRetries  int
	RetryDelay  time.Duration
	BatchSize   int
}

// DefaultDownloadConfig returns spec.md's defaults: concurrency 4,
// 3 attempts per attachment with linear backoff, batch size 1000.
func DefaultDownloadConfig(basePath string) DownloadConfig {
	return DownloadConfig{
		BasePath:    basePath,
		Concurrency: 4,
		MaxRetries:  3,
		RetryDelay:  time.Second,
		BatchSize:   1000,
	}
}

// DownloadProgress is the Download Manager's progress record.
type DownloadProgress struct {
	TotalImages    int             `json:"total_images"`
	Downloaded     int             `json:"downloaded"`
	Failed         int             `json:"failed"`
	Skipped        int             `json:"skipped"`
	CurrentChannel model.Snowflake `json:"current_channel,omitempty"`
}

// DownloadJob is the Download Manager's job record.
type DownloadJob struct {
	ID           string           `json:"id"`
	Status       Status           `json:"status"`
	Progress     DownloadProgress `json:"progress"`
	StartedAt    time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

func (j DownloadJob) copy() DownloadJob { return j }

func idleDownloadJob() DownloadJob { return DownloadJob{Status: "idle"} }

// DownloadManager drives concurrent image-attachment downloads against
// the registry's active store, per spec.md §4.3.2.
type DownloadManager struct {
	runner

	registry     *store.Registry
	cfg          DownloadConfig
	client       *http.Client
	retryLimiter *rate.Limiter
	log          *logrus.Entry

	mu      sync.Mutex
	current *DownloadJob

	metrics *metrics.Metrics
}

// SetMetrics attaches the Prometheus recorder this manager reports job
// lifecycle and per-attachment download outcomes to.
func (m *DownloadManager) SetMetrics(mt *metrics.Metrics) { m.metrics = mt }

func NewDownloadManager(registry *store.Registry, cfg DownloadConfig, log *logrus.Entry) *DownloadManager {
	burst := cfg.MaxRetries
	if burst < 1 {
		burst = 1
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Millisecond
	}
	return &DownloadManager{
		registry:     registry,
		cfg:          cfg,
		client:       &http.Client{},
		retryLimiter: rate.NewLimiter(rate.Every(retryDelay), burst),
		log:          log,
	}
}

// Start begins a download pass over every download_state=pending image
// attachment in the active store.
func (m *DownloadManager) Start() (DownloadJob, error) {
	cancel, err := m.tryStart()
	if err != nil {
		return DownloadJob{}, err
	}

	job := &DownloadJob{ID: newJobID(), Status: StatusPending}
	m.mu.Lock()
	m.current = job
	m.mu.Unlock()

	go m.run(job, cancel)

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.copy(), nil
}

func (m *DownloadManager) run(job *DownloadJob, cancel *cancelSignal) {
	defer m.finish()
	defer func() {
		if r := recover(); r != nil {
			m.log.WithField("panic", r).Error("download job panicked")
			m.terminate(job, StatusFailed, fmt.Errorf("panic: %v", r))
		}
	}()

	ctx := context.Background()

	m.setRunning(job)
	if m.metrics != nil {
		m.metrics.RecordJobStarted("download")
	}

	st, err := m.registry.GetActive()
	if err != nil {
		m.terminate(job, StatusFailed, err)
		return
	}

	sem := semaphore.NewWeighted(m.cfg.Concurrency)
	var wg sync.WaitGroup

	offset := 0
	for {
		if cancel.Cancelled() {
			m.terminate(job, StatusCancelled, nil)
			wg.Wait()
			return
		}

		page, total, err := st.ListPendingImageAttachments(ctx, offset, m.cfg.BatchSize)
		if err != nil {
			m.terminate(job, StatusFailed, fmt.Errorf("list pending attachments: %w", err))
			wg.Wait()
			return
		}
		m.mu.Lock()
		job.Progress.TotalImages = total
		m.mu.Unlock()

		if len(page) == 0 {
			break
		}

		for _, pa := range page {
			if cancel.Cancelled() {
				break
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
			wg.Add(1)
			go func(pa store.PendingAttachment) {
				defer sem.Release(1)
				defer wg.Done()
				m.downloadOne(ctx, st, pa, job)
			}(pa)
		}

		offset += len(page)
	}

	wg.Wait()
	m.terminate(job, StatusCompleted, nil)
}

func (m *DownloadManager) setRunning(job *DownloadJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Status = StatusRunning
	job.StartedAt = time.Now()
}

func (m *DownloadManager) terminate(job *DownloadJob, status Status, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	job.Status = status
	job.CompletedAt = &now
	if err != nil {
		job.ErrorMessage = err.Error()
	}

	if m.metrics != nil {
		m.metrics.RecordJobFinished("download", string(status), now.Sub(job.StartedAt).Seconds())
	}
}

// downloadOne fetches one attachment, making up to cfg.MaxRetries
// attempts in total with linear backoff, and records the terminal
// download_state.
func (m *DownloadManager) downloadOne(ctx context.Context, st store.Store, pa store.PendingAttachment, job *DownloadJob) {
	m.mu.Lock()
	job.Progress.CurrentChannel = pa.ChannelID
	m.mu.Unlock()

	a := pa.Attachment
	if !model.IsRecognizedImage(a.ContentType, a.Filename) {
		m.mu.Lock()
		job.Progress.Skipped++
		m.mu.Unlock()
		_ = st.SetAttachmentDownloadState(ctx, a.ID, model.DownloadSkipped, nil)
		if m.metrics != nil {
			m.metrics.RecordDownloadOutcome("skipped")
		}
		return
	}

	ext := filepath.Ext(a.Filename)
	localPath := filepath.Join(m.cfg.BasePath, fmt.Sprintf("%d", pa.ChannelID), fmt.Sprintf("%d%s", a.ID, ext))

	var lastErr error
	for attempt := 0; attempt < m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := m.retryLimiter.WaitN(ctx, attempt); err != nil {
				lastErr = err
				break
			}
		}
		if err := m.fetch(ctx, a.RemoteURL, localPath); err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		break
	}

	if lastErr != nil {
		m.log.WithError(lastErr).WithField("attachment_id", a.ID).Warn("attachment download failed")
		m.mu.Lock()
		job.Progress.Failed++
		m.mu.Unlock()
		_ = st.SetAttachmentDownloadState(ctx, a.ID, model.DownloadFailed, nil)
		if m.metrics != nil {
			m.metrics.RecordDownloadOutcome("failed")
		}
		return
	}

	m.mu.Lock()
	job.Progress.Downloaded++
	m.mu.Unlock()
	_ = st.SetAttachmentDownloadState(ctx, a.ID, model.DownloadDownloaded, &localPath)
	if m.metrics != nil {
		m.metrics.RecordDownloadOutcome("downloaded")
	}
}

func (m *DownloadManager) fetch(ctx context.Context, remoteURL, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: unexpected status %s for %s", resp.Status, remoteURL)
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("download: mkdir: %w", err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("download: create: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = os.Remove(localPath)
		return fmt.Errorf("download: write: %w", err)
	}
	return nil
}

// Status returns a snapshot of the current job record, or an idle
// sentinel if no download pass has ever started.
func (m *DownloadManager) Status() DownloadJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return idleDownloadJob()
	}
	return m.current.copy()
}

// Cancel requests cancellation of the running download pass.
func (m *DownloadManager) Cancel() error { return m.requestCancel() }

// IsBusy reports whether a download pass is pending or running.
func (m *DownloadManager) IsBusy() bool { return m.isBusy() }
