package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/junglemonkey/wumpus-archiver/internal/metrics"
	"github.com/junglemonkey/wumpus-archiver/internal/store"
)

// TransferBatchSize is Phase 2's page size, per spec.md §4.3.3.
const TransferBatchSize = 1000

// TransferProgress is the Transfer Manager's progress record.
type TransferProgress struct {
	CurrentTable    store.Table `json:"current_table,omitempty"`
	TablesDone      int         `json:"tables_done"`
	TablesTotal     int         `json:"tables_total"`
	RowsTransferred int64       `json:"rows_transferred"`
	TotalRows       int64       `json:"total_rows"`
}

// TransferJob is the Transfer Manager's job record.
type TransferJob struct {
	ID           string           `json:"id"`
	SourceName   string           `json:"source_name"`
	TargetName   string           `json:"target_name"`
	Status       Status           `json:"status"`
	Progress     TransferProgress `json:"progress"`
	StartedAt    time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

func (j TransferJob) copy() TransferJob { return j }

func idleTransferJob() TransferJob { return TransferJob{Status: "idle"} }

// TransferManager migrates every core table from a source backend to a
// target backend, per spec.md §4.3.3. It resolves both stores by name
// from the registry rather than holding them directly so SetActive
// elsewhere cannot invalidate an in-flight transfer's endpoints.
type TransferManager struct {
	runner

	registry *store.Registry
	log      *logrus.Entry

	mu      sync.Mutex
	current *TransferJob

	metrics *metrics.Metrics
}

func NewTransferManager(registry *store.Registry, log *logrus.Entry) *TransferManager {
	return &TransferManager{registry: registry, log: log}
}

// SetMetrics attaches the Prometheus recorder this manager reports job
// lifecycle and per-table row counts to.
func (m *TransferManager) SetMetrics(mt *metrics.Metrics) { m.metrics = mt }

// Start begins migrating sourceName's tables into targetName.
func (m *TransferManager) Start(sourceName, targetName string) (TransferJob, error) {
	cancel, err := m.tryStart()
	if err != nil {
		return TransferJob{}, err
	}

	job := &TransferJob{
		ID:         newJobID(),
		SourceName: sourceName,
		TargetName: targetName,
		Status:     StatusPending,
		Progress:   TransferProgress{TablesTotal: len(store.Tables)},
	}
	m.mu.Lock()
	m.current = job
	m.mu.Unlock()

	go m.run(job, cancel)

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.copy(), nil
}

func (m *TransferManager) run(job *TransferJob, cancel *cancelSignal) {
	defer m.finish()
	defer func() {
		if r := recover(); r != nil {
			m.log.WithField("panic", r).Error("transfer job panicked")
			m.terminate(job, StatusFailed, fmt.Errorf("panic: %v", r))
		}
	}()

	ctx := context.Background()

	m.mu.Lock()
	job.Status = StatusRunning
	job.StartedAt = time.Now()
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordJobStarted("transfer")
	}

	source, err := m.registry.Get(job.SourceName)
	if err != nil {
		m.terminate(job, StatusFailed, fmt.Errorf("resolve source: %w", err))
		return
	}
	target, err := m.registry.Get(job.TargetName)
	if err != nil {
		m.terminate(job, StatusFailed, fmt.Errorf("resolve target: %w", err))
		return
	}

	// Phase 1: count every table in the source and accumulate total_rows.
	var total int64
	for _, t := range store.Tables {
		n, err := source.CountTable(ctx, t)
		if err != nil {
			m.terminate(job, StatusFailed, fmt.Errorf("count %s: %w", t, err))
			return
		}
		total += n
	}
	m.mu.Lock()
	job.Progress.TotalRows = total
	m.mu.Unlock()

	// Phase 2: page each table from the source and merge into the target.
	for _, t := range store.Tables {
		m.mu.Lock()
		job.Progress.CurrentTable = t
		m.mu.Unlock()

		offset := 0
		for {
			if cancel.Cancelled() {
				m.terminate(job, StatusCancelled, nil)
				m.resetTargetSequences(ctx, target, job)
				return
			}

			page, err := source.PageTable(ctx, t, offset, TransferBatchSize)
			if err != nil {
				m.terminate(job, StatusFailed, fmt.Errorf("page %s: %w", t, err))
				m.resetTargetSequences(ctx, target, job)
				return
			}
			if page.Len() == 0 {
				break
			}

			n, err := target.MergeTablePage(ctx, t, page)
			if err != nil {
				m.terminate(job, StatusFailed, fmt.Errorf("merge %s: %w", t, err))
				m.resetTargetSequences(ctx, target, job)
				return
			}

			offset += page.Len()
			m.mu.Lock()
			job.Progress.RowsTransferred += int64(n)
			m.mu.Unlock()
			if m.metrics != nil {
				m.metrics.RecordTransferRows(string(t), n)
			}
		}

		m.mu.Lock()
		job.Progress.TablesDone++
		m.mu.Unlock()
	}

	m.resetTargetSequences(ctx, target, job)
	m.terminate(job, StatusCompleted, nil)
}

// resetTargetSequences runs Phase 3 regardless of whether the transfer
// completed, was cancelled, or failed partway, per spec.md §4.3.3.
func (m *TransferManager) resetTargetSequences(ctx context.Context, target store.Store, job *TransferJob) {
	if err := target.ResetSequences(ctx); err != nil {
		m.log.WithError(err).WithField("target", job.TargetName).Warn("sequence reset failed")
	}
}

func (m *TransferManager) terminate(job *TransferJob, status Status, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	job.Status = status
	job.CompletedAt = &now
	if err != nil {
		job.ErrorMessage = err.Error()
	}

	if m.metrics != nil {
		m.metrics.RecordJobFinished("transfer", string(status), now.Sub(job.StartedAt).Seconds())
	}
}

// Status returns a snapshot of the current job record, or an idle
// sentinel if no transfer has ever started.
func (m *TransferManager) Status() TransferJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return idleTransferJob()
	}
	return m.current.copy()
}

// Cancel requests cancellation of the running transfer.
func (m *TransferManager) Cancel() error { return m.requestCancel() }

// IsBusy reports whether a transfer is pending or running.
func (m *TransferManager) IsBusy() bool { return m.isBusy() }
