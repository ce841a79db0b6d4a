// Package download runs batches of volume transfers: bounded worker
// concurrency, per-item retry for truncated payloads, quota detection, and
// skip logic for volumes that are already on disk.
package download

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kmoe-dl/kmoe/internal/catalog"
	"github.com/kmoe-dl/kmoe/internal/journal"
	"github.com/kmoe-dl/kmoe/internal/library"
	"github.com/kmoe-dl/kmoe/internal/mirror"
)

// Status is the outcome of one volume task.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusQuota   Status = "quota"
)

// TaskResult is the outcome of one volume in a batch.
type TaskResult struct {
	VolID  string
	Title  string
	Status Status
	Bytes  int64
	Err    error
}

// BatchResult holds the per-volume outcomes of a batch, in request order.
type BatchResult struct {
	BatchID string
	Results []TaskResult
}

// Counts tallies the batch outcomes.
func (b BatchResult) Counts() (succeeded, failed, skipped, quota int) {
	for _, r := range b.Results {
		switch r.Status {
		case StatusSuccess:
			succeeded++
		case StatusSkipped:
			skipped++
		case StatusQuota:
			quota++
		default:
			failed++
		}
	}
	return
}

// Options configures a Manager.
type Options struct {
	Router  *mirror.Router
	Journal *journal.Store // optional
	Logger  *slog.Logger
	Workers int // concurrent transfers, default 2
	Retries int // attempts per volume for truncated payloads, default 3

	// Persist, when set, is called with the updated entry after every
	// successful volume, so progress survives a crash mid-batch. Calls are
	// serialized.
	Persist func(entry library.Entry) error

	// OnResult, when set, is called from worker goroutines as each volume
	// task finishes. It must be safe for concurrent use.
	OnResult func(result TaskResult)
}

// Manager executes download batches. It owns no library state of its own;
// the caller hands in the current entry and receives the updated one back.
type Manager struct {
	router   *mirror.Router
	journal  *journal.Store
	log      *slog.Logger
	workers  int
	retries  int
	persist  func(entry library.Entry) error
	onResult func(result TaskResult)
	now      func() time.Time

	mu    sync.Mutex // guards entry merging and persist calls
	entry library.Entry
}

// NewManager builds a Manager from opts.
func NewManager(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 2
	}
	retries := opts.Retries
	if retries <= 0 {
		retries = 3
	}
	return &Manager{
		router:   opts.Router,
		journal:  opts.Journal,
		log:      log,
		workers:  workers,
		retries:  retries,
		persist:  opts.Persist,
		onResult: opts.OnResult,
		now:      time.Now,
	}
}

// DownloadBatch transfers the given volumes of one comic into dir. Results
// come back in the same order as volIDs regardless of completion order. The
// returned entry reflects every volume that finished successfully, even when
// the batch as a whole was cancelled or partially failed.
//
// Cancellation stops new tasks from being scheduled; tasks already running
// are interrupted and clean up their working files.
func (m *Manager) DownloadBatch(ctx context.Context, dir string, entry library.Entry, detail *catalog.Detail, volIDs []string, f catalog.Format) (library.Entry, BatchResult) {
	batch := BatchResult{
		BatchID: uuid.NewString(),
		Results: make([]TaskResult, len(volIDs)),
	}

	m.mu.Lock()
	m.entry = entry
	m.mu.Unlock()

	m.log.Info("starting batch",
		"batch_id", batch.BatchID,
		"book_id", detail.Meta.BookID,
		"volumes", len(volIDs),
		"format", f.String(),
		"workers", m.workers)

	sem := make(chan struct{}, m.workers)
	var wg sync.WaitGroup

	for i, volID := range volIDs {
		select {
		case <-ctx.Done():
			batch.Results[i] = TaskResult{VolID: volID, Status: StatusFailed, Err: ctx.Err()}
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, volID string) {
			defer wg.Done()
			defer func() { <-sem }()
			batch.Results[i] = m.runTask(ctx, dir, detail, volID, f, batch.BatchID)
		}(i, volID)
	}
	wg.Wait()

	m.mu.Lock()
	final := m.entry
	m.mu.Unlock()

	succeeded, failed, skipped, quota := batch.Counts()
	m.log.Info("batch finished",
		"batch_id", batch.BatchID,
		"succeeded", succeeded,
		"failed", failed,
		"skipped", skipped,
		"quota", quota)

	return final, batch
}

func (m *Manager) runTask(ctx context.Context, dir string, detail *catalog.Detail, volID string, f catalog.Format, batchID string) TaskResult {
	started := m.now()

	result := m.doTask(ctx, dir, detail, volID, f)
	m.journalTask(ctx, batchID, detail.Meta.BookID, f, started, result)
	if m.onResult != nil {
		m.onResult(result)
	}
	return result
}

func (m *Manager) doTask(ctx context.Context, dir string, detail *catalog.Detail, volID string, f catalog.Format) TaskResult {
	vol, err := detail.FindVolume(volID)
	if err != nil {
		return TaskResult{VolID: volID, Status: StatusFailed, Err: err}
	}

	filename := library.VolumeFilename(detail.Meta.Title, vol.Title, f.Ext())
	destPath := filepath.Join(dir, filename)

	if m.alreadyDownloaded(destPath, vol, f) {
		m.log.Info("volume already downloaded", "vol_id", volID, "title", vol.Title)
		return TaskResult{VolID: volID, Title: vol.Title, Status: StatusSkipped}
	}

	urls, err := m.resolveURLs(ctx, detail.Meta.BookID, volID, f)
	if err != nil {
		var quota *QuotaExhaustedError
		if errors.As(err, &quota) {
			return TaskResult{VolID: volID, Title: vol.Title, Status: StatusQuota, Err: err}
		}
		return TaskResult{VolID: volID, Title: vol.Title, Status: StatusFailed, Err: err}
	}

	expected := vol.ExpectedBytes(f)
	var lastErr error

	for attempt := 0; attempt < m.retries; attempt++ {
		for _, u := range urls {
			if ctx.Err() != nil {
				return TaskResult{VolID: volID, Title: vol.Title, Status: StatusFailed, Err: ctx.Err()}
			}

			written, _, err := m.transfer(ctx, u, destPath, expected, f)
			if err != nil {
				if ctx.Err() != nil {
					return TaskResult{VolID: volID, Title: vol.Title, Status: StatusFailed, Err: ctx.Err()}
				}
				if isTerminalTransfer(err) {
					return TaskResult{VolID: volID, Title: vol.Title, Status: StatusFailed, Err: err}
				}
				m.log.Warn("transfer failed",
					"vol_id", volID, "attempt", attempt+1, "error", err)
				lastErr = err
				continue
			}

			m.commit(vol, f, filename, written, detail)
			m.log.Info("volume downloaded",
				"vol_id", volID, "title", vol.Title, "bytes", written)
			return TaskResult{VolID: volID, Title: vol.Title, Status: StatusSuccess, Bytes: written}
		}
	}

	return TaskResult{VolID: volID, Title: vol.Title, Status: StatusFailed, Err: lastErr}
}

// isTerminalTransfer reports whether a transfer failure can never be cured
// by another attempt: auth rejections need a new session and rate limiting
// needs the caller to back off, so burning the retry budget on either only
// makes things worse.
func isTerminalTransfer(err error) bool {
	var authErr *mirror.AuthError
	var rateErr *mirror.RateLimitError
	return errors.As(err, &authErr) || errors.As(err, &rateErr)
}

// alreadyDownloaded reports whether destPath already holds a plausible copy
// of the volume: the file exists and is at least half the expected size.
func (m *Manager) alreadyDownloaded(destPath string, vol catalog.Volume, f catalog.Format) bool {
	info, err := os.Stat(destPath)
	if err != nil || info.IsDir() {
		return false
	}
	expected := vol.ExpectedBytes(f)
	return expected == 0 || info.Size()*2 >= expected
}

// commit merges one finished volume into the entry and persists it.
func (m *Manager) commit(vol catalog.Volume, f catalog.Format, filename string, written int64, detail *catalog.Detail) {
	rec := library.DownloadRecord{
		VolID:        vol.VolID,
		Title:        vol.Title,
		Format:       f.Ext(),
		Filename:     filename,
		DownloadedAt: m.now().UTC(),
		SizeBytes:    written,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entry = library.RecordDownload(m.entry, []library.DownloadRecord{rec}, detail, m.now())
	if m.persist != nil {
		if err := m.persist(m.entry); err != nil {
			m.log.Warn("persisting library entry failed", "book_id", m.entry.BookID, "error", err)
		}
	}
}

func (m *Manager) journalTask(ctx context.Context, batchID, bookID string, f catalog.Format, started time.Time, result TaskResult) {
	if m.journal == nil {
		return
	}
	ev := journal.Event{
		BatchID:    batchID,
		BookID:     bookID,
		VolID:      result.VolID,
		Title:      result.Title,
		Format:     f.Ext(),
		Status:     string(result.Status),
		SizeBytes:  result.Bytes,
		StartedAt:  started,
		FinishedAt: m.now(),
	}
	if result.Err != nil {
		ev.Error = result.Err.Error()
	}
	// Journal writes should survive batch cancellation.
	if err := m.journal.Record(context.WithoutCancel(ctx), ev); err != nil {
		m.log.Warn("journal write failed", "vol_id", result.VolID, "error", err)
	}
}
