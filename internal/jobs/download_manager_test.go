package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/junglemonkey/wumpus-archiver/internal/model"
	"github.com/junglemonkey/wumpus-archiver/internal/store"
)

// seedPendingAttachment writes the full FK chain (guild, channel, user,
// message) an attachment row needs, then the attachment itself with
// download_state=pending.
func seedPendingAttachment(t *testing.T, st store.Store, attachmentID model.Snowflake, contentType, filename, remoteURL string) {
	t.Helper()
	ctx := context.Background()
	_, err := st.UpsertGuild(ctx, model.Guild{ID: 1, Name: "wumpus land"})
	require.NoError(t, err)
	_, err = st.UpsertChannel(ctx, model.Channel{ID: 2, GuildID: 1, Name: "general", Kind: model.ChannelKindText})
	require.NoError(t, err)
	_, err = st.UpsertUser(ctx, model.User{ID: 99, Username: "wumpus"})
	require.NoError(t, err)
	_, err = st.UpsertMessage(ctx, model.Message{ID: 100, ChannelID: 2, AuthorID: 99, SentAt: time.Now()})
	require.NoError(t, err)
	_, err = st.UpsertAttachment(ctx, model.Attachment{
		ID: attachmentID, MessageID: 100, Filename: filename, ContentType: contentType,
		RemoteURL: remoteURL, DownloadState: model.DownloadPending,
	})
	require.NoError(t, err)
}

func TestDownloadManagerDownloadsRecognizedImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("fake png bytes"))
	}))
	defer srv.Close()

	reg := newTestRegistry(t)
	st, err := reg.GetActive()
	require.NoError(t, err)
	seedPendingAttachment(t, st, 500, "image/png", "photo.png", srv.URL)

	base := t.TempDir()
	cfg := DefaultDownloadConfig(base)
	cfg.RetryDelay = time.Millisecond
	m := NewDownloadManager(reg, cfg, testLogger())

	_, err = m.Start()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return m.Status().Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	final := m.Status()
	require.Equal(t, 1, final.Progress.Downloaded)
	require.Equal(t, 0, final.Progress.Failed)

	a, ok, err := st.GetAttachment(context.Background(), 500)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.DownloadDownloaded, a.DownloadState)
	require.NotNil(t, a.LocalPath)
	require.Equal(t, filepath.Join(base, "2", "500.png"), *a.LocalPath)

	data, err := os.ReadFile(*a.LocalPath)
	require.NoError(t, err)
	require.Equal(t, "fake png bytes", string(data))
}

func TestDownloadManagerSkipsUnrecognizedContentType(t *testing.T) {
	reg := newTestRegistry(t)
	st, err := reg.GetActive()
	require.NoError(t, err)
	seedPendingAttachment(t, st, 501, "text/plain", "notes.txt", "http://example.invalid/notes.txt")

	cfg := DefaultDownloadConfig(t.TempDir())
	m := NewDownloadManager(reg, cfg, testLogger())

	_, err = m.Start()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return m.Status().Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, 1, m.Status().Progress.Skipped)

	a, ok, err := st.GetAttachment(context.Background(), 501)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.DownloadSkipped, a.DownloadState)
}

func TestDownloadManagerMarksFailedAfterExhaustingRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	reg := newTestRegistry(t)
	st, err := reg.GetActive()
	require.NoError(t, err)
	seedPendingAttachment(t, st, 502, "image/png", "broken.png", srv.URL)

	cfg := DefaultDownloadConfig(t.TempDir())
	cfg.MaxRetries = 2
	cfg.RetryDelay = time.Millisecond
	m := NewDownloadManager(reg, cfg, testLogger())

	_, err = m.Start()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return m.Status().Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, 1, m.Status().Progress.Failed)

	a, ok, err := st.GetAttachment(context.Background(), 502)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.DownloadFailed, a.DownloadState)
}

func TestDownloadManagerStartWhileBusyFails(t *testing.T) {
	reg := newTestRegistry(t)
	cfg := DefaultDownloadConfig(t.TempDir())
	m := NewDownloadManager(reg, cfg, testLogger())

	_, err := m.Start()
	require.NoError(t, err)

	_, err = m.Start()
	require.ErrorIs(t, err, ErrAlreadyBusy)

	require.Eventually(t, func() bool { return !m.IsBusy() }, 2*time.Second, 10*time.Millisecond)
}

// panickingAttachmentStore wraps a real Store but panics on
// ListPendingImageAttachments, simulating a defect deep in the listing
// query that must not take the whole process down with it.
type panickingAttachmentStore struct {
	store.Store
}

func (p *panickingAttachmentStore) ListPendingImageAttachments(ctx context.Context, offset, limit int) ([]store.PendingAttachment, int, error) {
	panic("simulated listing panic")
}

func TestDownloadManagerRecoversFromPanicInRunGoroutine(t *testing.T) {
	reg := store.NewRegistry()
	inner := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, inner.Connect(context.Background()))
	t.Cleanup(func() { inner.Disconnect(context.Background()) })
	reg.Register("primary", &panickingAttachmentStore{Store: inner})
	require.NoError(t, reg.SetActive("primary"))

	cfg := DefaultDownloadConfig(t.TempDir())
	m := NewDownloadManager(reg, cfg, testLogger())

	_, err := m.Start()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return m.Status().Status == StatusFailed
	}, 2*time.Second, 10*time.Millisecond)
	require.Contains(t, m.Status().ErrorMessage, "simulated listing panic")
	require.False(t, m.IsBusy(), "a recovered panic must still release the busy slot")
}

func TestDownloadManagerIdleStatusBeforeAnyRun(t *testing.T) {
	reg := newTestRegistry(t)
	cfg := DefaultDownloadConfig(t.TempDir())
	m := NewDownloadManager(reg, cfg, testLogger())

	require.Equal(t, Status("idle"), m.Status().Status)
	require.ErrorIs(t, m.Cancel(), ErrNoJob)
}
