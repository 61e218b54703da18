package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/junglemonkey/wumpus-archiver/internal/model"
	"github.com/junglemonkey/wumpus-archiver/internal/store"
)

func newNamedSQLiteStore(t *testing.T) store.Store {
	t.Helper()
	s := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() { s.Disconnect(context.Background()) })
	return s
}

func seedFullGuild(t *testing.T, st store.Store, guildID model.Snowflake, messageCount int) {
	t.Helper()
	ctx := context.Background()
	_, err := st.UpsertGuild(ctx, model.Guild{ID: guildID, Name: "wumpus land"})
	require.NoError(t, err)
	_, err = st.UpsertUser(ctx, model.User{ID: 99, Username: "wumpus"})
	require.NoError(t, err)
	_, err = st.UpsertChannel(ctx, model.Channel{ID: 2, GuildID: guildID, Name: "general", Kind: model.ChannelKindText})
	require.NoError(t, err)
	for i := 0; i < messageCount; i++ {
		_, err := st.UpsertMessage(ctx, model.Message{ID: model.Snowflake(100 + i), ChannelID: 2, AuthorID: 99, SentAt: time.Now()})
		require.NoError(t, err)
	}
}

func TestTransferManagerMigratesAllTables(t *testing.T) {
	source := newNamedSQLiteStore(t)
	target := newNamedSQLiteStore(t)
	seedFullGuild(t, source, 1, 5)

	reg := store.NewRegistry()
	reg.Register("source", source)
	reg.Register("target", target)

	m := NewTransferManager(reg, testLogger())
	job, err := m.Start("source", "target")
	require.NoError(t, err)
	require.Equal(t, 6, job.Progress.TablesTotal)

	require.Eventually(t, func() bool {
		return m.Status().Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	final := m.Status()
	require.Equal(t, 6, final.Progress.TablesDone)
	require.Equal(t, final.Progress.TotalRows, final.Progress.RowsTransferred)

	ctx := context.Background()
	g, ok, err := target.GetGuild(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "wumpus land", g.Name)

	msgs, err := target.ListMessagesByChannel(ctx, 2, store.Pagination{Limit: 10})
	require.NoError(t, err)
	require.Len(t, msgs, 5)
}

func TestTransferManagerUnknownSourceFails(t *testing.T) {
	target := newNamedSQLiteStore(t)
	reg := store.NewRegistry()
	reg.Register("target", target)

	m := NewTransferManager(reg, testLogger())
	_, err := m.Start("missing", "target")
	require.NoError(t, err, "Start only rejects an already-busy manager; unknown names fail inside the background task")

	require.Eventually(t, func() bool {
		return m.Status().Status == StatusFailed
	}, 2*time.Second, 10*time.Millisecond)
	require.Contains(t, m.Status().ErrorMessage, "resolve source")
}

func TestTransferManagerStartWhileBusyFails(t *testing.T) {
	source := newNamedSQLiteStore(t)
	target := newNamedSQLiteStore(t)
	seedFullGuild(t, source, 1, 1)

	reg := store.NewRegistry()
	reg.Register("source", source)
	reg.Register("target", target)

	m := NewTransferManager(reg, testLogger())
	_, err := m.Start("source", "target")
	require.NoError(t, err)

	_, err = m.Start("source", "target")
	require.ErrorIs(t, err, ErrAlreadyBusy)

	require.Eventually(t, func() bool { return !m.IsBusy() }, 2*time.Second, 10*time.Millisecond)
}

// panickingCountStore wraps a real Store but panics on CountTable,
// simulating a defect in Phase 1's counting pass that must not take
// the whole process down with it.
type panickingCountStore struct {
	store.Store
}

func (p *panickingCountStore) CountTable(ctx context.Context, table store.Table) (int64, error) {
	panic("simulated count panic")
}

func TestTransferManagerRecoversFromPanicInRunGoroutine(t *testing.T) {
	source := newNamedSQLiteStore(t)
	target := newNamedSQLiteStore(t)
	seedFullGuild(t, source, 1, 1)

	reg := store.NewRegistry()
	reg.Register("source", &panickingCountStore{Store: source})
	reg.Register("target", target)

	m := NewTransferManager(reg, testLogger())
	_, err := m.Start("source", "target")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return m.Status().Status == StatusFailed
	}, 2*time.Second, 10*time.Millisecond)
	require.Contains(t, m.Status().ErrorMessage, "simulated count panic")
	require.False(t, m.IsBusy(), "a recovered panic must still release the busy slot")
}

func TestTransferManagerIdleStatusBeforeAnyRun(t *testing.T) {
	reg := store.NewRegistry()
	m := NewTransferManager(reg, testLogger())

	require.Equal(t, Status("idle"), m.Status().Status)
	require.ErrorIs(t, m.Cancel(), ErrNoJob)
}
