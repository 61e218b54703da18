package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/junglemonkey/wumpus-archiver/internal/discord"
	"github.com/junglemonkey/wumpus-archiver/internal/jobs"
	"github.com/junglemonkey/wumpus-archiver/internal/model"
	"github.com/junglemonkey/wumpus-archiver/internal/scraper"
	"github.com/junglemonkey/wumpus-archiver/internal/store"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log.WithField("component", "httpapi_test")
}

func newSQLiteStore(t *testing.T, name string) store.Store {
	t.Helper()
	s := store.NewSQLite(filepath.Join(t.TempDir(), name+".db"))
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() { s.Disconnect(context.Background()) })
	return s
}

func newTestServer(t *testing.T) (*Server, *store.Registry) {
	t.Helper()
	reg := store.NewRegistry()
	reg.Register("primary", newSQLiteStore(t, "primary"))
	require.NoError(t, reg.SetActive("primary"))

	sc := scraper.New(scraper.DefaultConfig(), testLogger())
	fake := discord.NewFake()
	scrapeMgr := jobs.NewScrapeManager(reg, sc, func() discord.Client { return fake }, "", testLogger())
	downloadMgr := jobs.NewDownloadManager(reg, jobs.DefaultDownloadConfig(t.TempDir()), testLogger())
	transferMgr := jobs.NewTransferManager(reg, testLogger())

	s := New(reg, scrapeMgr, downloadMgr, transferMgr, "", testLogger())
	return s, reg
}

func decodeJSON(t *testing.T, body *bytes.Buffer, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body.Bytes(), out))
}

func TestScrapeStartRejectsEmptyChannelSubset(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodPost, "/scrape/start", bytes.NewBufferString(`{"guild_id":1,"channel_ids":[]}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScrapeStatusReportsIdleBeforeAnyRun(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/scrape/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	decodeJSON(t, w.Body, &body)
	require.Equal(t, false, body["busy"])
	require.Equal(t, false, body["has_token"])
}

func TestScrapeCancelWithoutRunningJobReturnsNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodPost, "/scrape/cancel", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestScrapeChannelsReturnsNotFoundForUnknownGuild(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/scrape/guilds/42/channels", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestScrapeChannelsReturnsPersistedChannels(t *testing.T) {
	s, reg := newTestServer(t)
	router := s.Router()

	st, err := reg.GetActive()
	require.NoError(t, err)
	ctx := context.Background()
	_, err = st.UpsertGuild(ctx, model.Guild{ID: 42, Name: "test guild"})
	require.NoError(t, err)
	_, err = st.UpsertChannel(ctx, model.Channel{ID: 7, GuildID: 42, Name: "general", Kind: model.ChannelKindText})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/scrape/guilds/42/channels", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	decodeJSON(t, w.Body, &body)
	require.Equal(t, float64(42), body["guild_id"])
	require.Equal(t, "test guild", body["guild_name"])
	require.Equal(t, float64(1), body["total"])
}

func TestAnalyzeFallsBackToPersistedOnlyWithoutLiveClient(t *testing.T) {
	s, reg := newTestServer(t)
	router := s.Router()

	st, err := reg.GetActive()
	require.NoError(t, err)
	ctx := context.Background()
	_, err = st.UpsertGuild(ctx, model.Guild{ID: 42, Name: "test guild"})
	require.NoError(t, err)
	_, err = st.UpsertChannel(ctx, model.Channel{ID: 7, GuildID: 42, Name: "general", Kind: model.ChannelKindText})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/scrape/analyze/42", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	decodeJSON(t, w.Body, &body)
	channels, ok := body["channels"].([]any)
	require.True(t, ok)
	require.Len(t, channels, 1)
}

func TestDownloadsJobReportsIdleBeforeAnyRun(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/downloads/job", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	decodeJSON(t, w.Body, &body)
	require.Equal(t, "idle", body["status"])
}

func TestDownloadsCancelWithoutRunningJobReturnsNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodPost, "/downloads/cancel", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestTransferStartFailsWithFewerThanTwoSources(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodPost, "/transfer/start", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

// postgresLabeledStore wraps a real store but reports the "postgres"
// dialect, standing in for a server-backed store without requiring a
// live Postgres connection in tests.
type postgresLabeledStore struct {
	store.Store
}

func (postgresLabeledStore) Dialect() string { return "postgres" }

func TestTransferStartRunsAcrossRegisteredSources(t *testing.T) {
	s, reg := newTestServer(t)
	reg.Register("secondary", postgresLabeledStore{newSQLiteStore(t, "secondary")})
	router := s.Router()

	req := httptest.NewRequest(http.MethodPost, "/transfer/start", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestDatasourceGetListsRegisteredSources(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/datasource", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	decodeJSON(t, w.Body, &body)
	require.Equal(t, "primary", body["active"])
}

func TestDatasourcePutRejectsUnknownSource(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodPut, "/datasource", bytes.NewBufferString(`{"active":"nonexistent"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDatasourcePutSwitchesActiveSource(t *testing.T) {
	s, reg := newTestServer(t)
	reg.Register("secondary", newSQLiteStore(t, "secondary"))
	router := s.Router()

	req := httptest.NewRequest(http.MethodPut, "/datasource", bytes.NewBufferString(`{"active":"secondary"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "secondary", reg.ActiveName())
}
