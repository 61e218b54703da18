package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/junglemonkey/wumpus-archiver/internal/jobs"
	"github.com/junglemonkey/wumpus-archiver/internal/model"
	"github.com/junglemonkey/wumpus-archiver/internal/store"
)

func parseSnowflake(s string) (model.Snowflake, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.New("invalid snowflake")
	}
	return model.Snowflake(v), nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// --- scrape ---

type scrapeStartRequest struct {
	GuildID    uint64   `json:"guild_id"`
	ChannelIDs []uint64 `json:"channel_ids,omitempty"`
}

func (s *Server) handleScrapeStart(w http.ResponseWriter, r *http.Request) {
	var req scrapeStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var channelIDs []model.Snowflake
	if req.ChannelIDs != nil {
		channelIDs = make([]model.Snowflake, len(req.ChannelIDs))
		for i, id := range req.ChannelIDs {
			channelIDs[i] = model.Snowflake(id)
		}
	}

	job, err := s.scrape.Start(model.Snowflake(req.GuildID), channelIDs)
	switch {
	case errors.Is(err, jobs.ErrAlreadyBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, jobs.ErrEmptyChannelIDs):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, job)
	}
}

func (s *Server) handleScrapeStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"busy":        s.scrape.IsBusy(),
		"current_job": s.scrape.Status(),
		"has_token":   s.token != "",
	})
}

func (s *Server) handleScrapeCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.scrape.Cancel(); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "cancellation requested"})
}

func (s *Server) handleScrapeHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.scrape.History()})
}

// handleScrapeChannels serves the DB-only channel list spec.md §6
// names: it never touches the live Discord capability, only the
// active store's persisted rows.
func (s *Server) handleScrapeChannels(w http.ResponseWriter, r *http.Request) {
	guildID, err := parseSnowflake(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := s.registry.GetActive()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	guild, ok, err := st.GetGuild(r.Context(), guildID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "guild not found")
		return
	}
	channels, err := st.ListChannelsByGuild(r.Context(), guildID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"guild_id":   guild.ID,
		"guild_name": guild.Name,
		"channels":   channels,
		"total":      len(channels),
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	report, err := s.analyzeFor(r, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- downloads ---

func (s *Server) handleDownloadsStart(w http.ResponseWriter, r *http.Request) {
	job, err := s.download.Start()
	switch {
	case errors.Is(err, jobs.ErrAlreadyBusy):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, job)
	}
}

func (s *Server) handleDownloadsJob(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.download.Status())
}

func (s *Server) handleDownloadsCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.download.Cancel(); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "cancellation requested"})
}

// --- transfer ---

// resolveTransferEndpoints picks the transfer's fixed source/target
// pair by dialect: the file-backed store is always the source, the
// server-backed store always the target, per spec.md §6's "fixed
// source=sqlite-like, target=server-like".
func (s *Server) resolveTransferEndpoints() (sourceName, targetName string, ok bool) {
	for _, name := range s.registry.AvailableSources() {
		st, err := s.registry.Get(name)
		if err != nil {
			continue
		}
		switch st.Dialect() {
		case "sqlite":
			sourceName = name
		case "postgres":
			targetName = name
		}
	}
	return sourceName, targetName, sourceName != "" && targetName != ""
}

func (s *Server) handleTransferStart(w http.ResponseWriter, r *http.Request) {
	if len(s.registry.AvailableSources()) < 2 {
		writeError(w, http.StatusBadRequest, "transfer requires at least two registered sources")
		return
	}
	sourceName, targetName, ok := s.resolveTransferEndpoints()
	if !ok {
		writeError(w, http.StatusBadRequest, "transfer requires one sqlite-backed and one postgres-backed source")
		return
	}

	job, err := s.transfer.Start(sourceName, targetName)
	switch {
	case errors.Is(err, jobs.ErrAlreadyBusy):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, job)
	}
}

func (s *Server) handleTransferStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.transfer.Status())
}

func (s *Server) handleTransferCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.transfer.Cancel(); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "cancellation requested"})
}

// --- datasource ---

type sourceInfo struct {
	Label     string `json:"label"`
	Detail    string `json:"detail"`
	Available bool   `json:"available"`
}

func (s *Server) handleDatasourceGet(w http.ResponseWriter, r *http.Request) {
	sources := make(map[string]sourceInfo)
	for _, name := range s.registry.AvailableSources() {
		st, err := s.registry.Get(name)
		available := err == nil
		detail := ""
		if available {
			detail = st.Dialect()
		}
		sources[name] = sourceInfo{Label: name, Detail: detail, Available: available}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  s.registry.ActiveName(),
		"sources": sources,
	})
}

type datasourcePutRequest struct {
	Active string `json:"active"`
}

func (s *Server) handleDatasourcePut(w http.ResponseWriter, r *http.Request) {
	var req datasourcePutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.registry.SetActive(req.Active); err != nil {
		if errors.Is(err, store.ErrUnknownSource) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active": req.Active})
}
