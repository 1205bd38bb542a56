package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nerrad567/showloop/internal/history"
)

// handleListHistory returns recorded player events, most recent first.
//
// Query parameters:
//   - kind: phase_started, playback_changed, command, signal_dropped
//   - scene_id: filter by scene
//   - since: RFC 3339 timestamp
//   - limit: max results (default 50, max 500)
//   - offset: pagination offset
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "history not configured")
		return
	}

	q := r.URL.Query()
	since, ok := parseSince(w, q)
	if !ok {
		return
	}
	filter := history.Filter{
		Kind:    q.Get("kind"),
		SceneID: q.Get("scene_id"),
		Since:   since,
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list history", "error", err)
		writeInternalError(w, "failed to list history")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleHistoryStats returns per-scene activation counts and dwell time.
func (s *Server) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "history not configured")
		return
	}

	since, ok := parseSince(w, r.URL.Query())
	if !ok {
		return
	}

	stats, err := s.history.SceneStats(r.Context(), since)
	if err != nil {
		s.logger.Error("failed to compute history stats", "error", err)
		writeInternalError(w, "failed to compute history stats")
		return
	}
	if stats == nil {
		stats = []history.SceneStat{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scenes": stats,
		"count":  len(stats),
	})
}

// parseSince reads the optional since parameter, writing a 400 when it is
// malformed.
func parseSince(w http.ResponseWriter, q url.Values) (time.Time, bool) {
	v := q.Get("since")
	if v == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		writeBadRequest(w, "since must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return t, true
}
