package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/nerrad567/showloop/internal/playback"
)

// handleGetPlayback returns the current snapshot.
func (s *Server) handleGetPlayback(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.player.State())
}

// handlePlaybackCommand returns a handler for a body-less controller command.
func (s *Server) handlePlaybackCommand(kind playback.CommandKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := s.player.Execute(playback.Command{
			Kind:   kind,
			Source: SourceAPI,
			Actor:  actorFromContext(r.Context()),
		})
		writeJSON(w, http.StatusOK, snap)
	}
}

// handleJump selects a scene by index or scene id.
//
//	POST /api/v1/playback/jump {"scene_id":"supply"}
//	POST /api/v1/playback/jump {"index":2}
func (s *Server) handleJump(w http.ResponseWriter, r *http.Request) {
	var req playback.Request
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req.Command = string(playback.CommandJump)

	cmd, err := req.Resolve(s.catalog, SourceAPI, actorFromContext(r.Context()))
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.player.Execute(cmd))
}

// handleComplete reports that the active content has finished. An empty
// body addresses the current activation. The advance happens after the
// settle delay, so the response is 202 with the snapshot at acceptance.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Activation uint64 `json:"activation"`
	}
	if err := decodeOptionalJSON(r, &body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	snap := s.player.Execute(playback.Command{
		Kind:       playback.CommandComplete,
		Activation: body.Activation,
		Source:     SourceAPI,
		Actor:      actorFromContext(r.Context()),
	})
	writeJSON(w, http.StatusAccepted, snap)
}

// decodeOptionalJSON decodes the request body into v. An empty body is
// not an error.
func decodeOptionalJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
