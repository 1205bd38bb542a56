package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/showloop/internal/catalog"
)

// sceneResponse is a catalog scene with its playlist position.
type sceneResponse struct {
	catalog.Scene
	Index       int           `json:"index"`
	OrderedCues []catalog.Cue `json:"cues,omitempty"`
}

func newSceneResponse(scene catalog.Scene, index int) sceneResponse {
	return sceneResponse{Scene: scene, Index: index, OrderedCues: scene.Cues()}
}

// handleListScenes returns the playlist in order.
func (s *Server) handleListScenes(w http.ResponseWriter, _ *http.Request) {
	scenes := s.catalog.Scenes()
	out := make([]sceneResponse, len(scenes))
	for i, scene := range scenes {
		out[i] = newSceneResponse(scene, i)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scenes":            out,
		"count":             len(out),
		"total_duration_ms": s.catalog.TotalDurationMs(),
	})
}

// handleGetScene returns a single scene by id.
func (s *Server) handleGetScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	idx, ok := s.catalog.IndexOf(id)
	if !ok {
		writeNotFound(w, "scene not found")
		return
	}
	writeJSON(w, http.StatusOK, newSceneResponse(s.catalog.Scene(idx), idx))
}
