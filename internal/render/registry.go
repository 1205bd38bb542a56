package render

import (
	"fmt"

	"github.com/nerrad567/showloop/internal/catalog"
)

// Registry maps scene ids to their renderers.
//
// It is read-only after NewRegistry and safe for concurrent use.
type Registry struct {
	renderers map[string]Renderer
}

// NewRegistry builds one renderer per scene in cat.
// Fails with ErrUnknownKind if any scene has no renderer.
func NewRegistry(cat *catalog.Catalog, announcer Announcer) (*Registry, error) {
	r := &Registry{renderers: make(map[string]Renderer, cat.Len())}
	for _, scene := range cat.Scenes() {
		rend, err := New(scene, announcer)
		if err != nil {
			return nil, fmt.Errorf("scene %q: %w", scene.ID, err)
		}
		r.renderers[scene.ID] = rend
	}
	return r, nil
}

// Get returns the renderer for sceneID.
func (r *Registry) Get(sceneID string) (Renderer, bool) {
	rend, ok := r.renderers[sceneID]
	return rend, ok
}

// Len returns the number of registered renderers.
func (r *Registry) Len() int {
	return len(r.renderers)
}
