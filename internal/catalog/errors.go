package catalog

import "errors"

// Domain-specific errors for catalog loading.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrEmptyCatalog is returned when a catalog contains no scenes.
	// A player cannot start without at least one scene.
	ErrEmptyCatalog = errors.New("catalog: no scenes defined")

	// ErrDuplicateSceneID is returned when two scenes share an id.
	ErrDuplicateSceneID = errors.New("catalog: duplicate scene id")

	// ErrUnknownKind is returned when a scene declares a content kind
	// outside the supported set.
	ErrUnknownKind = errors.New("catalog: unknown content kind")
)
