package playback

import (
	"fmt"

	"github.com/nerrad567/showloop/internal/catalog"
)

// Request is the wire form of a command, shared by the HTTP API, the
// WebSocket, and MQTT.
//
//	{"command":"jump","scene_id":"supply"}
//	{"command":"complete","activation":12}
type Request struct {
	Command    string `json:"command"`
	Index      *int   `json:"index,omitempty"`
	SceneID    string `json:"scene_id,omitempty"`
	Activation uint64 `json:"activation,omitempty"`
}

// Resolve validates the request against the catalog and returns the
// Command to execute. A scene_id takes precedence over an index.
func (r Request) Resolve(cat *catalog.Catalog, source, actor string) (Command, error) {
	kind, err := ParseCommandKind(r.Command)
	if err != nil {
		return Command{}, err
	}

	cmd := Command{Kind: kind, Source: source, Actor: actor}
	switch kind {
	case CommandJump:
		switch {
		case r.SceneID != "":
			idx, ok := cat.IndexOf(r.SceneID)
			if !ok {
				return Command{}, fmt.Errorf("%w: %q", ErrUnknownScene, r.SceneID)
			}
			cmd.Index = idx
		case r.Index != nil:
			cmd.Index = *r.Index
		default:
			return Command{}, ErrMissingTarget
		}
	case CommandComplete:
		cmd.Activation = r.Activation
	}
	return cmd, nil
}
