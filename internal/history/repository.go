package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timeFormat sorts lexically in UTC.
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Entry is one recorded player event.
type Entry struct {
	ID         string         `json:"id"`
	PlayerID   string         `json:"player_id"`
	Kind       string         `json:"kind"`
	Cause      string         `json:"cause,omitempty"`
	SceneID    string         `json:"scene_id,omitempty"`
	SceneIndex int            `json:"scene_index"`
	Phase      string         `json:"phase,omitempty"`
	Activation uint64         `json:"activation"`
	DwellMs    *int64         `json:"dwell_ms,omitempty"`
	Command    string         `json:"command,omitempty"`
	Source     string         `json:"source,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	Kind    string    // optional: phase_started, playback_changed, command, signal_dropped
	SceneID string    // optional
	Since   time.Time // optional: entries at or after this time
	Limit   int       // default 50, max 500
	Offset  int
}

// ListResult is a page of entries, most recent first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// SceneStat aggregates activations of one scene.
type SceneStat struct {
	SceneID      string `json:"scene_id"`
	Intros       int    `json:"intros"`
	Activations  int    `json:"activations"`
	Completions  int    `json:"completions"`
	TotalDwellMs int64  `json:"total_dwell_ms"`
}

// Repository stores and queries playback history.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	SetDwell(ctx context.Context, id string, dwellMs int64) error
	List(ctx context.Context, f Filter) (*ListResult, error)
	SceneStats(ctx context.Context, since time.Time) ([]SceneStat, error)
}

// SQLiteRepository implements Repository on the playback_events table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a history repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an entry. ID and CreatedAt are generated when empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.Kind == "" || e.PlayerID == "" {
		return fmt.Errorf("%w: kind and player_id are required", ErrInvalidEntry)
	}
	if e.ID == "" {
		e.ID = "evt-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	var details *string
	if e.Details != nil {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshalling history details: %w", err)
		}
		s := string(b)
		details = &s
	}

	var dwell any
	if e.DwellMs != nil {
		dwell = *e.DwellMs
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO playback_events
		   (id, player_id, kind, cause, scene_id, scene_index, phase, activation,
		    dwell_ms, command, source, actor, reason, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PlayerID, e.Kind, nullable(e.Cause), nullable(e.SceneID), e.SceneIndex,
		nullable(e.Phase), int64(e.Activation), dwell, nullable(e.Command),
		nullable(e.Source), nullable(e.Actor), nullable(e.Reason), details,
		e.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}
	return nil
}

// SetDwell records how long an activation was actually on screen.
func (r *SQLiteRepository) SetDwell(ctx context.Context, id string, dwellMs int64) error {
	res, err := r.db.ExecContext(ctx, "UPDATE playback_events SET dwell_ms = ? WHERE id = ?", dwellMs, id)
	if err != nil {
		return fmt.Errorf("updating dwell: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, f Filter) (*ListResult, error) {
	switch {
	case f.Limit <= 0:
		f.Limit = defaultLimit
	case f.Limit > maxLimit:
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var conds []string
	var args []any
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.SceneID != "" {
		conds = append(conds, "scene_id = ?")
		args = append(args, f.SceneID)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UTC().Format(timeFormat))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM playback_events " + where //nolint:gosec // placeholders only
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting history: %w", err)
	}

	query := `SELECT id, player_id, kind, cause, scene_id, scene_index, phase, activation,
	                 dwell_ms, command, source, actor, reason, details, created_at
	          FROM playback_events ` + where + ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?` //nolint:gosec // placeholders only
	rows, err := r.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}

	return &ListResult{Entries: entries, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var cause, sceneID, phase, command, source, actor, reason, details sql.NullString
	var activation int64
	var dwell sql.NullInt64
	var createdAt string
	if err := rows.Scan(&e.ID, &e.PlayerID, &e.Kind, &cause, &sceneID, &e.SceneIndex, &phase,
		&activation, &dwell, &command, &source, &actor, &reason, &details, &createdAt); err != nil {
		return Entry{}, fmt.Errorf("scanning history entry: %w", err)
	}

	e.Cause, e.SceneID, e.Phase = cause.String, sceneID.String, phase.String
	e.Command, e.Source, e.Actor, e.Reason = command.String, source.String, actor.String, reason.String
	e.Activation = uint64(activation) //nolint:gosec // written from a uint64
	if dwell.Valid {
		d := dwell.Int64
		e.DwellMs = &d
	}
	if details.Valid && details.String != "" {
		var m map[string]any
		if json.Unmarshal([]byte(details.String), &m) == nil {
			e.Details = m
		}
	}

	t, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing history timestamp %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	return e, nil
}

// SceneStats aggregates phase_started rows per scene since the given time
// (zero means all time), in order of first appearance in the catalog index.
func (r *SQLiteRepository) SceneStats(ctx context.Context, since time.Time) ([]SceneStat, error) {
	var sinceArg string
	if !since.IsZero() {
		sinceArg = since.UTC().Format(timeFormat)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT scene_id,
		       SUM(CASE WHEN phase = 'intro' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN phase = 'content' THEN 1 ELSE 0 END),
		       COALESCE(SUM(dwell_ms), 0),
		       MIN(scene_index)
		FROM playback_events
		WHERE kind = 'phase_started' AND scene_id IS NOT NULL AND created_at >= ?
		GROUP BY scene_id
		ORDER BY MIN(scene_index), scene_id`, sinceArg)
	if err != nil {
		return nil, fmt.Errorf("querying scene stats: %w", err)
	}
	defer rows.Close()

	stats := []SceneStat{}
	index := make(map[string]int)
	for rows.Next() {
		var s SceneStat
		var minIndex int
		if err := rows.Scan(&s.SceneID, &s.Intros, &s.Activations, &s.TotalDwellMs, &minIndex); err != nil {
			return nil, fmt.Errorf("scanning scene stats: %w", err)
		}
		index[s.SceneID] = len(stats)
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scene stats: %w", err)
	}
	rows.Close()

	// A completion ends the previous activation, so it is counted against
	// the scene the completed row belongs to: the one before it.
	completions, err := r.db.QueryContext(ctx, `
		SELECT prev.scene_id
		FROM playback_events cur
		JOIN playback_events prev ON prev.id = (
			SELECT p.id FROM playback_events p
			WHERE p.kind = 'phase_started' AND p.rowid < cur.rowid
			ORDER BY p.rowid DESC LIMIT 1)
		WHERE cur.kind = 'phase_started' AND cur.cause = 'completion' AND cur.created_at >= ?`, sinceArg)
	if err != nil {
		return nil, fmt.Errorf("querying completions: %w", err)
	}
	defer completions.Close()

	for completions.Next() {
		var sceneID sql.NullString
		if err := completions.Scan(&sceneID); err != nil {
			return nil, fmt.Errorf("scanning completions: %w", err)
		}
		if i, ok := index[sceneID.String]; ok {
			stats[i].Completions++
		}
	}
	if err := completions.Err(); err != nil {
		return nil, fmt.Errorf("iterating completions: %w", err)
	}
	return stats, nil
}
