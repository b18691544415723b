// Package db provides SurrealDB query functions for memory and archive records.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/fieldvoice/fieldvoice/internal/models"
)

// memoryRow is the stored shape of a memory record. The record ID lives in
// SurrealDB's native form here and is flattened to a string at the boundary.
type memoryRow struct {
	ID         surrealmodels.RecordID `json:"id"`
	SourceText string                 `json:"source_text"`
	Embedding  []float32              `json:"embedding,omitempty"`
	AssetID    *string                `json:"asset_id,omitempty"`
	Importance float64                `json:"importance,omitempty"`
	Timestamp  time.Time              `json:"timestamp,omitempty"`
}

func (r memoryRow) toModel() models.MemoryRecord {
	rec := models.MemoryRecord{
		ID:         fmt.Sprint(r.ID.ID),
		SourceText: r.SourceText,
		Embedding:  r.Embedding,
		Importance: r.Importance,
		Timestamp:  r.Timestamp,
	}
	if r.AssetID != nil {
		rec.AssetID = *r.AssetID
	}
	return rec
}

// PutMemoryRecord writes one memory record. The write is idempotent on the
// record ID so replayed inserts after a reconnect do not duplicate rows.
func (c *Client) PutMemoryRecord(ctx context.Context, rec models.MemoryRecord) error {
	var assetID *string
	if rec.AssetID != "" {
		assetID = &rec.AssetID
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("memory_record", $id) SET
			source_text = $source_text,
			embedding = $embedding,
			asset_id = $asset_id,
			importance = $importance,
			timestamp = <datetime>$timestamp
	`, map[string]any{
		"id":          rec.ID,
		"source_text": rec.SourceText,
		"embedding":   rec.Embedding,
		"asset_id":    assetID,
		"importance":  rec.Importance,
		"timestamp":   rec.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("put memory record: %w", wrapQueryError(err))
	}
	return nil
}

// ListMemoryRecords returns all stored memory records ordered oldest first,
// for hydrating the in-process store on startup.
func (c *Client) ListMemoryRecords(ctx context.Context) ([]models.MemoryRecord, error) {
	results, err := surrealdb.Query[[]memoryRow](ctx, c.db, `
		SELECT * FROM memory_record ORDER BY timestamp ASC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list memory records: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	rows := (*results)[0].Result
	out := make([]models.MemoryRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

// CountMemoryRecords returns the number of stored memory records.
func (c *Client) CountMemoryRecords(ctx context.Context) (int, error) {
	results, err := surrealdb.Query[[]struct {
		Count int `json:"count"`
	}](ctx, c.db, `
		SELECT count() AS count FROM memory_record GROUP ALL
	`, nil)
	if err != nil {
		return 0, fmt.Errorf("count memory records: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].Count, nil
}

// DeleteMemoryRecord removes one memory record, for when the in-process
// store evicts it.
func (c *Client) DeleteMemoryRecord(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE type::record("memory_record", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete memory record: %w", wrapQueryError(err))
	}
	return nil
}

// procedureRow is the stored shape of a procedure template.
type procedureRow struct {
	ID       surrealmodels.RecordID `json:"id"`
	Title    string                 `json:"title"`
	AssetID  *string                `json:"asset_id,omitempty"`
	Steps    []models.Step          `json:"steps"`
	Duration int64                  `json:"duration,omitempty"`
	Created  time.Time              `json:"created,omitempty"`
}

func (r procedureRow) toModel() models.Procedure {
	proc := models.Procedure{
		ID:       fmt.Sprint(r.ID.ID),
		Title:    r.Title,
		Steps:    r.Steps,
		Duration: time.Duration(r.Duration),
		Created:  r.Created,
	}
	if r.AssetID != nil {
		proc.AssetID = *r.AssetID
	}
	return proc
}

// PutProcedure writes one procedure template, replacing any stored version
// with the same ID.
func (c *Client) PutProcedure(ctx context.Context, proc models.Procedure) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("procedure", $id) SET
			title = $title,
			asset_id = $asset_id,
			steps = $steps,
			duration = $duration
	`, map[string]any{
		"id":       proc.ID,
		"title":    proc.Title,
		"asset_id": nilIfEmpty(proc.AssetID),
		"steps":    proc.Steps,
		"duration": int64(proc.Duration),
	})
	if err != nil {
		return fmt.Errorf("put procedure: %w", wrapQueryError(err))
	}
	return nil
}

// GetProcedure returns one stored procedure template by ID.
func (c *Client) GetProcedure(ctx context.Context, id string) (*models.Procedure, error) {
	results, err := surrealdb.Query[[]procedureRow](ctx, c.db, `
		SELECT * FROM type::record("procedure", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get procedure: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, ErrNotFound
	}
	proc := (*results)[0].Result[0].toModel()
	return &proc, nil
}

// ListProcedures returns all stored procedure templates ordered by title.
func (c *Client) ListProcedures(ctx context.Context) ([]models.Procedure, error) {
	results, err := surrealdb.Query[[]procedureRow](ctx, c.db, `
		SELECT * FROM procedure ORDER BY title ASC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list procedures: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	rows := (*results)[0].Result
	out := make([]models.Procedure, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

// ArchiveSession writes the durable record of an ended session.
func (c *Client) ArchiveSession(ctx context.Context, archive models.SessionArchive) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE session_archive SET
			session_id = $session_id,
			procedure_id = $procedure_id,
			completed = $completed,
			commands = $commands,
			transitions = $transitions,
			started_at = <datetime>$started_at,
			closed_at = <datetime>$closed_at,
			reason = $reason
	`, map[string]any{
		"session_id":   archive.SessionID,
		"procedure_id": nilIfEmpty(archive.ProcedureID),
		"completed":    archive.Completed,
		"commands":     archive.Commands,
		"transitions":  archive.Transitions,
		"started_at":   archive.StartedAt,
		"closed_at":    archive.ClosedAt,
		"reason":       archive.Reason,
	})
	if err != nil {
		return fmt.Errorf("archive session: %w", wrapQueryError(err))
	}
	return nil
}

// ArchiveStats summarises ended sessions for reporting.
type ArchiveStats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	TimedOut  int `json:"timed_out"`
}

// QueryArchiveStats returns aggregate counts over the session archive.
func (c *Client) QueryArchiveStats(ctx context.Context) (ArchiveStats, error) {
	results, err := surrealdb.Query[[]ArchiveStats](ctx, c.db, `
		SELECT
			count() AS total,
			count(completed = true) AS completed,
			count(reason = "timeout") AS timed_out
		FROM session_archive GROUP ALL
	`, nil)
	if err != nil {
		return ArchiveStats{}, fmt.Errorf("archive stats: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return ArchiveStats{}, nil
	}
	return (*results)[0].Result[0], nil
}

// archiveRow is the stored shape of a session archive. The option fields
// decode into pointers and are flattened at the boundary.
type archiveRow struct {
	SessionID   string                    `json:"session_id"`
	ProcedureID *string                   `json:"procedure_id,omitempty"`
	Completed   bool                      `json:"completed"`
	Commands    int                       `json:"commands"`
	Transitions []models.TransitionRecord `json:"transitions,omitempty"`
	StartedAt   time.Time                 `json:"started_at"`
	ClosedAt    time.Time                 `json:"closed_at"`
	Reason      string                    `json:"reason"`
}

func (r archiveRow) toModel() models.SessionArchive {
	archive := models.SessionArchive{
		SessionID:   r.SessionID,
		Completed:   r.Completed,
		Commands:    r.Commands,
		Transitions: r.Transitions,
		StartedAt:   r.StartedAt,
		ClosedAt:    r.ClosedAt,
		Reason:      r.Reason,
	}
	if r.ProcedureID != nil {
		archive.ProcedureID = *r.ProcedureID
	}
	return archive
}

// ListSessionArchives returns the most recent ended sessions, newest first.
func (c *Client) ListSessionArchives(ctx context.Context, limit int) ([]models.SessionArchive, error) {
	if limit <= 0 {
		limit = 20
	}
	results, err := surrealdb.Query[[]archiveRow](ctx, c.db, `
		SELECT session_id, procedure_id, completed, commands, transitions,
		       started_at, closed_at, reason
		FROM session_archive ORDER BY closed_at DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list session archives: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	rows := (*results)[0].Result
	out := make([]models.SessionArchive, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
