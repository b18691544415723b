// Package db_test contains integration tests for the SurrealDB client.
package db_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldvoice/fieldvoice/internal/db"
	"github.com/fieldvoice/fieldvoice/internal/models"
)

// getTestConfig returns config from environment or defaults for local testing.
func getTestConfig() db.Config {
	return db.Config{
		URL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		Namespace: getEnv("SURREALDB_NAMESPACE", "test_fieldvoice"),
		Database:  getEnv("SURREALDB_DATABASE", "test_voice"),
		Username:  getEnv("SURREALDB_USER", "root"),
		Password:  getEnv("SURREALDB_PASS", "root"),
		AuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func newTestClient(t *testing.T) (*db.Client, context.Context) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client, err := db.NewClient(ctx, getTestConfig(), logger)
	require.NoError(t, err, "should connect to SurrealDB")
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	require.NoError(t, client.InitSchema(ctx), "schema init should succeed")
	require.NoError(t, client.WipeData(ctx), "wipe should succeed")
	return client, ctx
}

func TestClientConnect(t *testing.T) {
	client, _ := newTestClient(t)
	assert.NotNil(t, client.DB(), "should have valid DB reference")
}

func TestMemoryRecordRoundTrip(t *testing.T) {
	client, ctx := newTestClient(t)

	rec := models.MemoryRecord{
		ID:         "mem-1",
		SourceText: "replaced the bearing on PUMP-001",
		Embedding:  make([]float32, 384),
		AssetID:    "PUMP-001",
		Importance: 0.7,
		Timestamp:  time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, client.PutMemoryRecord(ctx, rec))

	// Idempotent on ID.
	require.NoError(t, client.PutMemoryRecord(ctx, rec))

	count, err := client.CountMemoryRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "upsert on the same ID should not duplicate")

	records, err := client.ListMemoryRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec.SourceText, records[0].SourceText)
	assert.Equal(t, rec.AssetID, records[0].AssetID)
	assert.InDelta(t, rec.Importance, records[0].Importance, 1e-9)

	require.NoError(t, client.DeleteMemoryRecord(ctx, rec.ID))
	count, err = client.CountMemoryRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestArchiveSessionAndStats(t *testing.T) {
	client, ctx := newTestClient(t)

	now := time.Now().UTC()
	require.NoError(t, client.ArchiveSession(ctx, models.SessionArchive{
		SessionID:   "sess-1",
		ProcedureID: "pump-inspection",
		Completed:   true,
		Commands:    7,
		StartedAt:   now.Add(-10 * time.Minute),
		ClosedAt:    now,
		Reason:      "closed",
	}))
	require.NoError(t, client.ArchiveSession(ctx, models.SessionArchive{
		SessionID: "sess-2",
		Commands:  1,
		StartedAt: now.Add(-time.Hour),
		ClosedAt:  now.Add(-30 * time.Minute),
		Reason:    "timeout",
	}))

	stats, err := client.QueryArchiveStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.TimedOut)

	archives, err := client.ListSessionArchives(ctx, 10)
	require.NoError(t, err)
	require.Len(t, archives, 2)
	assert.Equal(t, "sess-1", archives[0].SessionID, "newest first")
	assert.Equal(t, "pump-inspection", archives[0].ProcedureID)
	assert.Empty(t, archives[1].ProcedureID)
}

func TestProcedureRoundTrip(t *testing.T) {
	client, ctx := newTestClient(t)

	proc := models.Procedure{
		ID:      "pump-inspection",
		Title:   "Pump Inspection",
		AssetID: "PUMP-004",
		Steps: []models.Step{
			{Index: 0, Instruction: "Isolate the pump.", SafetyFlags: []string{"lockout required"}},
			{Index: 1, Instruction: "Check the seals."},
		},
		Duration: 10 * time.Minute,
	}

	require.NoError(t, client.PutProcedure(ctx, proc))

	// Re-sync with an extra step replaces the stored version.
	proc.Steps = append(proc.Steps, models.Step{Index: 2, Instruction: "Restore power."})
	require.NoError(t, client.PutProcedure(ctx, proc))

	got, err := client.GetProcedure(ctx, proc.ID)
	require.NoError(t, err)
	assert.Equal(t, proc.Title, got.Title)
	assert.Equal(t, proc.AssetID, got.AssetID)
	require.Len(t, got.Steps, 3)
	assert.Equal(t, []string{"lockout required"}, got.Steps[0].SafetyFlags)
	assert.Equal(t, proc.Duration, got.Duration)

	procs, err := client.ListProcedures(ctx)
	require.NoError(t, err)
	require.Len(t, procs, 1)

	_, err = client.GetProcedure(ctx, "no-such-procedure")
	assert.ErrorIs(t, err, db.ErrNotFound)
}
