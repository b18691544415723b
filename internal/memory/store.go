package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fieldvoice/fieldvoice/internal/models"
	"github.com/google/uuid"
)

// persistTimeout bounds the best-effort background write of a new record.
const persistTimeout = 5 * time.Second

// Persister is the external document store a record is durably written to.
// Persistence is best-effort: a failed write is logged, never surfaced to
// the command that produced the record.
type Persister interface {
	PutMemoryRecord(ctx context.Context, rec models.MemoryRecord) error
}

// Config tunes retrieval scoring and eviction.
type Config struct {
	Weights         Weights
	RecencyHalfLife time.Duration
	// MaxAge prunes records older than this during eviction.
	MaxAge time.Duration
	// MinKeepImportance exempts important records from age-based eviction.
	MinKeepImportance float64
}

// DefaultConfig matches the documented retrieval defaults.
func DefaultConfig() Config {
	return Config{
		Weights:           EqualWeights(),
		RecencyHalfLife:   24 * time.Hour,
		MaxAge:            90 * 24 * time.Hour,
		MinKeepImportance: 0.2,
	}
}

// Store is the append-only retrieval memory. Records are never edited in
// place, so readers can work from a slice snapshot taken under RLock while
// writers append concurrently.
type Store struct {
	mu      sync.RWMutex
	records []models.MemoryRecord

	embedder Embedder
	persist  Persister
	cfg      Config
	logger   *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithPersister enables best-effort durable writes of inserted records.
func WithPersister(p Persister) StoreOption {
	return func(s *Store) { s.persist = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a memory store. embedder may be nil for stores that are
// only fed pre-embedded records (tests, hydration from the document store).
func NewStore(embedder Embedder, cfg Config, opts ...StoreOption) *Store {
	s := &Store{
		embedder: embedder,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert embeds text and appends a new record. The durable write happens in
// the background; only the embedding step can fail the insert.
func (s *Store) Insert(ctx context.Context, text, assetID string, importance float64) (models.MemoryRecord, error) {
	if s.embedder == nil {
		return models.MemoryRecord{}, fmt.Errorf("no embedder configured: %w", models.ErrMemoryStore)
	}
	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return models.MemoryRecord{}, fmt.Errorf("embed record: %w: %w", models.ErrMemoryStore, err)
	}

	rec := models.MemoryRecord{
		ID:         uuid.New().String(),
		Embedding:  embedding,
		SourceText: text,
		AssetID:    assetID,
		Importance: clamp01(importance),
		Timestamp:  time.Now(),
	}
	s.append(rec)

	if s.persist != nil {
		go s.persistRecord(rec)
	}
	return rec, nil
}

// Hydrate appends already-embedded records, typically loaded from the
// document store at startup.
func (s *Store) Hydrate(records []models.MemoryRecord) {
	s.mu.Lock()
	s.records = append(s.records, records...)
	s.mu.Unlock()
}

func (s *Store) append(rec models.MemoryRecord) {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
}

// persistRecord writes one record to the document store off the command path.
func (s *Store) persistRecord(rec models.MemoryRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.persist.PutMemoryRecord(ctx, rec); err != nil {
		s.logger.Warn("memory record persist failed", "record_id", rec.ID, "error", err)
	}
}

// Retrieve returns up to k records ranked by non-increasing combined score,
// ties broken by most-recent timestamp first. An empty store or k <= 0
// yields an empty slice, never an error.
func (s *Store) Retrieve(queryEmbedding []float32, k int, assetFilter string) []models.ScoredRecord {
	if k <= 0 {
		return []models.ScoredRecord{}
	}

	// Snapshot: append-only records mean the slice header copy is a
	// consistent view even while writers keep appending.
	s.mu.RLock()
	snapshot := s.records
	s.mu.RUnlock()

	now := time.Now()
	scored := make([]models.ScoredRecord, 0, len(snapshot))
	for _, rec := range snapshot {
		if assetFilter != "" && rec.AssetID != assetFilter {
			continue
		}
		scored = append(scored, models.ScoredRecord{
			Record: rec,
			Score:  combinedScore(rec, queryEmbedding, now, s.cfg.Weights, s.cfg.RecencyHalfLife),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Record.Timestamp.After(scored[j].Record.Timestamp)
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// RetrieveText embeds the query and retrieves against it.
func (s *Store) RetrieveText(ctx context.Context, query string, k int, assetFilter string) ([]models.ScoredRecord, error) {
	if k <= 0 {
		return []models.ScoredRecord{}, nil
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("no embedder configured: %w", models.ErrMemoryStore)
	}
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w: %w", models.ErrMemoryStore, err)
	}
	return s.Retrieve(embedding, k, assetFilter), nil
}

// Evict prunes records older than MaxAge whose importance falls below
// MinKeepImportance. Returns the dropped records so the caller can remove
// their durable copies too. This is the one operation that rewrites the
// slice, so it takes the write lock for its duration; retrievals in flight
// keep reading their own snapshot.
func (s *Store) Evict(now time.Time) []models.MemoryRecord {
	if s.cfg.MaxAge <= 0 {
		return nil
	}
	cutoff := now.Add(-s.cfg.MaxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]models.MemoryRecord, 0, len(s.records))
	var dropped []models.MemoryRecord
	for _, rec := range s.records {
		if rec.Timestamp.Before(cutoff) && rec.Importance < s.cfg.MinKeepImportance {
			dropped = append(dropped, rec)
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	if len(dropped) > 0 {
		s.logger.Info("memory eviction", "dropped", len(dropped), "kept", len(kept))
	}
	return dropped
}

// Len reports the current record count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
