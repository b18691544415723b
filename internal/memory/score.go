package memory

import (
	"math"
	"time"

	"github.com/fieldvoice/fieldvoice/internal/models"
)

// Weights controls the combined retrieval score. The three components are
// each in [0,1]; callers normally keep the weights summing to 1.
type Weights struct {
	Similarity float64
	Recency    float64
	Importance float64
}

// EqualWeights is the default: all three components count the same.
func EqualWeights() Weights {
	return Weights{Similarity: 1.0 / 3.0, Recency: 1.0 / 3.0, Importance: 1.0 / 3.0}
}

// cosineSimilarity maps the cosine of two vectors into [0,1].
// Mismatched or zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (cos + 1) / 2
}

// recencyScore decays exponentially with age: 1.0 now, 0.5 after one
// half-life, approaching 0 for ancient records.
func recencyScore(recordTime, now time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 1
	}
	age := now.Sub(recordTime)
	if age <= 0 {
		return 1
	}
	return math.Exp2(-age.Hours() / halfLife.Hours())
}

// combinedScore computes similarity*w1 + recency*w2 + importance*w3.
func combinedScore(rec models.MemoryRecord, query []float32, now time.Time, w Weights, halfLife time.Duration) float64 {
	return cosineSimilarity(rec.Embedding, query)*w.Similarity +
		recencyScore(rec.Timestamp, now, halfLife)*w.Recency +
		rec.Importance*w.Importance
}
