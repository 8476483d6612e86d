// Package embedder names the external Embedder and VectorIndex
// collaborators (§4.5.4): text-to-vector generation and vector similarity
// search both live outside this core. A brute-force cosine-similarity
// VectorIndex is provided as the reference implementation for tests and for
// deployments without a dedicated vector database, grounded on the
// fallback path core_vector_stores.py takes when no pgvector-backed index
// is configured.
package embedder

import (
	"context"
	"math"
	"sort"

	"github.com/opencontracts/corpuscore/pkg/model"
)

// SupportedDimensions are the embedding sizes §4.5.4 names explicitly;
// anything else falls back to a plain limited scan with uniform score 1.0.
var SupportedDimensions = map[int]bool{384: true, 768: true, 1536: true, 3072: true}

// Embedder turns text into a vector. Implementations live outside this
// core (an HTTP call to an embedding model, a local ONNX runtime, etc).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ScoredAnnotation pairs an Annotation with its similarity_score against a
// query vector.
type ScoredAnnotation struct {
	Annotation model.Annotation
	Score      float32
}

// VectorIndex searches a base set of annotations by embedding similarity.
// Implementations may delegate to pgvector, a dedicated ANN index, or the
// brute-force Cosine reference implementation below.
type VectorIndex interface {
	SearchByEmbedding(ctx context.Context, candidates []model.Annotation, embedderPath string, vector []float32, topK int) ([]ScoredAnnotation, error)
}

// Cosine is a brute-force, in-memory VectorIndex: it scores every candidate
// against the query vector and returns the top K by cosine similarity. It
// keeps embeddings keyed by (embedderPath, annotationID) so the same
// annotation can carry vectors from more than one embedding model.
type Cosine struct {
	vectors map[string]map[uint][]float32
}

// NewCosine returns an empty brute-force vector index.
func NewCosine() *Cosine {
	return &Cosine{vectors: map[string]map[uint][]float32{}}
}

// Index stores annotationID's embedding under embedderPath for later search.
func (c *Cosine) Index(embedderPath string, annotationID uint, vector []float32) {
	bucket, ok := c.vectors[embedderPath]
	if !ok {
		bucket = map[uint][]float32{}
		c.vectors[embedderPath] = bucket
	}
	bucket[annotationID] = vector
}

// SearchByEmbedding implements VectorIndex.
func (c *Cosine) SearchByEmbedding(_ context.Context, candidates []model.Annotation, embedderPath string, vector []float32, topK int) ([]ScoredAnnotation, error) {
	bucket := c.vectors[embedderPath]
	scored := make([]ScoredAnnotation, 0, len(candidates))
	for _, a := range candidates {
		v, ok := bucket[a.ID]
		if !ok {
			continue
		}
		scored = append(scored, ScoredAnnotation{Annotation: a, Score: cosineSimilarity(vector, v)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func cosineSimilarity(a, b []float32) float32 {
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
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
