package query

import (
	"context"

	"github.com/opencontracts/corpuscore/pkg/embedder"
	"github.com/opencontracts/corpuscore/pkg/model"
)

func toAnnotations(rows []AnnotationRow) []model.Annotation {
	out := make([]model.Annotation, len(rows))
	for i, r := range rows {
		out[i] = r.Annotation
	}
	return out
}

// VectorSearchRequest carries §4.5.4's query parameters: either a raw
// query vector or text to embed, restricted to a corpus, with a result cap.
type VectorSearchRequest struct {
	CorpusID        uint
	UserID          string
	Anonymous       bool
	QueryText       string
	QueryEmbedding  []float32
	EmbedderPath    string
	TopK            int
}

// VectorSearchResult pairs an AnnotationRow with its similarity score.
type VectorSearchResult struct {
	AnnotationRow
	SimilarityScore float32
}

// VectorSearch implements §4.5.4: build the version-aware base annotation
// set restricted to corpus documents with active paths, obtain a query
// embedding if only text was given, and delegate to the VectorIndex when
// the embedding dimension is one of the supported sizes; otherwise fall
// back to a plain top-K scan of the filtered set with a uniform score.
func (p *Plane) VectorSearch(ctx context.Context, req VectorSearchRequest, emb embedder.Embedder, idx embedder.VectorIndex) ([]VectorSearchResult, error) {
	corpusID := req.CorpusID
	rows, err := p.Annotations(ctx, AnnotationFilter{
		CorpusID:                    &corpusID,
		UserID:                      req.UserID,
		Anonymous:                   req.Anonymous,
		RestrictToCorpusActivePaths: true,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	topK := req.TopK
	if topK <= 0 {
		topK = 100
	}

	vector := req.QueryEmbedding
	if vector == nil && req.QueryText != "" && emb != nil {
		vector, err = emb.Embed(ctx, req.QueryText)
		if err != nil {
			return nil, err
		}
	}

	if vector != nil && embedder.SupportedDimensions[len(vector)] && idx != nil {
		candidates := toAnnotations(rows)
		scored, err := idx.SearchByEmbedding(ctx, candidates, req.EmbedderPath, vector, topK)
		if err != nil {
			return nil, err
		}
		byID := make(map[uint]AnnotationRow, len(rows))
		for _, r := range rows {
			byID[r.ID] = r
		}
		out := make([]VectorSearchResult, 0, len(scored))
		for _, s := range scored {
			row, ok := byID[s.Annotation.ID]
			if !ok {
				continue
			}
			out = append(out, VectorSearchResult{AnnotationRow: row, SimilarityScore: s.Score})
		}
		return out, nil
	}

	if len(rows) > topK {
		rows = rows[:topK]
	}
	out := make([]VectorSearchResult, len(rows))
	for i, r := range rows {
		out[i] = VectorSearchResult{AnnotationRow: r, SimilarityScore: 1.0}
	}
	return out, nil
}
