package storage

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"clipscribe/core"
)

// Embedder turns text into a fixed-size vector. Implemented by the
// provider-backed embedder in processors and by fakes in tests.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchIndex answers transcript queries. Indexing runs best-effort after
// a successful transcription; a re-transcription replaces the entry.
type SearchIndex interface {
	Index(ctx context.Context, rec core.VideoRecord) error
	Search(ctx context.Context, query string, topK int) ([]core.SearchHit, error)
}

// MemorySearchIndex scores with normalized term-frequency cosine, so it
// needs no provider and works offline.
type MemorySearchIndex struct {
	mu   sync.RWMutex
	docs map[string]memoryDoc
}

type memoryDoc struct {
	name  string
	embed map[string]float64
}

func NewMemorySearchIndex() *MemorySearchIndex {
	return &MemorySearchIndex{docs: map[string]memoryDoc{}}
}

func (s *MemorySearchIndex) Index(ctx context.Context, rec core.VideoRecord) error {
	if rec.Transcription == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[rec.ID] = memoryDoc{name: rec.Name, embed: embedText(*rec.Transcription)}
	return nil
}

func (s *MemorySearchIndex) Search(ctx context.Context, query string, topK int) ([]core.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	qv := embedText(query)
	hits := make([]core.SearchHit, 0, len(s.docs))
	for id, doc := range s.docs {
		score := cosine(qv, doc.embed)
		if score <= 0 {
			continue
		}
		hits = append(hits, core.SearchHit{VideoID: id, Name: doc.name, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].VideoID < hits[j].VideoID
		}
		return hits[i].Score > hits[j].Score
	})
	if topK <= 0 {
		topK = 5
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func embedText(text string) map[string]float64 {
	m := map[string]float64{}
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		m[tok]++
	}
	var sum float64
	for _, v := range m {
		sum += v * v
	}
	if sum == 0 {
		return m
	}
	norm := math.Sqrt(sum)
	for k, v := range m {
		m[k] = v / norm
	}
	return m
}

func cosine(a, b map[string]float64) float64 {
	var dot float64
	for k, va := range a {
		if vb, ok := b[k]; ok {
			dot += va * vb
		}
	}
	return dot
}
