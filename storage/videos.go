package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"clipscribe/core"
)

// ErrNotFound is returned when a video id does not resolve to a record.
var ErrNotFound = errors.New("video not found")

// VideoStore is the persistence collaborator of the pipeline. Records are
// created by ingestion, mutated once by the transcription trigger and read
// by the completion endpoint; nothing deletes them here.
type VideoStore interface {
	CreateVideo(ctx context.Context, name, path string) (core.VideoRecord, error)
	GetVideo(ctx context.Context, id string) (core.VideoRecord, error)
	SetTranscription(ctx context.Context, id, text string) error
	ListVideos(ctx context.Context) ([]core.VideoRecord, error)
}

// MemoryVideoStore keeps records in process memory. Default backend and
// the substitutable fake for tests.
type MemoryVideoStore struct {
	mu     sync.RWMutex
	videos map[string]core.VideoRecord
}

func NewMemoryVideoStore() *MemoryVideoStore {
	return &MemoryVideoStore{videos: map[string]core.VideoRecord{}}
}

func (s *MemoryVideoStore) CreateVideo(ctx context.Context, name, path string) (core.VideoRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := core.VideoRecord{
		ID:        uuid.NewString(),
		Name:      name,
		Path:      path,
		CreatedAt: time.Now().UTC(),
	}
	s.videos[rec.ID] = rec
	return rec, nil
}

func (s *MemoryVideoStore) GetVideo(ctx context.Context, id string) (core.VideoRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.videos[id]
	if !ok {
		return core.VideoRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryVideoStore) SetTranscription(ctx context.Context, id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.videos[id]
	if !ok {
		return ErrNotFound
	}
	rec.Transcription = &text
	s.videos[id] = rec
	return nil
}

func (s *MemoryVideoStore) ListVideos(ctx context.Context) ([]core.VideoRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.VideoRecord, 0, len(s.videos))
	for _, rec := range s.videos {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
