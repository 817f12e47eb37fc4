package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"clipscribe/core"
)

// MilvusSearchIndex is the alternative search backend, selected with
// search_index = "milvus". One vector per video, replaced on re-index.
type MilvusSearchIndex struct {
	mc    client.Client
	coll  string
	embed Embedder
}

type MilvusOptions struct {
	Addr       string
	Username   string
	Password   string
	APIKey     string
	Collection string
}

func NewMilvusSearchIndex(ctx context.Context, opts MilvusOptions, embed Embedder) (*MilvusSearchIndex, error) {
	if opts.Collection == "" {
		opts.Collection = "video_transcripts"
	}
	mc, err := client.NewClient(ctx, client.Config{
		Address:  opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		APIKey:   opts.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}

	s := &MilvusSearchIndex{mc: mc, coll: opts.Collection, embed: embed}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MilvusSearchIndex) ensureCollection(ctx context.Context) error {
	has, err := s.mc.HasCollection(ctx, s.coll)
	if err != nil {
		return err
	}
	if !has {
		schema := entity.NewSchema()
		schema.WithField(entity.NewField().WithName("id").WithIsAutoID(true).WithIsPrimaryKey(true).WithDataType(entity.FieldTypeInt64))
		schema.WithField(entity.NewField().WithName("video_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64))
		schema.WithField(entity.NewField().WithName("name").WithDataType(entity.FieldTypeVarChar).WithMaxLength(512))
		schema.WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(embeddingDim)))
		if err := s.mc.CreateCollection(ctx, schema, int32(2)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return fmt.Errorf("new hnsw index: %w", err)
	}
	if err := s.mc.CreateIndex(ctx, s.coll, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := s.mc.LoadCollection(ctx, s.coll, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func (s *MilvusSearchIndex) Index(ctx context.Context, rec core.VideoRecord) error {
	if rec.Transcription == nil {
		return nil
	}
	vec, err := s.embed.Embed(ctx, *rec.Transcription)
	if err != nil {
		return fmt.Errorf("embed transcript: %w", err)
	}

	// Milvus has no upsert on scalar fields, so drop any prior entry first.
	expr := fmt.Sprintf("video_id == \"%s\"", escapeMilvus(rec.ID))
	if err := s.mc.Delete(ctx, s.coll, "", expr); err != nil {
		return fmt.Errorf("delete prior entry: %w", err)
	}

	_, err = s.mc.Insert(ctx, s.coll, "",
		entity.NewColumnVarChar("video_id", []string{rec.ID}),
		entity.NewColumnVarChar("name", []string{rec.Name}),
		entity.NewColumnFloatVector("vector", embeddingDim, [][]float32{vec}),
	)
	if err != nil {
		return fmt.Errorf("insert transcript vector: %w", err)
	}
	return nil
}

func (s *MilvusSearchIndex) Search(ctx context.Context, query string, topK int) ([]core.SearchHit, error) {
	if topK <= 0 {
		topK = 5
	}
	vec, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	sp, _ := entity.NewIndexHNSWSearchParam(74)
	res, err := s.mc.Search(ctx, s.coll, []string{}, "", []string{"video_id", "name"},
		[]entity.Vector{entity.FloatVector(vec)}, "vector", entity.COSINE, topK, sp)
	if err != nil {
		return nil, fmt.Errorf("search milvus: %w", err)
	}

	var hits []core.SearchHit
	for _, r := range res {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			var videoID, name string
			if c, ok := cols["video_id"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					videoID = data[i]
				}
			}
			if c, ok := cols["name"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					name = data[i]
				}
			}
			hits = append(hits, core.SearchHit{VideoID: videoID, Name: name, Score: float64(r.Scores[i])})
		}
	}
	return hits, nil
}

func escapeMilvus(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
