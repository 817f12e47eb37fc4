package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"clipscribe/core"
	"clipscribe/storage"
)

// handleUploadVideo stages one audio file and creates its record. The
// part stream is piped straight to the staging file, never buffered
// whole in memory, and the record is created only after the stream is
// fully flushed to disk, so a write failure never leaves a record
// pointing at a missing file.
func (s *Server) handleUploadVideo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		core.WriteRequestError(w, core.ValidationErr("Missing file input."))
		return
	}
	part, err := filePart(mr)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			core.WriteError(w, http.StatusRequestEntityTooLarge, "File exceeds the upload limit.")
			return
		}
		core.WriteRequestError(w, core.ValidationErr("Missing file input."))
		return
	}
	defer part.Close()

	name := filepath.Base(part.FileName())
	ext := filepath.Ext(name)
	if ext != s.cfg.AcceptedExtension {
		core.WriteRequestError(w, core.PreconditionErr(
			fmt.Sprintf("Invalid input type, please upload a %s.",
				strings.ToUpper(strings.TrimPrefix(s.cfg.AcceptedExtension, ".")))))
		return
	}

	base := strings.TrimSuffix(name, ext)
	staged := filepath.Join(s.cfg.StagingDir, fmt.Sprintf("%s-%s%s", base, uuid.NewString(), ext))

	out, err := os.Create(staged)
	if err != nil {
		s.log.Error("create staging file", zap.String("path", staged), zap.Error(err))
		core.WriteError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}
	if _, err := io.Copy(out, part); err != nil {
		out.Close()
		os.Remove(staged)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			core.WriteError(w, http.StatusRequestEntityTooLarge, "File exceeds the upload limit.")
			return
		}
		s.log.Error("write staging file", zap.String("path", staged), zap.Error(err))
		core.WriteError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}
	if err := out.Close(); err != nil {
		os.Remove(staged)
		core.WriteError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}

	rec, err := s.store.CreateVideo(r.Context(), name, staged)
	if err != nil {
		s.log.Error("create video record", zap.Error(err))
		core.WriteError(w, http.StatusInternalServerError, "failed to create video record")
		return
	}

	s.log.Info("video staged",
		zap.String("id", rec.ID),
		zap.String("name", rec.Name),
		zap.String("path", rec.Path))
	core.WriteJSON(w, http.StatusOK, map[string]core.VideoRecord{"video": rec})
}

// filePart walks the multipart stream to the "file" field, draining any
// preceding fields. io.EOF means the field is absent.
func filePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := s.store.ListVideos(r.Context())
	if err != nil {
		s.log.Error("list videos", zap.Error(err))
		core.WriteError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}
	if videos == nil {
		videos = []core.VideoRecord{}
	}
	core.WriteJSON(w, http.StatusOK, videos)
}

// handleCreateTranscription runs the speech-to-text provider on the
// staged file and persists the transcript. Re-running overwrites.
func (s *Server) handleCreateTranscription(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("videoId")

	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		core.WriteRequestError(w, core.ValidationErr("invalid json"))
		return
	}

	rec, err := s.store.GetVideo(r.Context(), videoID)
	if errors.Is(err, storage.ErrNotFound) {
		core.WriteRequestError(w, core.NotFoundErr("Video not found."))
		return
	}
	if err != nil {
		s.log.Error("get video", zap.String("id", videoID), zap.Error(err))
		core.WriteError(w, http.StatusInternalServerError, "failed to load video record")
		return
	}

	if _, err := os.Stat(rec.Path); err != nil {
		core.WriteRequestError(w, core.PreconditionErr("Staged audio file is unreadable."))
		return
	}

	text, err := s.transcriber.Transcribe(r.Context(), rec.Path, body.Prompt)
	if err != nil {
		s.log.Error("transcription provider failed", zap.String("id", rec.ID), zap.Error(err))
		core.WriteRequestError(w, core.UpstreamErr("Transcription provider failed."))
		return
	}

	if err := s.store.SetTranscription(r.Context(), rec.ID, text); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			core.WriteRequestError(w, core.NotFoundErr("Video not found."))
			return
		}
		s.log.Error("persist transcription", zap.String("id", rec.ID), zap.Error(err))
		core.WriteError(w, http.StatusInternalServerError, "failed to persist transcription")
		return
	}

	// Index for transcript search. Best effort: a search backend outage
	// must not fail the trigger.
	rec.Transcription = &text
	if err := s.search.Index(r.Context(), rec); err != nil {
		s.log.Warn("index transcript", zap.String("id", rec.ID), zap.Error(err))
	}

	s.log.Info("transcription stored", zap.String("id", rec.ID), zap.Int("chars", len(text)))
	core.WriteJSON(w, http.StatusOK, map[string]string{"transcription": text})
}

func (s *Server) handleSearchVideos(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
		TopK  int    `json:"topK"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		core.WriteRequestError(w, core.ValidationErr("invalid json"))
		return
	}
	if strings.TrimSpace(body.Query) == "" {
		core.WriteRequestError(w, core.ValidationErr("query is required"))
		return
	}

	hits, err := s.search.Search(r.Context(), body.Query, body.TopK)
	if err != nil {
		s.log.Error("search transcripts", zap.Error(err))
		core.WriteRequestError(w, core.UpstreamErr("Search backend failed."))
		return
	}
	if hits == nil {
		hits = []core.SearchHit{}
	}
	core.WriteJSON(w, http.StatusOK, map[string][]core.SearchHit{"hits": hits})
}
