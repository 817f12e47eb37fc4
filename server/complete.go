package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"clipscribe/core"
	"clipscribe/processors"
	"clipscribe/storage"
)

type completeRequest struct {
	VideoID     string   `json:"videoId"`
	Template    string   `json:"template"`
	Temperature *float32 `json:"temperature"`
}

// handleComplete renders the template against the record's transcription
// and forwards the provider's token stream to the caller. It performs no
// writes, so a dropped connection only has to stop the forwarding.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.WriteRequestError(w, core.ValidationErr("invalid json"))
		return
	}

	// Shape validation happens before any record lookup.
	if _, err := uuid.Parse(req.VideoID); err != nil {
		core.WriteRequestError(w, core.ValidationErr("videoId must be a valid UUID"))
		return
	}
	temperature := float32(0.5)
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if temperature < 0 || temperature > 1 {
		core.WriteRequestError(w, core.ValidationErr("temperature must be between 0 and 1"))
		return
	}

	rec, err := s.store.GetVideo(r.Context(), req.VideoID)
	if errors.Is(err, storage.ErrNotFound) {
		core.WriteRequestError(w, core.NotFoundErr("Video not found."))
		return
	}
	if err != nil {
		s.log.Error("get video", zap.String("id", req.VideoID), zap.Error(err))
		core.WriteError(w, http.StatusInternalServerError, "failed to load video record")
		return
	}
	if rec.Transcription == nil {
		core.WriteRequestError(w, core.PreconditionErr("Video transcription was not generated yet."))
		return
	}

	prompt := processors.RenderTemplate(req.Template, *rec.Transcription)

	stream, err := s.completer.Complete(r.Context(), prompt, temperature)
	if err != nil {
		s.log.Error("completion provider failed", zap.String("id", rec.ID), zap.Error(err))
		core.WriteRequestError(w, core.UpstreamErr("Completion provider failed."))
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	flusher, _ := w.(http.Flusher)

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			// Headers are already on the wire; all we can do is stop.
			s.log.Error("completion stream interrupted", zap.String("id", rec.ID), zap.Error(err))
			return
		}
		if chunk == "" {
			continue
		}
		if _, err := io.WriteString(w, chunk); err != nil {
			// Client went away; cancelling r.Context() closes upstream.
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
