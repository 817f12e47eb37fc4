// Package server exposes the upload-transcribe-complete pipeline over
// HTTP. Every request is handled independently; there is no cross-request
// locking anywhere in the pipeline.
package server

import (
	"net/http"

	"go.uber.org/zap"

	"clipscribe/config"
	"clipscribe/core"
	"clipscribe/processors"
	"clipscribe/storage"
)

// Server wires the process-scoped collaborators into the handlers. All of
// them are constructed once at startup and injected, so tests substitute
// fakes freely.
type Server struct {
	cfg         config.Config
	store       storage.VideoStore
	search      storage.SearchIndex
	prompts     []core.Prompt
	transcriber processors.Transcriber
	completer   processors.Completer
	log         *zap.Logger
}

func New(cfg config.Config, store storage.VideoStore, search storage.SearchIndex,
	prompts []core.Prompt, transcriber processors.Transcriber,
	completer processors.Completer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:         cfg,
		store:       store,
		search:      search,
		prompts:     prompts,
		transcriber: transcriber,
		completer:   completer,
		log:         log,
	}
}

// Routes builds the request mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /videos", s.handleUploadVideo)
	mux.HandleFunc("GET /videos", s.handleListVideos)
	mux.HandleFunc("POST /videos/search", s.handleSearchVideos)
	mux.HandleFunc("POST /videos/{videoId}/transcription", s.handleCreateTranscription)
	mux.HandleFunc("POST /ai/complete", s.handleComplete)
	mux.HandleFunc("GET /prompts", s.handleListPrompts)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	core.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	core.WriteJSON(w, http.StatusOK, s.prompts)
}
