package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"clipscribe/config"
	"clipscribe/logging"
	"clipscribe/processors"
	"clipscribe/server"
	"clipscribe/storage"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the configuration file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	jsonLogs := flag.Bool("json-logs", false, "emit logs as JSON")
	flag.Parse()

	log, err := logging.New(logging.Options{Verbose: *verbose, JSON: *jsonLogs})
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.StagingDir, 0o755); err != nil {
		log.Fatal("create staging dir", zap.String("dir", cfg.StagingDir), zap.Error(err))
	}

	ctx := context.Background()

	store, closeStore, err := buildStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("init video store", zap.Error(err))
	}
	defer closeStore()

	cli := processors.NewOpenAIClient(cfg)

	search := buildSearchIndex(ctx, cfg, store, cli, log)

	var transcriber processors.Transcriber
	var completer processors.Completer
	if cfg.HasValidAPI() && os.Getenv("PROVIDERS") != "mock" {
		transcriber = processors.NewWhisperTranscriber(cli, cfg.TranscribeModel)
		completer = processors.NewOpenAICompleter(cli, cfg.ChatModel)
	} else {
		log.Warn("no provider API key configured, using mock providers")
		transcriber = processors.MockTranscriber{}
		completer = &processors.MockCompleter{}
	}

	srv := server.New(cfg, store, search, storage.DefaultPrompts(), transcriber, completer, log)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Routes(),
	}

	go func() {
		log.Info("server listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("store", cfg.Store),
			zap.String("search_index", cfg.SearchIndex))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("serve", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}

func buildStore(ctx context.Context, cfg config.Config, log *zap.Logger) (storage.VideoStore, func(), error) {
	if cfg.Store == "postgres" {
		s, err := storage.NewPostgresVideoStore(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	log.Info("using in-memory video store")
	return storage.NewMemoryVideoStore(), func() {}, nil
}

// buildSearchIndex picks the configured backend and falls back to the
// in-memory index when the backend cannot be reached.
func buildSearchIndex(ctx context.Context, cfg config.Config, store storage.VideoStore,
	cli *openai.Client, log *zap.Logger) storage.SearchIndex {
	switch cfg.SearchIndex {
	case "pgvector":
		pg, ok := store.(*storage.PostgresVideoStore)
		if !ok {
			log.Warn("pgvector search requires store = \"postgres\", falling back to memory index")
			return storage.NewMemorySearchIndex()
		}
		embed := processors.NewOpenAIEmbedder(cli, cfg.EmbeddingModel)
		s, err := storage.NewPgSearchIndex(ctx, pg.Pool(), embed)
		if err != nil {
			log.Warn("init pgvector search index failed, falling back to memory index", zap.Error(err))
			return storage.NewMemorySearchIndex()
		}
		return s
	case "milvus":
		embed := processors.NewOpenAIEmbedder(cli, cfg.EmbeddingModel)
		s, err := storage.NewMilvusSearchIndex(ctx, storage.MilvusOptions{
			Addr:       cfg.MilvusAddr,
			Username:   os.Getenv("MILVUS_USERNAME"),
			Password:   os.Getenv("MILVUS_PASSWORD"),
			APIKey:     os.Getenv("MILVUS_API_KEY"),
			Collection: cfg.MilvusCollection,
		}, embed)
		if err != nil {
			log.Warn("init milvus search index failed, falling back to memory index", zap.Error(err))
			return storage.NewMemorySearchIndex()
		}
		return s
	default:
		return storage.NewMemorySearchIndex()
	}
}
