package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clipscribe/config"
	"clipscribe/core"
	"clipscribe/processors"
	"clipscribe/storage"
)

type testEnv struct {
	srv         *Server
	mux         *http.ServeMux
	store       *storage.MemoryVideoStore
	transcriber *processors.MockTranscriber
	completer   *processors.MockCompleter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.StagingDir = t.TempDir()

	store := storage.NewMemoryVideoStore()
	transcriber := &processors.MockTranscriber{Text: "the lecture covers neural networks in depth"}
	completer := &processors.MockCompleter{Chunks: []string{"A short ", "summary."}}

	srv := New(cfg, store, storage.NewMemorySearchIndex(), storage.DefaultPrompts(),
		transcriber, completer, zap.NewNop())

	return &testEnv{
		srv:         srv,
		mux:         srv.Routes(),
		store:       store,
		transcriber: transcriber,
		completer:   completer,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func multipartUpload(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/videos", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, path string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func uploadVideo(t *testing.T, e *testEnv, filename string) core.VideoRecord {
	t.Helper()
	rec := e.do(multipartUpload(t, "file", filename, []byte("mp3 bytes")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Video core.VideoRecord `json:"video"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Video
}

func TestUploadRejectsMissingFile(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/videos", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=empty")

	rec := e.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing file input.", errorBody(t, rec))
}

func TestUploadRejectsWrongExtension(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(multipartUpload(t, "file", "lecture.wav", []byte("wav bytes")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid input type, please upload a MP3.", errorBody(t, rec))
}

func TestUploadExtensionMatchIsCaseSensitive(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(multipartUpload(t, "file", "lecture.MP3", []byte("mp3 bytes")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRejectsBodyOverSizeLimit(t *testing.T) {
	e := newTestEnv(t)
	e.srv.cfg.MaxUploadBytes = 16

	rec := e.do(multipartUpload(t, "file", "big.mp3", bytes.Repeat([]byte("a"), 1024)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	// Rejected by the transport cap before any record is created.
	videos, err := e.store.ListVideos(t.Context())
	require.NoError(t, err)
	assert.Empty(t, videos)
}

func TestUploadIgnoresOtherFormFields(t *testing.T) {
	e := newTestEnv(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "ahead of the file"))
	part, err := mw.CreateFormFile("file", "lecture.mp3")
	require.NoError(t, err)
	_, err = part.Write([]byte("mp3 bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/videos", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := e.do(req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestUploadStagesFileAndCreatesRecord(t *testing.T) {
	e := newTestEnv(t)
	video := uploadVideo(t, e, "lecture.mp3")

	assert.NotEmpty(t, video.ID)
	assert.Equal(t, "lecture.mp3", video.Name)
	assert.Nil(t, video.Transcription)

	// Staged name keeps the basename plus a unique suffix.
	base := filepath.Base(video.Path)
	assert.True(t, strings.HasPrefix(base, "lecture-"), base)
	assert.True(t, strings.HasSuffix(base, ".mp3"), base)

	data, err := os.ReadFile(video.Path)
	require.NoError(t, err)
	assert.Equal(t, "mp3 bytes", string(data))
}

func TestConcurrentNamesGetDistinctStagedPaths(t *testing.T) {
	e := newTestEnv(t)
	first := uploadVideo(t, e, "a.mp3")
	second := uploadVideo(t, e, "a.mp3")

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.Path, second.Path)
}

func TestListVideosOrderedByCreation(t *testing.T) {
	e := newTestEnv(t)
	first := uploadVideo(t, e, "one.mp3")
	second := uploadVideo(t, e, "two.mp3")

	rec := e.do(httptest.NewRequest(http.MethodGet, "/videos", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var videos []core.VideoRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &videos))
	require.Len(t, videos, 2)
	assert.Equal(t, []string{first.ID, second.ID}, []string{videos[0].ID, videos[1].ID})
}

func TestTranscriptionUnknownVideo(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(jsonRequest(t, http.MethodPost, "/videos/nope/transcription", map[string]string{}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTranscriptionFailsWhenStagedFileUnreadable(t *testing.T) {
	e := newTestEnv(t)
	video, err := e.store.CreateVideo(t.Context(), "ghost.mp3", "/does/not/exist.mp3")
	require.NoError(t, err)

	rec := e.do(jsonRequest(t, http.MethodPost, "/videos/"+video.ID+"/transcription", map[string]string{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Staged audio file is unreadable.", errorBody(t, rec))
}

func TestTranscriptionPersistsTranscript(t *testing.T) {
	e := newTestEnv(t)
	video := uploadVideo(t, e, "lecture.mp3")

	rec := e.do(jsonRequest(t, http.MethodPost, "/videos/"+video.ID+"/transcription",
		map[string]string{"prompt": "neural, networks"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := e.store.GetVideo(t.Context(), video.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Transcription)
	assert.Equal(t, "the lecture covers neural networks in depth", *stored.Transcription)
}

func TestTranscriptionProviderFailureIsUpstreamError(t *testing.T) {
	e := newTestEnv(t)
	e.transcriber.Err = errors.New("provider down")
	video := uploadVideo(t, e, "lecture.mp3")

	rec := e.do(jsonRequest(t, http.MethodPost, "/videos/"+video.ID+"/transcription", map[string]string{}))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	// No partial write: the record still has no transcription.
	stored, err := e.store.GetVideo(t.Context(), video.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Transcription)
}

// vanishingStore drops every record between lookup and write.
type vanishingStore struct {
	*storage.MemoryVideoStore
}

func (s vanishingStore) SetTranscription(ctx context.Context, id, text string) error {
	return storage.ErrNotFound
}

func TestTranscriptionRecordGoneBeforeWriteIs404(t *testing.T) {
	cfg := config.Default()
	cfg.StagingDir = t.TempDir()
	store := vanishingStore{storage.NewMemoryVideoStore()}
	srv := New(cfg, store, storage.NewMemorySearchIndex(), storage.DefaultPrompts(),
		&processors.MockTranscriber{Text: "t"}, &processors.MockCompleter{}, zap.NewNop())
	mux := srv.Routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, multipartUpload(t, "file", "lecture.mp3", []byte("mp3 bytes")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Video core.VideoRecord `json:"video"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, jsonRequest(t, http.MethodPost,
		"/videos/"+resp.Video.ID+"/transcription", map[string]string{}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Video not found.", errorBody(t, rec))
}

func TestRetranscriptionOverwrites(t *testing.T) {
	e := newTestEnv(t)
	video := uploadVideo(t, e, "lecture.mp3")

	rec := e.do(jsonRequest(t, http.MethodPost, "/videos/"+video.ID+"/transcription", map[string]string{}))
	require.Equal(t, http.StatusOK, rec.Code)

	e.transcriber.Text = "second pass transcript"
	rec = e.do(jsonRequest(t, http.MethodPost, "/videos/"+video.ID+"/transcription", map[string]string{}))
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := e.store.GetVideo(t.Context(), video.ID)
	require.NoError(t, err)
	assert.Equal(t, "second pass transcript", *stored.Transcription)
}

func TestCompleteValidatesBeforeLookup(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(jsonRequest(t, http.MethodPost, "/ai/complete",
		map[string]any{"videoId": "not-a-uuid", "template": "hi"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "videoId must be a valid UUID", errorBody(t, rec))

	video := uploadVideo(t, e, "lecture.mp3")
	rec = e.do(jsonRequest(t, http.MethodPost, "/ai/complete",
		map[string]any{"videoId": video.ID, "template": "hi", "temperature": 1.5}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "temperature must be between 0 and 1", errorBody(t, rec))
}

func TestCompleteUnknownVideo(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(jsonRequest(t, http.MethodPost, "/ai/complete",
		map[string]any{"videoId": "6f9619ff-8b86-4d01-b42d-00c04fc964ff", "template": "hi"}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompleteRequiresTranscription(t *testing.T) {
	e := newTestEnv(t)
	video := uploadVideo(t, e, "lecture.mp3")

	for _, payload := range []map[string]any{
		{"videoId": video.ID, "template": "Summarize: {transcription}"},
		{"videoId": video.ID, "template": "no placeholder", "temperature": 0.9},
	} {
		rec := e.do(jsonRequest(t, http.MethodPost, "/ai/complete", payload))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Video transcription was not generated yet.", errorBody(t, rec))
	}
}

func transcribe(t *testing.T, e *testEnv, videoID string) {
	t.Helper()
	rec := e.do(jsonRequest(t, http.MethodPost, "/videos/"+videoID+"/transcription", map[string]string{}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCompleteStreamsRenderedPrompt(t *testing.T) {
	e := newTestEnv(t)
	video := uploadVideo(t, e, "lecture.mp3")
	transcribe(t, e, video.ID)

	rec := e.do(jsonRequest(t, http.MethodPost, "/ai/complete", map[string]any{
		"videoId":     video.ID,
		"template":    "Summarize: {transcription}",
		"temperature": 0.3,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "A short summary.", rec.Body.String())

	assert.Equal(t, "Summarize: the lecture covers neural networks in depth", e.completer.LastPrompt)
	assert.InDelta(t, 0.3, e.completer.LastTemperature, 1e-6)
}

func TestCompleteDefaultsTemperature(t *testing.T) {
	e := newTestEnv(t)
	video := uploadVideo(t, e, "lecture.mp3")
	transcribe(t, e, video.ID)

	rec := e.do(jsonRequest(t, http.MethodPost, "/ai/complete",
		map[string]any{"videoId": video.ID, "template": "hi"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 0.5, e.completer.LastTemperature, 1e-6)
}

func TestCompleteSendsTemplateVerbatimWithoutPlaceholder(t *testing.T) {
	e := newTestEnv(t)
	video := uploadVideo(t, e, "lecture.mp3")
	transcribe(t, e, video.ID)

	rec := e.do(jsonRequest(t, http.MethodPost, "/ai/complete",
		map[string]any{"videoId": video.ID, "template": "No injection here."}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "No injection here.", e.completer.LastPrompt)
}

func TestCompleteProviderFailureIsUpstreamError(t *testing.T) {
	e := newTestEnv(t)
	e.completer.Err = errors.New("provider down")
	video := uploadVideo(t, e, "lecture.mp3")
	transcribe(t, e, video.ID)

	rec := e.do(jsonRequest(t, http.MethodPost, "/ai/complete",
		map[string]any{"videoId": video.ID, "template": "hi"}))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Completion provider failed.", errorBody(t, rec))
}

func TestSearchRequiresQuery(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(jsonRequest(t, http.MethodPost, "/videos/search", map[string]any{"query": "  "}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchFindsTranscribedVideo(t *testing.T) {
	e := newTestEnv(t)
	video := uploadVideo(t, e, "lecture.mp3")
	transcribe(t, e, video.ID)

	rec := e.do(jsonRequest(t, http.MethodPost, "/videos/search",
		map[string]any{"query": "neural networks", "topK": 3}))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Hits []core.SearchHit `json:"hits"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Hits)
	assert.Equal(t, video.ID, resp.Hits[0].VideoID)
}

func TestPromptCatalog(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(httptest.NewRequest(http.MethodGet, "/prompts", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var prompts []core.Prompt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prompts))
	require.NotEmpty(t, prompts)
	for _, p := range prompts {
		assert.Contains(t, p.Template, processors.PlaceholderToken,
			fmt.Sprintf("prompt %s should reference the transcription", p.ID))
	}
}
