package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"clipscribe/core"
)

// API talks to the clipscribe server.
type API struct {
	baseURL string
	http    *http.Client
}

func NewAPI(baseURL string) *API {
	return &API{baseURL: baseURL, http: &http.Client{}}
}

// UploadAudio posts the derived audio file as the single multipart field
// "file" and returns the created record.
func (a *API) UploadAudio(ctx context.Context, path string) (core.VideoRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.VideoRecord{}, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return core.VideoRecord{}, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return core.VideoRecord{}, fmt.Errorf("read audio file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return core.VideoRecord{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/videos", &body)
	if err != nil {
		return core.VideoRecord{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		Video core.VideoRecord `json:"video"`
	}
	if err := a.do(req, &out); err != nil {
		return core.VideoRecord{}, err
	}
	return out.Video, nil
}

// CreateTranscription triggers transcription of an uploaded record. The
// prompt is the optional vocabulary hint.
func (a *API) CreateTranscription(ctx context.Context, videoID, prompt string) error {
	payload := map[string]string{"prompt": prompt}
	req, err := a.jsonRequest(ctx, http.MethodPost,
		fmt.Sprintf("/videos/%s/transcription", url.PathEscape(videoID)), payload)
	if err != nil {
		return err
	}
	return a.do(req, nil)
}

// Complete streams a rendered completion into out as tokens arrive.
func (a *API) Complete(ctx context.Context, videoID, template string, temperature float32, out io.Writer) error {
	payload := map[string]any{
		"videoId":     videoID,
		"template":    template,
		"temperature": temperature,
	}
	req, err := a.jsonRequest(ctx, http.MethodPost, "/ai/complete", payload)
	if err != nil {
		return err
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	_, err = io.Copy(out, resp.Body)
	return err
}

func (a *API) ListVideos(ctx context.Context) ([]core.VideoRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/videos", nil)
	if err != nil {
		return nil, err
	}
	var out []core.VideoRecord
	if err := a.do(req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *API) ListPrompts(ctx context.Context) ([]core.Prompt, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/prompts", nil)
	if err != nil {
		return nil, err
	}
	var out []core.Prompt
	if err := a.do(req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *API) SearchVideos(ctx context.Context, query string, topK int) ([]core.SearchHit, error) {
	payload := map[string]any{"query": query, "topK": topK}
	req, err := a.jsonRequest(ctx, http.MethodPost, "/videos/search", payload)
	if err != nil {
		return nil, err
	}
	var out struct {
		Hits []core.SearchHit `json:"hits"`
	}
	if err := a.do(req, &out); err != nil {
		return nil, err
	}
	return out.Hits, nil
}

func (a *API) jsonRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (a *API) do(req *http.Request, out any) error {
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("server: %s (%s)", body.Error, resp.Status)
	}
	return fmt.Errorf("server: %s", resp.Status)
}
