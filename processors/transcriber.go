package processors

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Transcriber is the speech-to-text collaborator. The vocabulary hint
// biases recognition of domain-specific terms; it is not an instruction.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, vocabularyHint string) (string, error)
}

// WhisperTranscriber calls the provider's transcription endpoint with the
// staged audio file.
type WhisperTranscriber struct {
	cli   *openai.Client
	model string
}

func NewWhisperTranscriber(cli *openai.Client, model string) WhisperTranscriber {
	return WhisperTranscriber{cli: cli, model: model}
}

func (w WhisperTranscriber) Transcribe(ctx context.Context, audioPath, vocabularyHint string) (string, error) {
	resp, err := w.cli.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: audioPath,
		Prompt:   vocabularyHint,
	})
	if err != nil {
		return "", fmt.Errorf("create transcription: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("empty transcription result")
	}
	return text, nil
}

// MockTranscriber returns a fixed transcript, for offline runs and tests.
type MockTranscriber struct {
	Text string
	Err  error
}

func (m MockTranscriber) Transcribe(ctx context.Context, audioPath, vocabularyHint string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if m.Text != "" {
		return m.Text, nil
	}
	return fmt.Sprintf("Placeholder transcript for %s", audioPath), nil
}
