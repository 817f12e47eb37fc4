package processors

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// CompletionStream yields generated text incrementally. Recv returns
// io.EOF once generation finishes; Close releases the upstream
// connection and must be called even after an error.
type CompletionStream interface {
	Recv() (string, error)
	Close() error
}

// Completer is the language-model collaborator. The prompt is already
// fully rendered; one user-role message, fixed model.
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float32) (CompletionStream, error)
}

// OpenAICompleter streams chat completions from the provider.
type OpenAICompleter struct {
	cli   *openai.Client
	model string
}

func NewOpenAICompleter(cli *openai.Client, model string) OpenAICompleter {
	return OpenAICompleter{cli: cli, model: model}
}

func (c OpenAICompleter) Complete(ctx context.Context, prompt string, temperature float32) (CompletionStream, error) {
	stream, err := c.cli.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("create chat completion stream: %w", err)
	}
	return &openaiStream{stream: stream}, nil
}

type openaiStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openaiStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

func (s *openaiStream) Close() error { return s.stream.Close() }

// MockCompleter replays fixed chunks, for offline runs and tests.
type MockCompleter struct {
	Chunks []string
	Err    error

	// LastPrompt records what the provider would have received.
	LastPrompt      string
	LastTemperature float32
}

func (m *MockCompleter) Complete(ctx context.Context, prompt string, temperature float32) (CompletionStream, error) {
	m.LastPrompt = prompt
	m.LastTemperature = temperature
	if m.Err != nil {
		return nil, m.Err
	}
	chunks := m.Chunks
	if chunks == nil {
		chunks = []string{"Mock ", "completion."}
	}
	return &mockStream{chunks: chunks}, nil
}

type mockStream struct {
	chunks []string
	pos    int
}

func (s *mockStream) Recv() (string, error) {
	if s.pos >= len(s.chunks) {
		return "", io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *mockStream) Close() error { return nil }
