// Package llm wraps the OpenAI-compatible completion endpoint served by the
// GPU-backed vLLM container.
package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// thinkTags matches reasoning blocks some models leak into the output.
var thinkTags = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinkTags removes <think> blocks. If stripping leaves nothing the
// original text is returned, so a fully-wrapped answer is not lost.
func StripThinkTags(s string) string {
	cleaned := strings.TrimSpace(thinkTags.ReplaceAllString(s, ""))
	if cleaned == "" {
		return s
	}
	return cleaned
}

// Client issues chat completions against one fixed model.
type Client struct {
	api   *openai.Client
	model string
}

func New(baseURL, model string) *Client {
	cfg := openai.DefaultConfig("not-needed") // local deployment, no key
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	return &Client{api: openai.NewClientWithConfig(cfg), model: model}
}

// Chat runs a single non-streamed completion and returns the cleaned text.
func (c *Client) Chat(ctx context.Context, system, user string, maxTokens int, temperature float32) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return StripThinkTags(strings.TrimSpace(resp.Choices[0].Message.Content)), nil
}

// ChatStream runs a streamed completion, invoking onDelta for every token
// delta. The accumulated text is not cleaned of think tags here; streaming
// consumers flush deltas as they arrive.
func (c *Client) ChatStream(ctx context.Context, system, user string, maxTokens int, temperature float32, onDelta func(string)) error {
	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Stream:      true,
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content != "" {
				onDelta(choice.Delta.Content)
			}
		}
	}
}

// Ready probes the endpoint by listing models; vLLM answers this only once
// the model is loaded and serving.
func (c *Client) Ready(ctx context.Context) bool {
	_, err := c.api.ListModels(ctx)
	return err == nil
}
