package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o"

// OpenAIClient talks to an OpenAI-compatible /chat/completions endpoint over
// HTTP. It works against any server speaking the same wire format (OpenAI,
// Ollama, LM Studio, vLLM).
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

// NewOpenAIClient creates a client for the given endpoint. An empty model
// falls back to DefaultModel.
func NewOpenAIClient(baseURL, apiKey, model string, temperature float64, maxTokens int) *OpenAIClient {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIClient{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		client:      &http.Client{Timeout: 180 * time.Second},
	}
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate returns the full completion for messages.
func (c *OpenAIClient) Generate(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.post(ctx, messages, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrGeneration, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrGeneration, resp.StatusCode, truncateBody(raw))
	}
	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrGeneration, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrGeneration, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrGeneration)
	}
	return parsed.Choices[0].Message.Content, nil
}

// Stream opens a server-sent-events completion and delivers incremental text
// on the returned channel. The channel closes on completion or when ctx is
// cancelled; a terminal error, if any, is available on the error channel
// after close.
func (c *OpenAIClient) Stream(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	out := make(chan string)
	errCh := make(chan error, 1)

	resp, err := c.post(ctx, messages, true)
	if err != nil {
		close(out)
		errCh <- err
		return out, errCh
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		close(out)
		errCh <- fmt.Errorf("%w: status %d: %s", ErrGeneration, resp.StatusCode, truncateBody(raw))
		return out, errCh
	}

	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				return
			}
			var chunk chatCompletionResponse
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				errCh <- fmt.Errorf("%w: decode stream chunk: %v", ErrGeneration, err)
				return
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case out <- chunk.Choices[0].Delta.Content:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("%w: read stream: %v", ErrGeneration, err)
		}
	}()
	return out, errCh
}

// Close is a no-op for OpenAIClient.
func (c *OpenAIClient) Close() error {
	return nil
}

func (c *OpenAIClient) post(ctx context.Context, messages []Message, stream bool) (*http.Response, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrGeneration, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return resp, nil
}

func truncateBody(b []byte) string {
	const max = 200
	s := string(b)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
