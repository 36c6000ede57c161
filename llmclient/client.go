package llmclient

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

	"go.uber.org/zap"

	"diary-assistant/config"
	apperrors "diary-assistant/errors"
)

// Message is a single entry in the ordered message list sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SamplingParams carries the sampling-parameter set for a chat call. The
// zero value means "use server defaults" for every field.
type SamplingParams struct {
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	TopK          int     `json:"top_k"`
	RepeatPenalty float64 `json:"repeat_penalty"`
}

func (p SamplingParams) options() map[string]any {
	opts := make(map[string]any)
	if p.Temperature > 0 {
		opts["temperature"] = p.Temperature
	}
	if p.TopP > 0 {
		opts["top_p"] = p.TopP
	}
	if p.TopK > 0 {
		opts["top_k"] = p.TopK
	}
	if p.RepeatPenalty > 0 {
		opts["repeat_penalty"] = p.RepeatPenalty
	}
	return opts
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

// chatChunk is one NDJSON line of an Ollama chat response. Non-streaming
// calls return a single chunk with the full message and done=true.
type chatChunk struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error"`
}

type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) *Client {
	// Use a client with the configured timeout; streaming requests rely on
	// context cancellation or the server closing the stream.
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.LLMRequestTimeout},
		logger:     logger,
	}
}

// Chat performs a non-streaming chat call against the model daemon.
func (c *Client) Chat(ctx context.Context, model string, messages []Message, params SamplingParams) (string, error) {
	resp, err := c.doChat(ctx, model, messages, params, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	var chunk chatChunk
	if err := json.Unmarshal(bodyBytes, &chunk); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if chunk.Error != "" {
		return "", fmt.Errorf("%w: %s", apperrors.ErrModelUnavailable, chunk.Error)
	}
	return chunk.Message.Content, nil
}

// ChatStream performs a streaming chat call. Content fragments arrive in
// order on the first channel; after it closes, the second channel reports how
// the stream ended: nil (or closed) for a completed answer, an error for a
// cancellation, daemon failure, or disconnect before the final chunk. Callers
// must treat accumulated text as invalid when the stream ends in error.
// The HTTP request itself runs synchronously so connection and status errors
// surface to the caller instead of vanishing into a silent empty stream.
func (c *Client) ChatStream(ctx context.Context, model string, messages []Message, params SamplingParams) (<-chan string, <-chan error, error) {
	resp, err := c.doChat(ctx, model, messages, params, true)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var chunk chatChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				c.logger.Warn("Skipping malformed stream chunk", zap.Error(err))
				continue
			}
			if chunk.Error != "" {
				errCh <- fmt.Errorf("%w: %s", apperrors.ErrModelUnavailable, chunk.Error)
				return
			}
			if chunk.Message.Content != "" {
				select {
				case out <- chunk.Message.Content:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				errCh <- ctx.Err()
				return
			}
			errCh <- fmt.Errorf("read chat stream: %w", err)
			return
		}
		// EOF without a final done chunk is a disconnect, not a complete
		// answer.
		errCh <- fmt.Errorf("chat stream ended before completion")
	}()

	return out, errCh, nil
}

func (c *Client) doChat(ctx context.Context, model string, messages []Message, params SamplingParams, stream bool) (*http.Response, error) {
	reqBody := chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
		Options:  params.options(),
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", strings.TrimRight(c.cfg.OllamaHost, "/"))

	var resp *http.Response
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, fmt.Errorf("create chat request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		r, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			// Do not retry on context cancellation/deadline
			if ctx.Err() != nil {
				break
			}
			c.backoffSleep(attempt)
			continue
		}

		if r.StatusCode == http.StatusServiceUnavailable {
			// Model still loading; retry with backoff
			io.Copy(io.Discard, r.Body)
			r.Body.Close()
			c.logger.Warn("Model daemon unavailable, retrying", zap.Int("attempt", attempt+1))
			c.backoffSleep(attempt)
			continue
		}

		resp = r
		break
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: no response from model daemon: %v", apperrors.ErrModelUnavailable, lastErr)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: model %q not found: %s", apperrors.ErrModelUnavailable, model, strings.TrimSpace(string(bodyBytes)))
		}
		return nil, fmt.Errorf("model daemon status %s: %s", resp.Status, strings.TrimSpace(string(bodyBytes)))
	}

	return resp, nil
}

func (c *Client) backoffSleep(attempt int) {
	// Exponential backoff with a small jitter
	base := c.cfg.RetryDelaySeconds
	if base <= 0 {
		base = time.Second
	}
	d := base * time.Duration(1<<attempt)
	if max := 30 * time.Second; d > max {
		d = max
	}
	jitter := time.Duration(time.Now().UnixNano() % int64(base/4+1))
	time.Sleep(d + jitter)
}
