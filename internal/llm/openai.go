package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	envOpenAIKey   = "OPENAI_API_KEY"
	envOpenAIModel = "OPENAI_MODEL"

	openaiURL          = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel = "gpt-4o-mini"
)

type openaiClient struct {
	apiKey string
	model  string
	http   *http.Client
	logger zerolog.Logger
}

// NewOpenAI reads OPENAI_API_KEY / OPENAI_MODEL from the environment.
func NewOpenAI(logger zerolog.Logger) (Client, error) {
	key := strings.TrimSpace(os.Getenv(envOpenAIKey))
	if key == "" {
		return nil, fmt.Errorf("missing %s", envOpenAIKey)
	}
	model := strings.Trim(strings.TrimSpace(os.Getenv(envOpenAIModel)), "\"'")
	if model == "" {
		model = defaultOpenAIModel
	}
	return &openaiClient{
		apiKey: key,
		model:  model,
		http:   &http.Client{Timeout: requestTimeout},
		logger: logger,
	}, nil
}

func (c *openaiClient) Name() string { return c.model }

func (c *openaiClient) Generate(ctx context.Context, req Request) (Response, error) {
	if len(req.Messages) == 0 {
		return Response{}, errors.New("no messages")
	}

	payload := openaiPayload{
		Model:       c.model,
		Temperature: float64(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if payload.MaxTokens <= 0 {
		payload.MaxTokens = defaultMaxTokens
	}
	if req.System != "" {
		payload.Messages = append(payload.Messages, openaiMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, openaiMessage{Role: m.Role, Content: m.Content})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
			c.logger.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("retrying openai call")
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, openaiURL, bytes.NewReader(body))
		if err != nil {
			return Response{}, fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode >= 400 {
			var apiErr openaiErrorEnvelope
			_ = json.Unmarshal(data, &apiErr)
			lastErr = fmt.Errorf("openai %d: %s", resp.StatusCode, apiErr.Err.Message)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				continue
			}
			return Response{}, lastErr
		}

		var or openaiResponse
		if err := json.Unmarshal(data, &or); err != nil {
			lastErr = fmt.Errorf("parse response: %w", err)
			continue
		}
		if len(or.Choices) == 0 {
			lastErr = errors.New("empty choices")
			continue
		}
		return Response{Text: or.Choices[0].Message.Content}, nil
	}
	return Response{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

type openaiPayload struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
}

type openaiErrorEnvelope struct {
	Err struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
