package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/applytrack/applytrack/internal/apperrors"
	"github.com/applytrack/applytrack/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// ProviderStatusError is a non-2xx response from the model provider. Body is
// the raw upstream payload; callers truncate before exposing it.
type ProviderStatusError struct {
	StatusCode int
	Body       string
}

func (e *ProviderStatusError) Error() string {
	return fmt.Sprintf("provider returned status %d", e.StatusCode)
}

// StreamResult is the outcome of a completed provider stream.
type StreamResult struct {
	Text string
	// MalformedFragments counts data lines that failed to parse. They are
	// tolerated during the stream and reported once afterwards.
	MalformedFragments int
}

// LLMService talks to an OpenAI-compatible provider. The streaming path reads
// the provider's event stream directly; the non-streaming path goes through
// langchaingo and retries across the configured model list.
type LLMService struct {
	cfg        config.AIConfig
	httpClient *http.Client
	chat       llms.Model
	log        *zap.SugaredLogger
}

func NewLLMService(cfg config.AIConfig, log *zap.SugaredLogger) (*LLMService, error) {
	s := &LLMService{
		cfg: cfg,
		// No overall client timeout: streams are bounded per call by the
		// controller's context deadline.
		httpClient: &http.Client{},
		log:        log,
	}
	if cfg.APIKey == "" {
		// Left unconfigured on purpose; the controller reports this to the
		// caller instead of failing startup.
		return s, nil
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	chat, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	s.chat = chat
	return s, nil
}

// Configured reports whether a provider credential is present.
func (s *LLMService) Configured() bool {
	return s.cfg.APIKey != ""
}

// ValidateEndpoint checks that the provider base URL is usable. A missing or
// malformed endpoint is a hard stop, never retried.
func (s *LLMService) ValidateEndpoint() error {
	u, err := url.Parse(s.cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return apperrors.New(apperrors.CodeAIProviderNotConfigured, "model provider endpoint is missing or malformed")
	}
	return nil
}

type chatStreamRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// StreamCompletion issues a streaming chat-completion request and forwards
// each text fragment to onDelta in arrival order. The returned StreamResult
// is non-nil even on error so the caller can report fragment counts.
// Malformed fragments are counted and skipped, never fatal; an error from
// onDelta aborts the read and is returned as-is.
func (s *LLMService) StreamCompletion(ctx context.Context, model, prompt string, onDelta func(string) error) (*StreamResult, error) {
	result := &StreamResult{}

	body, err := json.Marshal(chatStreamRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   true,
	})
	if err != nil {
		return result, err
	}

	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return result, err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return result, &ProviderStatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			break
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			result.MalformedFragments++
			continue
		}
		if len(chunk.Choices) == 0 {
			result.MalformedFragments++
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if err := onDelta(delta); err != nil {
			result.Text = full.String()
			return result, err
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		result.Text = full.String()
		return result, err
	}

	result.Text = full.String()
	return result, nil
}

// Complete runs a non-streaming generation, trying each configured model in
// order until one answers. Unlike the streaming path, nothing has been shown
// to the caller yet, so falling back to another model is invisible.
func (s *LLMService) Complete(ctx context.Context, prompt string) (text string, servedBy string, err error) {
	var lastErr error
	for _, model := range s.cfg.Models() {
		out, genErr := llms.GenerateFromSinglePrompt(ctx, s.chat, prompt, llms.WithModel(model))
		if genErr == nil && strings.TrimSpace(out) != "" {
			return out, model, nil
		}
		if genErr == nil {
			genErr = fmt.Errorf("model %s produced no content", model)
		}
		lastErr = genErr
		if ctx.Err() != nil {
			break
		}
		s.log.Warnw("generation attempt failed", "model", model, "error", genErr)
	}
	return "", "", apperrors.Wrap(apperrors.CodeAIProviderError, "the model provider returned an error", lastErr)
}

// StreamTimeout exposes the configured per-stream deadline.
func (s *LLMService) StreamTimeout() time.Duration {
	return s.cfg.StreamTimeout
}
