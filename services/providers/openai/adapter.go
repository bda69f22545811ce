// Package openai implements the Provider interface against the OpenAI chat
// completions wire API. Groq exposes the same API, so one adapter serves
// both backends; only the base URL and model differ.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/taskni/llm-gateway/services/providers"
)

const (
	// DefaultBaseURL is the OpenAI endpoint
	DefaultBaseURL = "https://api.openai.com/v1"

	// GroqBaseURL is Groq's OpenAI-compatible endpoint
	GroqBaseURL = "https://api.groq.com/openai/v1"
)

// Config holds adapter configuration
type Config struct {
	// Name is the provider name reported to the gateway (e.g., "openai", "groq")
	Name string

	// APIKey for authentication
	APIKey string

	// BaseURL for the API
	BaseURL string

	// Model is the default model when the request does not name one
	Model string

	// Headers are additional headers sent on every request
	Headers map[string]string
}

// Adapter implements providers.Provider for OpenAI-compatible backends
type Adapter struct {
	cfg        Config
	httpClient *http.Client
}

// New creates an adapter. The HTTP client carries no timeout of its own;
// per-attempt deadlines arrive through the request context.
func New(cfg Config) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return a.cfg.Name
}

// Generate performs a unary chat completion request
func (a *Adapter) Generate(ctx context.Context, messages []providers.Message, opts providers.GenerateOptions) (*providers.Completion, error) {
	startTime := time.Now()

	respBody, statusCode, err := a.post(ctx, a.buildRequest(messages, opts, false))
	if err != nil {
		return nil, err
	}

	if statusCode != http.StatusOK {
		return nil, a.classifyErrorResponse(statusCode, respBody)
	}

	var wireResp chatResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return nil, providers.NewProviderError(a.cfg.Name, providers.ErrorClassMalformedResponse,
			"failed to decode response body", statusCode, err)
	}
	if len(wireResp.Choices) == 0 {
		return nil, providers.NewProviderError(a.cfg.Name, providers.ErrorClassMalformedResponse,
			"response contained no choices", statusCode, nil)
	}

	choice := wireResp.Choices[0]
	return &providers.Completion{
		ID:           wireResp.ID,
		Provider:     a.cfg.Name,
		Model:        wireResp.Model,
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: providers.Usage{
			PromptTokens:     wireResp.Usage.PromptTokens,
			CompletionTokens: wireResp.Usage.CompletionTokens,
			TotalTokens:      wireResp.Usage.TotalTokens,
		},
		Latency: time.Since(startTime),
		Created: time.Unix(wireResp.Created, 0),
	}, nil
}

// GenerateStream performs a streaming chat completion over server-sent events
func (a *Adapter) GenerateStream(ctx context.Context, messages []providers.Message, opts providers.GenerateOptions, fn providers.FragmentFunc) error {
	httpResp, err := a.postStream(ctx, a.buildRequest(messages, opts, true))
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return a.classifyErrorResponse(httpResp.StatusCode, body)
	}

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	index := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return providers.NewProviderError(a.cfg.Name, providers.ErrorClassMalformedResponse,
				"failed to decode stream chunk", httpResp.StatusCode, err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}

		if err := fn(providers.Fragment{Content: content, Index: index}); err != nil {
			return err
		}
		index++
	}

	if err := scanner.Err(); err != nil {
		return a.classifyTransportError(err)
	}
	// The server closed the stream without a [DONE] sentinel; everything
	// received so far is valid, so treat it as a clean end of stream.
	return nil
}

// buildRequest converts the unified request to the OpenAI wire format
func (a *Adapter) buildRequest(messages []providers.Message, opts providers.GenerateOptions, stream bool) *chatRequest {
	model := opts.Model
	if model == "" {
		model = a.cfg.Model
	}

	wireReq := &chatRequest{
		Model:    model,
		Messages: make([]chatMessage, len(messages)),
		Stream:   stream,
	}
	for i, msg := range messages {
		wireReq.Messages[i] = chatMessage{Role: msg.Role, Content: msg.Content}
	}

	if opts.MaxTokens > 0 {
		wireReq.MaxTokens = &opts.MaxTokens
	}
	if opts.Temperature > 0 {
		wireReq.Temperature = &opts.Temperature
	}
	if opts.TopP > 0 {
		wireReq.TopP = &opts.TopP
	}
	if len(opts.Stop) > 0 {
		wireReq.Stop = opts.Stop
	}

	return wireReq
}

// post executes a unary request and returns the raw body and status
func (a *Adapter) post(ctx context.Context, wireReq *chatRequest) ([]byte, int, error) {
	httpResp, err := a.postStream(ctx, wireReq)
	if err != nil {
		return nil, 0, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, httpResp.StatusCode, a.classifyTransportError(err)
	}
	return respBody, httpResp.StatusCode, nil
}

// postStream executes the HTTP request and returns the open response
func (a *Adapter) postStream(ctx context.Context, wireReq *chatRequest) (*http.Response, error) {
	reqBody, err := json.Marshal(wireReq)
	if err != nil {
		return nil, providers.NewProviderError(a.cfg.Name, providers.ErrorClassUnknown,
			"failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.cfg.Name, providers.ErrorClassUnknown,
			"failed to create request", 0, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	for k, v := range a.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, a.classifyTransportError(err)
	}
	return httpResp, nil
}

// classifyTransportError maps connection-level failures to the error taxonomy
func (a *Adapter) classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return providers.NewProviderError(a.cfg.Name, providers.ErrorClassTimeout,
			"request timed out", 0, err)
	}
	if errors.Is(err, context.Canceled) {
		return providers.NewProviderError(a.cfg.Name, providers.ErrorClassNetwork,
			"request canceled", 0, err)
	}
	return providers.NewProviderError(a.cfg.Name, providers.ErrorClassNetwork,
		"request failed", 0, err)
}

// classifyErrorResponse maps HTTP error statuses to the error taxonomy
func (a *Adapter) classifyErrorResponse(statusCode int, body []byte) error {
	message := extractErrorMessage(body)

	var class providers.ErrorClass
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		class = providers.ErrorClassAuth
	case statusCode == http.StatusTooManyRequests:
		class = providers.ErrorClassRateLimit
	case statusCode >= 500:
		class = providers.ErrorClassNetwork
	default:
		class = providers.ErrorClassUnknown
	}

	return providers.NewProviderError(a.cfg.Name, class,
		fmt.Sprintf("backend returned status %d: %s", statusCode, message), statusCode, nil)
}

// extractErrorMessage pulls the error message out of an OpenAI error body
func extractErrorMessage(body []byte) string {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return msg
	}
	return errResp.Error.Message
}

// OpenAI wire types

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type streamChunk struct {
	ID      string        `json:"id"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

type chunkChoice struct {
	Index        int       `json:"index"`
	Delta        chatDelta `json:"delta"`
	FinishReason string    `json:"finish_reason"`
}

type chatDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
