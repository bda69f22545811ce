package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/taskni/llm-gateway/services/gateway"
	"github.com/taskni/llm-gateway/services/providers"
	"github.com/taskni/llm-gateway/utils"
	"go.uber.org/zap"
)

// ChatRequest represents a chat completion request
type ChatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Temperature float64       `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   int           `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	TopP        float64       `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// ChatMessage represents a single chat message
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

// ChatResponse represents a chat completion response
type ChatResponse struct {
	ID           string          `json:"id"`
	Provider     string          `json:"provider"`
	Model        string          `json:"model"`
	Content      string          `json:"content"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Usage        providers.Usage `json:"usage"`
	LatencyMs    int64           `json:"latency_ms"`
}

// ChatGateway is the gateway surface the handler depends on
type ChatGateway interface {
	Generate(ctx context.Context, messages []providers.Message, opts providers.GenerateOptions) (*providers.Completion, error)
	GenerateStream(ctx context.Context, messages []providers.Message, opts providers.GenerateOptions, fn providers.FragmentFunc) error
}

// ChatHandler handles direct gateway chat requests
type ChatHandler struct {
	gateway  ChatGateway
	validate *validator.Validate
	logger   *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(gw ChatGateway, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		gateway:  gw,
		validate: validator.New(),
		logger:   logger,
	}
}

// HandleChat handles POST /api/v1/chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse chat request", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Request validation failed", validationDetails(err))
		return
	}

	messages := make([]providers.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = providers.Message{Role: m.Role, Content: m.Content}
	}

	opts := providers.GenerateOptions{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}

	if req.Stream {
		h.streamChat(w, r, messages, opts)
		return
	}

	completion, err := h.gateway.Generate(r.Context(), messages, opts)
	if err != nil {
		writeGatewayError(w, r, h.logger, err)
		return
	}

	_ = utils.WriteOK(w, ChatResponse{
		ID:           completion.ID,
		Provider:     completion.Provider,
		Model:        completion.Model,
		Content:      completion.Content,
		FinishReason: completion.FinishReason,
		Usage:        completion.Usage,
		LatencyMs:    completion.Latency.Milliseconds(),
	})
}

// streamChat delivers fragments as server-sent events
func (h *ChatHandler) streamChat(w http.ResponseWriter, r *http.Request, messages []providers.Message, opts providers.GenerateOptions) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = utils.WriteInternalError(w, "Streaming is not supported by this server")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	err := h.gateway.GenerateStream(r.Context(), messages, opts, func(f providers.Fragment) error {
		return writeSSE(w, flusher, f)
	})
	if err != nil {
		// Response headers are committed by now; deliver the error as a
		// terminal event so the client can distinguish it from a clean end.
		writeSSEError(w, flusher, r, h.logger, err)
		return
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// writeSSE writes one fragment as an SSE data event
func writeSSE(w http.ResponseWriter, flusher http.Flusher, f providers.Fragment) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// writeSSEError writes a terminal SSE error event with redacted detail
func writeSSEError(w http.ResponseWriter, flusher http.Flusher, r *http.Request, logger *zap.Logger, err error) {
	logger.Warn("stream ended with error", zap.Error(err))

	payload, marshalErr := json.Marshal(redactedGatewayError(err))
	if marshalErr != nil {
		return
	}
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
	flusher.Flush()
}

// writeGatewayError maps gateway errors to HTTP responses. Provider error
// messages may carry sensitive detail (endpoints, credential hints), so only
// the provider name and error class cross this boundary.
func writeGatewayError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		_ = utils.WriteClientClosed(w)
		return
	}

	var exhausted *gateway.AllProvidersFailedError
	if errors.As(err, &exhausted) {
		logger.Error("all providers failed", zap.Error(err))
		_ = utils.WriteBadGateway(w, "No provider could produce a completion", redactedAttempts(exhausted.Attempts))
		return
	}

	logger.Error("chat request failed", zap.Error(err))
	_ = utils.WriteInternalError(w, "")
}

// redactedAttempts strips provider error messages down to name and class
func redactedAttempts(attempts []gateway.AttemptError) []map[string]string {
	out := make([]map[string]string, len(attempts))
	for i, a := range attempts {
		out[i] = map[string]string{
			"provider": a.Provider,
			"class":    string(a.Class),
		}
	}
	return out
}

// redactedGatewayError produces a client-safe error payload
func redactedGatewayError(err error) map[string]interface{} {
	var interrupted *gateway.StreamInterruptedError
	if errors.As(err, &interrupted) {
		return map[string]interface{}{
			"error":               "stream_interrupted",
			"provider":            interrupted.Provider,
			"class":               string(interrupted.Class),
			"delivered_fragments": interrupted.DeliveredFragments,
		}
	}

	var exhausted *gateway.AllProvidersFailedError
	if errors.As(err, &exhausted) {
		return map[string]interface{}{
			"error":    "all_providers_failed",
			"attempts": redactedAttempts(exhausted.Attempts),
		}
	}

	return map[string]interface{}{"error": "internal_error"}
}

// validationDetails flattens validator errors into field/message pairs
func validationDetails(err error) []map[string]string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return []map[string]string{{"message": "invalid request"}}
	}

	details := make([]map[string]string, len(validationErrs))
	for i, fe := range validationErrs {
		details[i] = map[string]string{
			"field":   fe.Field(),
			"message": fmt.Sprintf("failed %q validation", fe.Tag()),
		}
	}
	return details
}
