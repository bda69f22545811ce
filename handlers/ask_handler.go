package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/taskni/llm-gateway/services/answer"
	"github.com/taskni/llm-gateway/services/providers"
	"github.com/taskni/llm-gateway/utils"
	"go.uber.org/zap"
)

// AskRequest represents a question request
type AskRequest struct {
	Question string `json:"question" validate:"required,min=1,max=4000"`
	Stream   bool   `json:"stream,omitempty"`
}

// AskHandler handles cached question answering
type AskHandler struct {
	service  *answer.Service
	validate *validator.Validate
	logger   *zap.Logger
}

// NewAskHandler creates a new AskHandler
func NewAskHandler(service *answer.Service, logger *zap.Logger) *AskHandler {
	return &AskHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

// HandleAsk handles POST /api/v1/ask
func (h *AskHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse ask request", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Request validation failed", validationDetails(err))
		return
	}

	if req.Stream {
		h.streamAsk(w, r, req.Question)
		return
	}

	result, err := h.service.Answer(r.Context(), req.Question, providers.GenerateOptions{})
	if err != nil {
		writeGatewayError(w, r, h.logger, err)
		return
	}

	_ = utils.WriteOK(w, result)
}

// streamAsk delivers the answer as server-sent events
func (h *AskHandler) streamAsk(w http.ResponseWriter, r *http.Request, question string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = utils.WriteInternalError(w, "Streaming is not supported by this server")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	err := h.service.AnswerStream(r.Context(), question, providers.GenerateOptions{}, func(f providers.Fragment) error {
		return writeSSE(w, flusher, f)
	})
	if err != nil {
		writeSSEError(w, flusher, r, h.logger, err)
		return
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// HandleCacheStats handles GET /api/v1/cache/stats
func (h *AskHandler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.service.CacheStats())
}
