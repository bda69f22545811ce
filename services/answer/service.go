// Package answer implements the cache-fronted question answering flow:
// response cache lookup, optional context retrieval, gateway invocation,
// and cache population.
package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/taskni/llm-gateway/services/cache"
	"github.com/taskni/llm-gateway/services/gateway"
	"github.com/taskni/llm-gateway/services/providers"
	"go.uber.org/zap"
)

const systemPrompt = "You are a helpful assistant for a customer support platform. " +
	"Answer the user's question concisely. When context documents are provided, " +
	"base your answer on them and say so when they don't cover the question."

// Retriever supplies context documents for a question. The retrieval
// pipeline itself (vector store, embeddings) lives outside this module.
type Retriever interface {
	// Retrieve returns formatted context text and the source identifiers it
	// was assembled from. An empty context with no error means nothing
	// relevant was found.
	Retrieve(ctx context.Context, question string) (contextText string, sources []string, err error)
}

// Answer is the result of one question
type Answer struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Text      string    `json:"answer"`
	Sources   []string  `json:"sources,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Cached    bool      `json:"cached"`
	LatencyMs int       `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Service orchestrates cache, retrieval, and the invocation gateway
type Service struct {
	gateway   *gateway.Gateway
	cache     *cache.ResponseCache
	retriever Retriever
	logger    *zap.Logger
}

// New creates an answer service. retriever may be nil when no retrieval
// pipeline is configured.
func New(gw *gateway.Gateway, responseCache *cache.ResponseCache, retriever Retriever, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		gateway:   gw,
		cache:     responseCache,
		retriever: retriever,
		logger:    logger,
	}
}

// Answer produces one answer for a question, serving repeated questions from
// the response cache.
func (s *Service) Answer(ctx context.Context, question string, opts providers.GenerateOptions) (*Answer, error) {
	start := time.Now()
	answerID := uuid.New().String()

	if entry, ok := s.cache.Lookup(question); ok {
		s.logger.Info("answer served from cache",
			zap.String("answer_id", answerID),
			zap.String("fingerprint", entry.Fingerprint))
		return &Answer{
			ID:        answerID,
			Question:  question,
			Text:      entry.Answer,
			Sources:   entry.Sources,
			Cached:    true,
			LatencyMs: int(time.Since(start).Milliseconds()),
			CreatedAt: start,
		}, nil
	}

	messages, sources, err := s.buildMessages(ctx, question)
	if err != nil {
		return nil, err
	}

	completion, err := s.gateway.Generate(ctx, messages, opts)
	if err != nil {
		return nil, err
	}

	s.cache.Store(question, completion.Content, sources)

	s.logger.Info("answer generated",
		zap.String("answer_id", answerID),
		zap.String("provider", completion.Provider),
		zap.Int("sources", len(sources)),
		zap.Duration("latency", time.Since(start)))

	return &Answer{
		ID:        answerID,
		Question:  question,
		Text:      completion.Content,
		Sources:   sources,
		Provider:  completion.Provider,
		Cached:    false,
		LatencyMs: int(time.Since(start).Milliseconds()),
		CreatedAt: start,
	}, nil
}

// AnswerStream streams an answer fragment by fragment. A cached answer is
// delivered as a single fragment. Freshly generated answers are cached only
// when the stream completed in full; interrupted streams are never cached.
func (s *Service) AnswerStream(ctx context.Context, question string, opts providers.GenerateOptions, fn providers.FragmentFunc) error {
	if entry, ok := s.cache.Lookup(question); ok {
		s.logger.Info("streamed answer served from cache", zap.String("fingerprint", entry.Fingerprint))
		return fn(providers.Fragment{Content: entry.Answer})
	}

	messages, sources, err := s.buildMessages(ctx, question)
	if err != nil {
		return err
	}

	var assembled strings.Builder
	err = s.gateway.GenerateStream(ctx, messages, opts, func(f providers.Fragment) error {
		assembled.WriteString(f.Content)
		return fn(f)
	})
	if err != nil {
		return err
	}

	s.cache.Store(question, assembled.String(), sources)
	return nil
}

// CacheStats exposes the response cache counters
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// buildMessages assembles the prompt, pulling in retrieval context when a
// retriever is configured.
func (s *Service) buildMessages(ctx context.Context, question string) ([]providers.Message, []string, error) {
	messages := []providers.Message{
		{Role: "system", Content: systemPrompt},
	}

	var sources []string
	if s.retriever != nil {
		contextText, retrievedSources, err := s.retriever.Retrieve(ctx, question)
		if err != nil {
			return nil, nil, fmt.Errorf("context retrieval failed: %w", err)
		}
		if contextText != "" {
			messages = append(messages, providers.Message{
				Role:    "system",
				Content: "Context documents:\n" + contextText,
			})
			sources = retrievedSources
		}
	}

	messages = append(messages, providers.Message{Role: "user", Content: question})
	return messages, sources, nil
}
