// Package static implements a last-resort provider that needs no network or
// credentials. It returns a canned completion so the platform can always
// produce a user-facing answer, even when every remote backend is down.
package static

import (
	"context"
	"strings"
	"time"

	"github.com/taskni/llm-gateway/services/providers"
)

// DefaultAnswer is returned when no answer is configured
const DefaultAnswer = "I'm sorry, I can't reach my knowledge services right now. Please try again in a moment."

// Config holds adapter configuration
type Config struct {
	// Name is the provider name reported to the gateway
	Name string

	// Answer is the canned completion text
	Answer string

	// FragmentSize is the word count per streamed fragment
	FragmentSize int
}

// Adapter implements providers.Provider with a canned response
type Adapter struct {
	cfg Config
}

// New creates a static adapter
func New(cfg Config) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "static"
	}
	if cfg.Answer == "" {
		cfg.Answer = DefaultAnswer
	}
	if cfg.FragmentSize <= 0 {
		cfg.FragmentSize = 3
	}
	return &Adapter{cfg: cfg}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return a.cfg.Name
}

// Generate returns the canned completion
func (a *Adapter) Generate(ctx context.Context, messages []providers.Message, opts providers.GenerateOptions) (*providers.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &providers.Completion{
		Provider:     a.cfg.Name,
		Model:        "static",
		Content:      a.cfg.Answer,
		FinishReason: "stop",
		Created:      time.Now(),
	}, nil
}

// GenerateStream delivers the canned completion in word-sized fragments
func (a *Adapter) GenerateStream(ctx context.Context, messages []providers.Message, opts providers.GenerateOptions, fn providers.FragmentFunc) error {
	words := strings.Fields(a.cfg.Answer)
	index := 0
	for start := 0; start < len(words); start += a.cfg.FragmentSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + a.cfg.FragmentSize
		if end > len(words) {
			end = len(words)
		}
		content := strings.Join(words[start:end], " ")
		if end < len(words) {
			content += " "
		}
		if err := fn(providers.Fragment{Content: content, Index: index}); err != nil {
			return err
		}
		index++
	}
	return nil
}
