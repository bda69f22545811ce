package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskni/llm-gateway/services/providers"
)

func newTestAdapter(serverURL string) *Adapter {
	return New(Config{
		Name:    "groq",
		APIKey:  "test-key",
		BaseURL: serverURL,
		Model:   "llama-3.1-8b-instant",
	})
}

func TestGenerate(t *testing.T) {
	t.Run("successful completion", func(t *testing.T) {
		var captured chatRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(chatResponse{
				ID:      "cmpl-123",
				Model:   "llama-3.1-8b-instant",
				Created: time.Now().Unix(),
				Choices: []chatChoice{{
					Message:      chatMessage{Role: "assistant", Content: "Hello there."},
					FinishReason: "stop",
				}},
				Usage: chatUsage{PromptTokens: 5, CompletionTokens: 3, TotalTokens: 8},
			})
		}))
		defer server.Close()

		adapter := newTestAdapter(server.URL)
		completion, err := adapter.Generate(context.Background(),
			[]providers.Message{{Role: "user", Content: "hi"}},
			providers.GenerateOptions{MaxTokens: 100})
		require.NoError(t, err)

		assert.Equal(t, "cmpl-123", completion.ID)
		assert.Equal(t, "groq", completion.Provider)
		assert.Equal(t, "Hello there.", completion.Content)
		assert.Equal(t, "stop", completion.FinishReason)
		assert.Equal(t, 8, completion.Usage.TotalTokens)

		assert.Equal(t, "llama-3.1-8b-instant", captured.Model, "configured model fills in when the request names none")
		require.NotNil(t, captured.MaxTokens)
		assert.Equal(t, 100, *captured.MaxTokens)
		assert.False(t, captured.Stream)
	})

	t.Run("request model overrides configured default", func(t *testing.T) {
		var captured chatRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			_ = json.NewEncoder(w).Encode(chatResponse{Choices: []chatChoice{{}}})
		}))
		defer server.Close()

		adapter := newTestAdapter(server.URL)
		_, err := adapter.Generate(context.Background(), nil, providers.GenerateOptions{Model: "llama-3.3-70b"})
		require.NoError(t, err)
		assert.Equal(t, "llama-3.3-70b", captured.Model)
	})

	t.Run("empty choices is malformed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(chatResponse{ID: "cmpl-1"})
		}))
		defer server.Close()

		adapter := newTestAdapter(server.URL)
		_, err := adapter.Generate(context.Background(), nil, providers.GenerateOptions{})
		require.Error(t, err)
		assert.Equal(t, providers.ErrorClassMalformedResponse, providers.ClassOf(err))
	})

	t.Run("invalid json is malformed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer server.Close()

		adapter := newTestAdapter(server.URL)
		_, err := adapter.Generate(context.Background(), nil, providers.GenerateOptions{})
		require.Error(t, err)
		assert.Equal(t, providers.ErrorClassMalformedResponse, providers.ClassOf(err))
	})

	t.Run("deadline maps to timeout class", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Drain the body so the server watches the connection and
			// cancels r.Context() when the client disconnects; otherwise
			// the deferred server.Close() blocks forever.
			_, _ = io.Copy(io.Discard, r.Body)
			<-r.Context().Done()
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		adapter := newTestAdapter(server.URL)
		_, err := adapter.Generate(ctx, nil, providers.GenerateOptions{})
		require.Error(t, err)
		assert.Equal(t, providers.ErrorClassTimeout, providers.ClassOf(err))
	})

	t.Run("unreachable backend maps to network class", func(t *testing.T) {
		adapter := newTestAdapter("http://127.0.0.1:1")
		_, err := adapter.Generate(context.Background(), nil, providers.GenerateOptions{})
		require.Error(t, err)
		assert.Equal(t, providers.ErrorClassNetwork, providers.ClassOf(err))
	})
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected providers.ErrorClass
	}{
		{"401 unauthorized", http.StatusUnauthorized, providers.ErrorClassAuth},
		{"403 forbidden", http.StatusForbidden, providers.ErrorClassAuth},
		{"429 rate limited", http.StatusTooManyRequests, providers.ErrorClassRateLimit},
		{"500 server error", http.StatusInternalServerError, providers.ErrorClassNetwork},
		{"503 unavailable", http.StatusServiceUnavailable, providers.ErrorClassNetwork},
		{"418 teapot", http.StatusTeapot, providers.ErrorClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			}))
			defer server.Close()

			adapter := newTestAdapter(server.URL)
			_, err := adapter.Generate(context.Background(), nil, providers.GenerateOptions{})
			require.Error(t, err)
			assert.Equal(t, tt.expected, providers.ClassOf(err))

			var provErr *providers.ProviderError
			require.ErrorAs(t, err, &provErr)
			assert.Equal(t, tt.status, provErr.StatusCode)
			assert.Contains(t, provErr.Message, "nope")
		})
	}
}

func TestGenerateStream(t *testing.T) {
	streamBody := func(chunks []string, done bool) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			for _, c := range chunks {
				fmt.Fprintf(w, "data: %s\n\n", c)
				flusher.Flush()
			}
			if done {
				fmt.Fprint(w, "data: [DONE]\n\n")
				flusher.Flush()
			}
		}
	}

	chunk := func(content string) string {
		b, _ := json.Marshal(streamChunk{Choices: []chunkChoice{{Delta: chatDelta{Content: content}}}})
		return string(b)
	}

	t.Run("delivers fragments in order", func(t *testing.T) {
		server := httptest.NewServer(streamBody([]string{chunk("Hel"), chunk("lo"), chunk("!")}, true))
		defer server.Close()

		adapter := newTestAdapter(server.URL)
		var got []providers.Fragment
		err := adapter.GenerateStream(context.Background(), nil, providers.GenerateOptions{}, func(f providers.Fragment) error {
			got = append(got, f)
			return nil
		})
		require.NoError(t, err)

		require.Len(t, got, 3)
		assert.Equal(t, "Hel", got[0].Content)
		assert.Equal(t, "lo", got[1].Content)
		assert.Equal(t, "!", got[2].Content)
		for i, f := range got {
			assert.Equal(t, i, f.Index)
		}
	})

	t.Run("skips empty deltas without consuming indexes", func(t *testing.T) {
		server := httptest.NewServer(streamBody([]string{chunk(""), chunk("a"), chunk(""), chunk("b")}, true))
		defer server.Close()

		adapter := newTestAdapter(server.URL)
		var got []providers.Fragment
		err := adapter.GenerateStream(context.Background(), nil, providers.GenerateOptions{}, func(f providers.Fragment) error {
			got = append(got, f)
			return nil
		})
		require.NoError(t, err)

		require.Len(t, got, 2)
		assert.Equal(t, 0, got[0].Index)
		assert.Equal(t, 1, got[1].Index)
	})

	t.Run("stream end without DONE is clean", func(t *testing.T) {
		server := httptest.NewServer(streamBody([]string{chunk("partial")}, false))
		defer server.Close()

		adapter := newTestAdapter(server.URL)
		count := 0
		err := adapter.GenerateStream(context.Background(), nil, providers.GenerateOptions{}, func(providers.Fragment) error {
			count++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("callback error aborts the stream", func(t *testing.T) {
		server := httptest.NewServer(streamBody([]string{chunk("a"), chunk("b")}, true))
		defer server.Close()

		sentinel := errors.New("consumer gave up")
		adapter := newTestAdapter(server.URL)
		err := adapter.GenerateStream(context.Background(), nil, providers.GenerateOptions{}, func(providers.Fragment) error {
			return sentinel
		})
		assert.ErrorIs(t, err, sentinel)
	})

	t.Run("error status before streaming is classified", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
		}))
		defer server.Close()

		adapter := newTestAdapter(server.URL)
		err := adapter.GenerateStream(context.Background(), nil, providers.GenerateOptions{}, func(providers.Fragment) error {
			t.Fatal("no fragment expected")
			return nil
		})
		require.Error(t, err)
		assert.Equal(t, providers.ErrorClassRateLimit, providers.ClassOf(err))
	})

	t.Run("garbled chunk is malformed", func(t *testing.T) {
		server := httptest.NewServer(streamBody([]string{"{{{"}, false))
		defer server.Close()

		adapter := newTestAdapter(server.URL)
		err := adapter.GenerateStream(context.Background(), nil, providers.GenerateOptions{}, func(providers.Fragment) error {
			return nil
		})
		require.Error(t, err)
		assert.Equal(t, providers.ErrorClassMalformedResponse, providers.ClassOf(err))
	})

	t.Run("sets stream flag on the wire", func(t *testing.T) {
		var captured chatRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			fmt.Fprint(w, "data: [DONE]\n\n")
		}))
		defer server.Close()

		adapter := newTestAdapter(server.URL)
		err := adapter.GenerateStream(context.Background(), nil, providers.GenerateOptions{}, func(providers.Fragment) error {
			return nil
		})
		require.NoError(t, err)
		assert.True(t, captured.Stream)
	})
}

func TestNewDefaults(t *testing.T) {
	adapter := New(Config{})
	assert.Equal(t, "openai", adapter.Name())
	assert.Equal(t, DefaultBaseURL, adapter.cfg.BaseURL)

	named := New(Config{Name: "groq", BaseURL: GroqBaseURL})
	assert.Equal(t, "groq", named.Name())
}
