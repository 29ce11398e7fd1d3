package ollama_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"smartassist/src/core/rag"
	"smartassist/src/infrastructure/integrations/ollama"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, dims int) *ollama.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return ollama.NewClient(ollama.Config{
		BaseURL:    server.URL,
		Dimensions: dims,
	})
}

func TestEmbed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req["prompt"] != "hello" {
			t.Errorf("prompt = %q, want hello", req["prompt"])
		}
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2, 0.3}})
	}, 3)

	vec, err := client.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("vector has %d dims, want 3", len(vec))
	}
}

func TestEmbedErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "server error is retryable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "overloaded", http.StatusInternalServerError)
			},
			wantErr: rag.ErrEmbeddingUnavailable,
		},
		{
			name: "rate limit is retryable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "slow down", http.StatusTooManyRequests)
			},
			wantErr: rag.ErrEmbeddingUnavailable,
		},
		{
			name: "client error is fatal",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "unknown model", http.StatusNotFound)
			},
			wantErr: rag.ErrEmbeddingMalformed,
		},
		{
			name: "invalid json is fatal",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("{not json"))
			},
			wantErr: rag.ErrEmbeddingMalformed,
		},
		{
			name: "empty embedding is fatal",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{}})
			},
			wantErr: rag.ErrEmbeddingMalformed,
		},
		{
			name: "wrong dimensionality is fatal",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2}})
			},
			wantErr: rag.ErrEmbeddingMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler, 3)
			_, err := client.Embed(context.Background(), "text")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Embed() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEmbedConnectionRefused(t *testing.T) {
	client := ollama.NewClient(ollama.Config{BaseURL: "http://127.0.0.1:1", Dimensions: 3})
	_, err := client.Embed(context.Background(), "text")
	if !errors.Is(err, rag.ErrEmbeddingUnavailable) {
		t.Errorf("Embed() error = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	var prompts []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		prompts = append(prompts, req["prompt"])
		json.NewEncoder(w).Encode(map[string]any{
			"embedding": []float32{float32(len(prompts)), 0, 0},
		})
	}, 3)

	texts := []string{"one", "two", "three"}
	vectors, err := client.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vectors))
	}
	for i, p := range prompts {
		if p != texts[i] {
			t.Errorf("prompt %d = %q, want %q", i, p, texts[i])
		}
	}
	for i, v := range vectors {
		if v[0] != float32(i+1) {
			t.Errorf("vector %d out of order: %v", i, v)
		}
	}
}

func TestGenerate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["stream"] != false {
			t.Error("streaming not disabled")
		}
		if req["system"] == "" {
			t.Error("system instruction missing")
		}
		json.NewEncoder(w).Encode(map[string]string{"response": "generated text"})
	}, 3)

	got, err := client.Generate(context.Background(), "be helpful", "question")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "generated text" {
		t.Errorf("Generate() = %q", got)
	}
}

func TestGenerateUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}, 3)

	_, err := client.Generate(context.Background(), "", "question")
	if !errors.Is(err, rag.ErrGenerationUnavailable) {
		t.Errorf("Generate() error = %v, want ErrGenerationUnavailable", err)
	}
}

func TestModels(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{
				{"name": "nomic-embed-text"},
				{"name": "llama3.2"},
			},
		})
	}, 3)

	names, err := client.Models(context.Background())
	if err != nil {
		t.Fatalf("Models() error = %v", err)
	}
	if len(names) != 2 || names[0] != "nomic-embed-text" {
		t.Errorf("Models() = %v", names)
	}
}
