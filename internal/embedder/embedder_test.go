package embedder

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %q, want /api/embed", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("model = %q", req.Model)
		}
		out := ollamaEmbedResponse{}
		for i := range req.Input {
			out.Embeddings = append(out.Embeddings, []float32{float32(i), 1})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL + "/", Model: "nomic-embed-text"})
	got, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 2 || got[1][0] != 1 {
		t.Errorf("embeddings = %v", got)
	}
}

func TestOllamaEmbedder_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"model \"nope\" not found"}`)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nope"})
	_, err := e.Embed(context.Background(), []string{"a"})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v, want model-not-found error", err)
	}
}

func TestOllamaEmbedder_CountMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"embeddings":[[1,2]]}`)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m"})
	if _, err := e.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected count mismatch error")
	}
}

func TestOpenAIEmbedder_ReordersByIndex(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","model":"text-embedding-3-small","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}]}`)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "text-embedding-3-small"})
	got, err := e.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got[0][0] != 1 || got[1][1] != 1 {
		t.Errorf("embeddings not placed by index: %v", got)
	}
}

func TestOpenAIEmbedder_EmptyInput(t *testing.T) {
	t.Parallel()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: "http://127.0.0.1:0", APIKey: "k", Model: "m"})
	got, err := e.Embed(context.Background(), nil)
	if err != nil || got != nil {
		t.Fatalf("Embed(nil) = %v, %v", got, err)
	}
}

func TestBackend(t *testing.T) {
	tests := []struct {
		name      string
		embedding string
		model     string
		want      string
	}{
		{"explicit", "openai", "ollama", "openai"},
		{"inherits chat provider", "", "azure", "azure"},
		{"none maps to ollama", "", "none", "ollama"},
		{"default", "", "", "ollama"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("EMBEDDING_PROVIDER", tt.embedding)
			t.Setenv("MODEL_PROVIDER", tt.model)
			if got := Backend(); got != tt.want {
				t.Errorf("Backend() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultDimensions(t *testing.T) {
	t.Setenv("EMBEDDING_DIMENSIONS", "")
	if got := DefaultDimensions("ollama"); got != 768 {
		t.Errorf("ollama = %d", got)
	}
	if got := DefaultDimensions("openai"); got != 1536 {
		t.Errorf("openai = %d", got)
	}
	t.Setenv("EMBEDDING_DIMENSIONS", "256")
	if got := DefaultDimensions("ollama"); got != 256 {
		t.Errorf("override = %d", got)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	for _, backend := range []string{"openai", "azure", "gemini", "bedrock", "bogus"} {
		t.Run(backend, func(t *testing.T) {
			t.Setenv("EMBEDDING_PROVIDER", backend)
			for _, k := range []string{"EMBEDDING_API_KEY", "OPENAI_API_KEY", "AZURE_OPENAI_API_KEY", "GOOGLE_API_KEY"} {
				t.Setenv(k, "")
			}
			if _, err := NewFromEnv(context.Background()); err == nil {
				t.Fatalf("expected error for %s without credentials", backend)
			}
		})
	}
}

func TestValidateForRAG(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("not required", func(t *testing.T) {
		t.Setenv("RETRIEVAL_STRATEGY", "heuristic")
		t.Setenv("QDRANT_HOST", "")
		t.Setenv("PGVECTOR_DSN", "")
		t.Setenv("EMBEDDING_PROVIDER", "bedrock")
		if err := ValidateForRAG(log); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("embedding strategy without key", func(t *testing.T) {
		t.Setenv("RETRIEVAL_STRATEGY", "embedding")
		t.Setenv("EMBEDDING_PROVIDER", "openai")
		t.Setenv("EMBEDDING_API_KEY", "")
		t.Setenv("OPENAI_API_KEY", "")
		if err := ValidateForRAG(log); err == nil {
			t.Fatal("expected missing key error")
		}
	})

	t.Run("pgvector with ollama", func(t *testing.T) {
		t.Setenv("RETRIEVAL_STRATEGY", "")
		t.Setenv("PGVECTOR_DSN", "postgres://localhost/db")
		t.Setenv("EMBEDDING_PROVIDER", "ollama")
		t.Setenv("EMBEDDING_MODEL", "llama3")
		if err := ValidateForRAG(log); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()

	for model, want := range map[string]bool{
		"nomic-embed-text":       false,
		"text-embedding-3-small": false,
		"gpt-4o":                 true,
		"llama3:8b":              true,
		"gemini-1.5-pro":         true,
		"text-embedding-004":     false,
	} {
		if got := looksLikeChatModel(model); got != want {
			t.Errorf("looksLikeChatModel(%q) = %v, want %v", model, got, want)
		}
	}
}
