package ollama

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSupportsToolCalling(t *testing.T) {
	tests := []struct {
		model string
		want  bool
	}{
		{"llama3.1:latest", true},
		{"Llama3.2:3b", true},
		{"llama3:8b", false},
		{"llama3-gradient:8b", false},
		{"qwen2.5-coder:7b", true},
		{"codellama:13b", false},
		{"gemma2:9b", false},
		{"totally-new-model", false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := SupportsToolCalling(tt.model); got != tt.want {
				t.Errorf("SupportsToolCalling(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestListModelsAndPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"models":[{"name":"llama3.1:latest","model":"llama3.1:latest","size":4920753328},{"name":"qwen2.5:7b","model":"qwen2.5:7b","size":4683087332}]}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("got %d models", len(models))
	}
	if m := models[0]; m.Name != "llama3.1:latest" || m.InternalName != m.Name || m.Provider != "ollama" || m.Size != 4920753328 {
		t.Errorf("models[0] = %+v", m)
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if got := c.ChatURL(); got != srv.URL+"/api/chat" {
		t.Errorf("ChatURL() = %q", got)
	}
}

func TestPingUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Error("Ping() should fail for a closed server")
	}
}
