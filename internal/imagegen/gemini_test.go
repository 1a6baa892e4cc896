package imagegen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeminiGenerate_InlineDataURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "key=test-key") {
			t.Fatalf("missing api key in query: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{{
						"inlineData": map[string]any{"mimeType": "image/png", "data": "QUJD"},
					}},
				},
			}},
		})
	}))
	defer srv.Close()

	g := NewGeminiGenerator("test-key", "")
	g.BaseURL = srv.URL

	url, err := g.Generate(context.Background(), "a prompt")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if url != "data:image/png;base64,QUJD" {
		t.Fatalf("url = %q", url)
	}
}

func TestGeminiGenerate_NoImageInResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer srv.Close()

	g := NewGeminiGenerator("test-key", "")
	g.BaseURL = srv.URL

	if _, err := g.Generate(context.Background(), "a prompt"); err == nil {
		t.Fatal("expected error when response has no image")
	}
}

func TestGeminiGenerate_NoAPIKey(t *testing.T) {
	g := NewGeminiGenerator("", "")
	if _, err := g.Generate(context.Background(), "a prompt"); err == nil {
		t.Fatal("expected error without api key")
	}
}
