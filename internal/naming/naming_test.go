package naming

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lotas/keeptabs/internal/types"
)

func TestSuggestNoAPIKey(t *testing.T) {
	c := New("", "http://unused", "")
	_, err := c.Suggest(context.Background(), []types.Tab{{Title: "x"}})
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestSuggestNoTabsSkipsNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := New("sk-test", srv.URL, "")
	s, err := c.Suggest(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != (Suggestion{}) {
		t.Errorf("expected empty suggestion, got %+v", s)
	}
	if called {
		t.Error("no network call expected for empty tab list")
	}
}

func TestSuggest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected /chat/completions, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("bad auth header: %q", got)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[1].Role != "user" {
			t.Fatalf("unexpected messages: %+v", req.Messages)
		}
		// Titles joined with newlines.
		want := "Tab titles:\nTrail Guide\nCamping Gear"
		if req.Messages[1].Content != want {
			t.Errorf("prompt = %q, want %q", req.Messages[1].Content, want)
		}

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"content": `{"name": "Outdoor Trips", "description": "Trail guides and camping gear."}`,
				}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New("sk-test", srv.URL, "")
	s, err := c.Suggest(context.Background(), []types.Tab{
		{Title: "Trail Guide", URL: "https://example.com/trails"},
		{Title: "Camping Gear", URL: "https://example.com/gear"},
	})
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if s.Name != "Outdoor Trips" {
		t.Errorf("name = %q", s.Name)
	}
	if s.Description != "Trail guides and camping gear." {
		t.Errorf("description = %q", s.Description)
	}
}

func TestSuggestParsesFencedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"content": "```json\n{\"name\": \"Research\", \"description\": \"Papers.\"}\n```",
				}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New("sk-test", srv.URL, "")
	s, err := c.Suggest(context.Background(), []types.Tab{{Title: "A paper"}})
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if s.Name != "Research" {
		t.Errorf("name = %q", s.Name)
	}
}

func TestSuggestUpstreamErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "Incorrect API key provided"},
		})
	}))
	defer srv.Close()

	c := New("sk-bad", srv.URL, "")
	_, err := c.Suggest(context.Background(), []types.Tab{{Title: "x"}})
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if got := err.Error(); got != "completion endpoint: Incorrect API key provided" {
		t.Errorf("error should carry the upstream message, got %q", got)
	}
}

func TestSuggestUpstreamErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New("sk-test", srv.URL, "")
	_, err := c.Suggest(context.Background(), []types.Tab{{Title: "x"}})
	if err == nil {
		t.Error("expected error for 502 response")
	}
}

func TestSuggestCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New("sk-test", srv.URL, "")
	if _, err := c.Suggest(ctx, []types.Tab{{Title: "x"}}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestParseSuggestionRejectsProse(t *testing.T) {
	if _, err := parseSuggestion("I could not come up with a name."); err == nil {
		t.Error("expected error for non-JSON completion")
	}
}

func TestFetchReadableSkipsInternalURLs(t *testing.T) {
	for _, url := range []string{"about:blank", "chrome://settings", "moz-extension://abc"} {
		if _, _, err := FetchReadable(url); err == nil {
			t.Errorf("expected error for %s", url)
		}
	}
}
