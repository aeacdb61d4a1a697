// Package naming asks an OpenAI-compatible chat-completions endpoint to
// suggest a name and description for a collection based on its tab
// titles.
package naming

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/lotas/keeptabs/internal/types"
)

// DefaultHost is the standard OpenAI API base. Any compatible server
// works (Azure, local gateways) via Client.Host.
const DefaultHost = "https://api.openai.com/v1"

// DefaultModel is used when the caller doesn't pick one.
const DefaultModel = "gpt-4o-mini"

// ErrNoAPIKey is returned before any network call when no credential is
// configured.
var ErrNoAPIKey = errors.New("no API key configured")

const systemPrompt = `You name browser tab collections. Given a list of open tab titles, respond with ONLY a JSON object of the form {"name": "...", "description": "..."}. The name is at most four words; the description is one short sentence.`

// Suggestion is the structured result parsed from the model output.
type Suggestion struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Client calls the completion endpoint. The zero value is not usable;
// use New.
type Client struct {
	APIKey      string
	Host        string
	Model       string
	Temperature float64
	httpClient  *http.Client
}

// New creates a client for the given credential. Host and model fall
// back to the defaults when empty.
func New(apiKey, host, model string) *Client {
	if host == "" {
		host = DefaultHost
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		APIKey:      apiKey,
		Host:        host,
		Model:       model,
		Temperature: 0.7,
		httpClient:  http.DefaultClient,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Suggest builds a prompt from the tab titles and asks the endpoint for
// a {name, description} suggestion. With no tabs it returns an empty
// suggestion without touching the network. Without a key it fails with
// ErrNoAPIKey, also before any network call.
func (c *Client) Suggest(ctx context.Context, tabs []types.Tab) (Suggestion, error) {
	if c.APIKey == "" {
		return Suggestion{}, ErrNoAPIKey
	}
	if len(tabs) == 0 {
		return Suggestion{}, nil
	}

	titles := make([]string, 0, len(tabs))
	for _, t := range tabs {
		titles = append(titles, t.Title)
	}
	prompt := "Tab titles:\n" + strings.Join(titles, "\n")

	return c.complete(ctx, prompt)
}

// SuggestWithExcerpts is Suggest enriched with readable page excerpts
// for up to maxPages of the given tabs. Fetch failures are skipped
// silently — the suggestion degrades to titles only.
func (c *Client) SuggestWithExcerpts(ctx context.Context, tabs []types.Tab, maxPages int) (Suggestion, error) {
	if c.APIKey == "" {
		return Suggestion{}, ErrNoAPIKey
	}
	if len(tabs) == 0 {
		return Suggestion{}, nil
	}

	titles := make([]string, 0, len(tabs))
	for _, t := range tabs {
		titles = append(titles, t.Title)
	}
	var b strings.Builder
	b.WriteString("Tab titles:\n")
	b.WriteString(strings.Join(titles, "\n"))

	fetched := 0
	for _, t := range tabs {
		if fetched >= maxPages {
			break
		}
		_, text, err := FetchReadable(t.URL)
		if err != nil {
			continue
		}
		fetched++
		fmt.Fprintf(&b, "\n\nExcerpt from %q:\n%s", t.Title, excerpt(text))
	}

	return c.complete(ctx, b.String())
}

const maxExcerptLen = 600

func excerpt(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > maxExcerptLen {
		text = text[:maxExcerptLen] + "…"
	}
	return text
}

func (c *Client) complete(ctx context.Context, prompt string) (Suggestion, error) {
	reqBody := chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.Temperature,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return Suggestion{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Host+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Suggestion{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Suggestion{}, fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return Suggestion{}, fmt.Errorf("completion endpoint returned HTTP %d", resp.StatusCode)
		}
		return Suggestion{}, fmt.Errorf("decode completion response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if result.Error != nil && result.Error.Message != "" {
			return Suggestion{}, fmt.Errorf("completion endpoint: %s", result.Error.Message)
		}
		return Suggestion{}, fmt.Errorf("completion endpoint returned HTTP %d", resp.StatusCode)
	}

	if len(result.Choices) == 0 {
		return Suggestion{}, fmt.Errorf("completion response has no choices")
	}

	return parseSuggestion(result.Choices[0].Message.Content)
}

// parseSuggestion extracts the {name, description} object from the
// completion text. Models sometimes wrap the JSON in code fences or
// prose; the first balanced object is used.
func parseSuggestion(content string) (Suggestion, error) {
	content = strings.TrimSpace(content)

	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end <= start {
		return Suggestion{}, fmt.Errorf("completion is not a JSON object: %q", excerpt(content))
	}

	var s Suggestion
	if err := json.Unmarshal([]byte(content[start:end+1]), &s); err != nil {
		return Suggestion{}, fmt.Errorf("parse suggestion: %w", err)
	}
	return s, nil
}
