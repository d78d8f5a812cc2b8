// Package gemini is the HTTP client for the Gemini generateContent API. It
// implements both similarity scoring and session relevance judging, with a
// circuit breaker so a degraded model does not stall every comparison.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/pricehound/pricehound/internal/catalog"
	"github.com/pricehound/pricehound/internal/matcher"
)

// Config holds the client settings.
type Config struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// DefaultConfig returns the production defaults; the API key always comes
// from configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://generativelanguage.googleapis.com",
		Model:   "gemini-2.0-flash",
		Timeout: 60 * time.Second,
	}
}

// Client talks to the generateContent endpoint.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[string]
	logger     *zap.Logger
}

// New constructs a Client. Zero-valued Config fields fall back to defaults.
func New(cfg Config, logger *zap.Logger) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	settings := gobreaker.Settings{
		Name:    "gemini",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    gobreaker.NewCircuitBreaker[string](settings),
		logger:     logger,
	}
}

// Score implements catalog.Scorer. Unparseable model output gets one
// regeneration before the error reaches the caller.
func (c *Client) Score(ctx context.Context, target catalog.TargetProduct, candidates []catalog.Candidate) ([]catalog.Match, error) {
	prompt := buildComparisonPrompt(target, candidates)
	text, err := c.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	matches, err := matcher.ParseMatches(text)
	if err == nil {
		return matches, nil
	}
	c.logger.Warn("unparseable scorer output, regenerating", zap.Error(err))
	text, genErr := c.generate(ctx, prompt)
	if genErr != nil {
		return nil, genErr
	}
	return matcher.ParseMatches(text)
}

// JudgeRelevance returns the indices of titles that do not answer the
// keyword (accessories, unrelated listings).
func (c *Client) JudgeRelevance(ctx context.Context, keyword string, titles []string) ([]int, error) {
	text, err := c.generate(ctx, buildRelevancePrompt(keyword, titles))
	if err != nil {
		return nil, err
	}
	var payload struct {
		FilteredIndices []int `json:"filtered_indices"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", catalog.ErrScorerMalformedOutput, err)
	}
	return payload.FilteredIndices, nil
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// generate posts the prompt through the circuit breaker and returns the
// model's text. Transport and upstream failures come back wrapped in
// catalog.ErrScorerUnavailable.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	text, err := c.breaker.Execute(func() (string, error) {
		return c.postGenerate(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: circuit open", catalog.ErrScorerUnavailable)
		}
		return "", fmt.Errorf("%w: %v", catalog.ErrScorerUnavailable, err)
	}
	return text, nil
}

func (c *Client) postGenerate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Goog-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("generate status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty generate response")
	}
	return decoded.Candidates[0].Content.Parts[0].Text, nil
}
