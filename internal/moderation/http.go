// Package moderation screens user text with an external classifier.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"storyfeed/internal/feed"
	"storyfeed/internal/model"
)

// DefaultTimeout bounds a single moderation request.
const DefaultTimeout = 10 * time.Second

// HTTPModerator calls an OpenAI-compatible moderation endpoint.
//
// Request:  POST {"input": "<text>"} with "Authorization: Bearer <key>".
// Response: {"results": [{"flagged": bool, "categories": {"<name>": bool}}]}.
type HTTPModerator struct {
	endpoint string
	apiKey   string
	client   *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *slog.Logger
}

var _ feed.ContentModerator = (*HTTPModerator)(nil)

// HTTPOptions configures NewHTTPModerator.
type HTTPOptions struct {
	Endpoint      string
	APIKey        string
	RatePerSecond float64 // <= 0 disables the client-side limit
	Timeout       time.Duration
	Client        *http.Client
	Logger        *slog.Logger
}

// NewHTTPModerator creates a moderator for the given endpoint.
func NewHTTPModerator(opts HTTPOptions) (*HTTPModerator, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("moderation endpoint must be set")
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HTTPModerator{
		endpoint: opts.Endpoint,
		apiKey:   opts.APIKey,
		client:   opts.Client,
		limiter:  rate.NewLimiter(limit, 1),
		timeout:  opts.Timeout,
		logger:   opts.Logger,
	}, nil
}

type moderationRequest struct {
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		Flagged    bool            `json:"flagged"`
		Categories map[string]bool `json:"categories"`
	} `json:"results"`
}

// Moderate classifies text. Transport failures, non-2xx responses and
// malformed bodies are returned as errors; the caller decides whether to
// fail open.
func (m *HTTPModerator) Moderate(ctx context.Context, text string) (*model.ModerationResult, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for moderation rate limit: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	payload, err := json.Marshal(moderationRequest{Input: text})
	if err != nil {
		return nil, fmt.Errorf("encoding moderation request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building moderation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling moderation endpoint: %w", err)
	}
	defer resp.Body.Close()
	m.logger.Debug("moderation response", "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("moderation endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed moderationResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding moderation response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return nil, fmt.Errorf("moderation response has no results")
	}

	var flagged []string
	anyFlagged := false
	for _, r := range parsed.Results {
		if !r.Flagged {
			continue
		}
		anyFlagged = true
		for name, hit := range r.Categories {
			if hit {
				flagged = append(flagged, name)
			}
		}
	}
	if !anyFlagged {
		return &model.ModerationResult{Safe: true}, nil
	}

	sort.Strings(flagged)
	reason := strings.Join(flagged, ", ")
	if reason == "" {
		reason = "flagged by content moderation"
	}
	return &model.ModerationResult{Safe: false, Reason: reason}, nil
}
