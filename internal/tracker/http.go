package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// Config holds the HTTP tracker configuration.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries uint
}

// HTTPSyncer talks to a tracker exposing a small REST surface:
//
//	PUT  {base}/issues/{key}/estimate  {"estimate": n}
//	POST {base}/issues/{key}/comments  {"comments": [...]}
type HTTPSyncer struct {
	baseURL    string
	token      string
	maxRetries uint
	client     *http.Client
	newBackOff func() backoff.BackOff
}

// NewHTTPSyncer creates a syncer for the tracker at cfg.BaseURL.
func NewHTTPSyncer(cfg Config) (*HTTPSyncer, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid tracker url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}

	return &HTTPSyncer{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		maxRetries: cfg.MaxRetries,
		client:     &http.Client{Timeout: cfg.Timeout},
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}, nil
}

func (s *HTTPSyncer) SyncEstimate(ctx context.Context, issueKey string, estimate float64) error {
	body := map[string]float64{"estimate": estimate}
	return s.do(ctx, http.MethodPut, s.issueURL(issueKey, "estimate"), body)
}

func (s *HTTPSyncer) PostComments(ctx context.Context, issueKey string, comments []Comment) error {
	if len(comments) == 0 {
		return nil
	}
	body := map[string][]Comment{"comments": comments}
	return s.do(ctx, http.MethodPost, s.issueURL(issueKey, "comments"), body)
}

func (s *HTTPSyncer) issueURL(issueKey, action string) string {
	return fmt.Sprintf("%s/issues/%s/%s", s.baseURL, url.PathEscape(issueKey), action)
}

func (s *HTTPSyncer) do(ctx context.Context, method, target string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal tracker request: %w", err)
	}

	attempt := 0
	operation := func() (struct{}, error) {
		attempt++

		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.token != "" {
			req.Header.Set("Authorization", "Bearer "+s.token)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			log.Debug().Err(err).Str("url", target).Int("attempt", attempt).Msg("Tracker request failed")
			return struct{}{}, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return struct{}{}, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return struct{}{}, fmt.Errorf("tracker returned %s", resp.Status)
		default:
			return struct{}{}, backoff.Permanent(fmt.Errorf("tracker returned %s", resp.Status))
		}
	}

	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(s.maxRetries),
	)
	if err != nil {
		return fmt.Errorf("tracker %s %s: %w", method, target, err)
	}
	return nil
}
