// Package cache holds a write-through client for scored analysis results,
// backed by Upstash Redis over its REST interface.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/prachya-t/tickerchat/agent/contract"
)

const (
	defaultKeyPrefix     = "fin:analysis:"
	defaultTTL           = time.Hour
	maxResponseSizeBytes = 2 << 20
)

type Config struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	TTL     time.Duration `envconfig:"TTL" split_words:"true" default:"1h"`
}

// Option customizes UpstashClient.
type Option func(*UpstashClient)

func WithKeyPrefix(prefix string) Option {
	return func(c *UpstashClient) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			c.keyPrefix = trimmed
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *UpstashClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// UpstashClient stores analysis entries in Upstash Redis via REST.
type UpstashClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	defaultTTL time.Duration
}

var _ contractx.Cache = (*UpstashClient)(nil)

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// payload is the stored wire shape for one cached analysis.
type payload struct {
	Ticker   string                    `json:"ticker"`
	Score    contractx.ScoreResult     `json:"score"`
	Record   contractx.FinancialRecord `json:"record"`
	StoredAt time.Time                 `json:"storedAt"`
}

func NewUpstashClient(cfg Config, opts ...Option) (*UpstashClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	client := &UpstashClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		keyPrefix:  defaultKeyPrefix,
		defaultTTL: ttl,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// Put writes one entry under the prefixed ticker key, with the entry's TTL or
// the client default. All failures are reported as cache write errors so the
// caller can treat them as non-fatal.
func (c *UpstashClient) Put(ctx context.Context, entry contractx.CacheEntry) error {
	ticker := strings.TrimSpace(entry.Ticker)
	if ticker == "" {
		return fmt.Errorf("%w: cache entry has no ticker", contractx.ErrCacheWrite)
	}

	body, err := json.Marshal(payload{
		Ticker:   ticker,
		Score:    entry.Score,
		Record:   entry.Record,
		StoredAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("%w: marshal entry for %s: %v", contractx.ErrCacheWrite, ticker, err)
	}

	ttl := entry.TTL
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	cmd := []any{"SET", c.keyPrefix + ticker, string(body)}
	if ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(ttl))
	}

	if _, err := c.exec(ctx, cmd); err != nil {
		return fmt.Errorf("%w: store %s: %v", contractx.ErrCacheWrite, ticker, err)
	}
	return nil
}

func (c *UpstashClient) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
