// Package loki is a thin client for the Loki HTTP query API.
package loki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrStatus matches every *StatusError via errors.Is.
var ErrStatus = errors.New("loki returned non-success status")

// StatusError is returned when Loki answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("loki returned %d: %s", e.StatusCode, e.Body)
}

// Is reports whether target is ErrStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// Config holds the Loki connection settings.
type Config struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Step    string        `mapstructure:"step"`
	Limit   int           `mapstructure:"limit"`
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		URL:     "http://localhost:3100",
		Timeout: 15 * time.Second,
		Step:    "30s",
		Limit:   5000,
	}
}

// Entry is one log line from a stream.
type Entry struct {
	Labels    map[string]string
	Timestamp time.Time
	Line      string
}

// Client queries a single Loki instance.
type Client struct {
	baseURL string
	step    string
	limit   int
	http    *http.Client
}

// NewClient creates a Client. Zero fields of cfg take their defaults.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Step == "" {
		cfg.Step = def.Step
	}
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		step:    cfg.Step,
		limit:   cfg.Limit,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// queryRangeResponse mirrors the streams result of /loki/api/v1/query_range.
type queryRangeResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

// QueryRange runs a LogQL log query over [start, end] and returns the matching
// lines, newest first.
func (c *Client) QueryRange(ctx context.Context, query string, start, end time.Time) ([]Entry, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("start", strconv.FormatInt(start.UnixNano(), 10))
	params.Set("end", strconv.FormatInt(end.UnixNano(), 10))
	params.Set("step", c.step)
	params.Set("direction", "backward")
	params.Set("limit", strconv.Itoa(c.limit))

	reqURL := c.baseURL + "/loki/api/v1/query_range?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("loki request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var result queryRangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if result.Data.ResultType != "" && result.Data.ResultType != "streams" {
		return nil, fmt.Errorf("unexpected result type %q for a log query", result.Data.ResultType)
	}

	var entries []Entry
	for _, stream := range result.Data.Result {
		for _, v := range stream.Values {
			ns, err := strconv.ParseInt(v[0], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse timestamp %q: %w", v[0], err)
			}
			entries = append(entries, Entry{
				Labels:    stream.Stream,
				Timestamp: time.Unix(0, ns).UTC(),
				Line:      v[1],
			})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

// Ready checks the Loki readiness endpoint.
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ready", http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("loki request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}
