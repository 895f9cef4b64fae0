// Package openai implements llm.Provider on the OpenAI chat completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/HerbHall/logsentinel/pkg/llm"
	"go.uber.org/zap"
)

const providerName = "openai"

var (
	_ llm.Provider = (*Client)(nil)
	_ llm.Pinger   = (*Client)(nil)
)

// Client talks to one OpenAI-compatible endpoint.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New validates cfg and builds a client. An API key is required.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api_key is required")
	}
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		sleep:  sleepCtx,
	}, nil
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage llm.Usage `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Chat sends messages to /v1/chat/completions, retrying rate limits and
// server failures up to MaxRetries times with linear backoff.
func (c *Client) Chat(ctx context.Context, messages []llm.Message, opts ...llm.Option) (*llm.Response, error) {
	if len(messages) == 0 {
		return nil, &llm.Error{Provider: providerName, Kind: llm.KindBadRequest, Msg: "no messages"}
	}
	req := llm.Resolve(opts...)
	if req.Model == "" {
		req.Model = c.cfg.Model
	}

	body := completionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages:    make([]wireMessage, 0, len(messages)),
	}
	for _, m := range messages {
		body.Messages = append(body.Messages, wireMessage(m))
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}

	var out completionResponse
	for attempt := 0; ; attempt++ {
		err = c.post(ctx, "/v1/chat/completions", payload, &out)
		if err == nil || !llm.Retryable(err) || attempt >= c.cfg.MaxRetries {
			break
		}
		wait := c.cfg.RetryBackoff * time.Duration(attempt+1)
		c.logger.Debug("retrying chat completion",
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if serr := c.sleep(ctx, wait); serr != nil {
			return nil, classify(serr)
		}
	}
	if err != nil {
		return nil, err
	}

	if len(out.Choices) == 0 {
		return nil, &llm.Error{Provider: providerName, Kind: llm.KindUnavailable, Msg: "completion has no choices"}
	}
	c.logger.Debug("chat completion",
		zap.String("model", out.Model),
		zap.String("finish_reason", out.Choices[0].FinishReason),
		zap.Int("total_tokens", out.Usage.TotalTokens),
	)
	return &llm.Response{
		Content: strings.TrimSpace(out.Choices[0].Message.Content),
		Model:   out.Model,
		Usage:   out.Usage,
	}, nil
}

// Ping lists models, which checks the key without generating tokens.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/models", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return statusErr(resp.StatusCode, resp.Status, nil)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// post sends payload and decodes a 2xx body into out.
func (c *Client) post(ctx context.Context, path string, payload []byte, out any) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return statusErr(resp.StatusCode, resp.Status, raw)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &llm.Error{Provider: providerName, Kind: llm.KindUnavailable, Msg: "decode completion", Err: err}
	}
	return nil
}

// statusErr builds an error from a non-2xx response, preferring the API's
// own message over the status line.
func statusErr(code int, status string, raw []byte) error {
	msg := status
	var ae apiError
	if len(raw) > 0 && json.Unmarshal(raw, &ae) == nil && ae.Error.Message != "" {
		msg = ae.Error.Message
	}
	return &llm.Error{Provider: providerName, Kind: llm.KindForStatus(code), Status: code, Msg: msg}
}

// classify wraps a transport failure.
func classify(err error) error {
	kind := llm.KindUnavailable
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = llm.KindTimeout
	case errors.As(err, &ne) && ne.Timeout():
		kind = llm.KindTimeout
	}
	return &llm.Error{Provider: providerName, Kind: kind, Err: err}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
