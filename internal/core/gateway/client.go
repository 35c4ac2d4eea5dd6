package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Nzyazin/paychain/internal/core/logger"
	"github.com/Nzyazin/paychain/internal/core/models"
	"github.com/Nzyazin/paychain/pkg/config"
)

var (
	ErrNotConfigured   = errors.New("ai gateway api key is not configured")
	ErrRateLimited     = errors.New("ai gateway rate limited")
	ErrPaymentRequired = errors.New("ai gateway requires payment")
	ErrUpstream        = errors.New("ai gateway error")
	ErrTimeout         = errors.New("ai gateway request timed out")
)

const maxErrorBody = 4 << 10

type completionRequest struct {
	Model    string               `json:"model"`
	Messages []models.ChatMessage `json:"messages"`
	Stream   bool                 `json:"stream"`
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	url     string
	apiKey  string
	model   string
	timeout time.Duration
	http    *http.Client
	log     logger.Logger
}

func NewClient(cfg config.GatewayConfig, httpClient *http.Client, log logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		timeout: cfg.RequestTimeout,
		http:    httpClient,
		log:     log,
	}
}

// StreamCompletion starts a streamed completion and returns the event-stream
// body. The timeout covers the call until response headers arrive; the
// caller's context bounds the rest of the stream.
func (c *Client) StreamCompletion(ctx context.Context, messages []models.ChatMessage) (io.ReadCloser, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(completionRequest{Model: c.model, Messages: messages, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	var timer *time.Timer
	if c.timeout > 0 {
		timer = time.AfterFunc(c.timeout, cancel)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if timer != nil && !timer.Stop() {
		if resp != nil {
			resp.Body.Close()
		}
		cancel()
		c.log.Warn("AI gateway timed out",
			logger.DurationField("timeout", c.timeout))
		return nil, fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer cancel()
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Error("AI gateway returned an error",
			logger.IntField("status", resp.StatusCode),
			logger.StringField("body", string(body)))

		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return nil, ErrRateLimited
		case http.StatusPaymentRequired:
			return nil, ErrPaymentRequired
		default:
			return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
		}
	}

	c.log.Debug("AI gateway stream opened",
		logger.DurationField("latency", time.Since(start)))
	return &streamBody{ReadCloser: resp.Body, cancel: cancel}, nil
}

type streamBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *streamBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
