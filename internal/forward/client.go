// Package forward ships recognized transcripts to the remote inference
// endpoint. Deliveries are retried with exponential backoff and guarded by
// a circuit breaker so a dead endpoint does not stall the voice pipeline.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgevoice/edgevoice/internal/observe"
)

const (
	defaultTimeout     = 5 * time.Second
	defaultMaxAttempts = 3
	defaultBackoffBase = time.Second

	// payloadSource identifies this daemon in forwarded payloads.
	payloadSource = "edgevoice"
)

// Payload is the JSON body POSTed to the inference endpoint.
type Payload struct {
	Transcript string `json:"transcript"`
	Timestamp  string `json:"timestamp"`
	Source     string `json:"source"`
	WakeWord   string `json:"wake_word"`
}

// Response is the reply from the inference endpoint, when it sends one.
type Response struct {
	Response string `json:"response"`
	Status   string `json:"status"`
}

// Config tunes a Client. Zero values get defaults.
type Config struct {
	// Endpoint is the full URL transcripts are POSTed to.
	Endpoint string

	// WakeWord is included in every payload so the endpoint knows which
	// model triggered the capture.
	WakeWord string

	// Timeout bounds each individual HTTP attempt. Default 5s.
	Timeout time.Duration

	// MaxAttempts is the number of delivery attempts per transcript,
	// including the first. Default 3.
	MaxAttempts int

	// BackoffBase is the wait before the second attempt; it doubles for
	// each retry after that. Default 1s.
	BackoffBase time.Duration

	Logger  zerolog.Logger
	Breaker *Breaker
}

// Client delivers transcripts over HTTP.
type Client struct {
	endpoint    string
	wakeWord    string
	maxAttempts int
	backoffBase time.Duration
	httpc       *http.Client
	breaker     *Breaker
	log         zerolog.Logger
	metrics     *observe.Metrics
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	log := cfg.Logger.With().Str("component", "forward").Logger()
	if cfg.Breaker == nil {
		cfg.Breaker = NewBreaker(BreakerConfig{}, log)
	}
	return &Client{
		endpoint:    cfg.Endpoint,
		wakeWord:    cfg.WakeWord,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		httpc:       &http.Client{Timeout: cfg.Timeout},
		breaker:     cfg.Breaker,
		log:         log,
		metrics:     observe.Default(),
	}
}

// Send delivers one transcript, retrying transient failures. It returns
// the endpoint's reply text, which may be empty for endpoints that only
// acknowledge.
func (c *Client) Send(ctx context.Context, transcript string) (string, error) {
	payload := Payload{
		Transcript: transcript,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Source:     payloadSource,
		WakeWord:   c.wakeWord,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}

	var reply string
	err = c.breaker.Execute(func() error {
		var attemptErr error
		for attempt := 1; attempt <= c.maxAttempts; attempt++ {
			if attempt > 1 {
				wait := c.backoffBase << (attempt - 2)
				c.log.Warn().
					Err(attemptErr).
					Int("attempt", attempt).
					Dur("backoff", wait).
					Msg("Retrying delivery")
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(wait):
				}
			}
			reply, attemptErr = c.post(ctx, body)
			if attemptErr == nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		return attemptErr
	})
	if err != nil {
		c.metrics.TranscriptsForwarded.Add(ctx, 1, observe.StatusAttr("error"))
		return "", err
	}

	c.metrics.TranscriptsForwarded.Add(ctx, 1, observe.StatusAttr("ok"))
	c.log.Info().Str("transcript", transcript).Msg("Transcript delivered")
	return reply, nil
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting transcript: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading reply: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("endpoint returned %s", resp.Status)
	}

	var r Response
	if err := json.Unmarshal(raw, &r); err != nil {
		// Plain-text or empty replies are fine.
		return "", nil
	}
	return r.Response, nil
}

// Healthy reports whether the breaker currently allows deliveries.
func (c *Client) Healthy() bool {
	return c.breaker.State() != BreakerOpen
}
