package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/scanvault/docpipe/internal/common"
)

// ErrMalformedResponse marks a 2xx response whose body does not satisfy the
// result schema. Not retried; distinct from RecognitionUnavailable.
var ErrMalformedResponse = errors.New("malformed recognition response")

// ErrPayloadTooLarge marks a request rejected client-side before any network
// call because the image exceeds the transport size limit.
var ErrPayloadTooLarge = errors.New("recognition payload exceeds size limit")

// Config holds the remote recognition service settings.
type Config struct {
	BaseURL         string
	APIKey          string
	MaxRetries      int           // total attempts per request, default 3
	BaseDelay       time.Duration // linear backoff step (attempt * BaseDelay)
	Timeout         time.Duration
	MaxPayloadBytes int // image payload cap, default 4MB
}

// Client calls the recognition service with linearly backed-off retries.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter // nil disables pacing
	log        *slog.Logger

	// sleep is swapped in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config, limiter *rate.Limiter, logger *slog.Logger) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = 4 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		log:        logger,
		sleep:      sleepCtx,
	}
}

// Recognize sends one request, retrying transport and server failures up to
// MaxRetries times with linearly increasing backoff. The first success
// short-circuits. Exhausting retries yields RecognitionUnavailable carrying
// the last error's message.
func (c *Client) Recognize(ctx context.Context, req Request) (*Result, error) {
	if (req.Text == "") == (len(req.Image) == 0) {
		return nil, fmt.Errorf("exactly one of text or image must be populated")
	}
	if len(req.Image) > c.cfg.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(req.Image), c.cfg.MaxPayloadBytes)
	}

	rid := uuid.New().String()
	mode := "text"
	if len(req.Image) > 0 {
		mode = "image"
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/recognize"
	schema := BuildResultJSONSchema()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		raw, status, err := c.post(ctx, rid, endpoint, req)
		if err != nil {
			lastErr = err
			c.log.Warn("recognition.attempt_failed",
				"req_id", rid, "mode", mode, "attempt", attempt,
				"max_retries", c.cfg.MaxRetries, "status", status, "error", err,
			)
			if attempt < c.cfg.MaxRetries {
				if serr := c.sleep(ctx, time.Duration(attempt)*c.cfg.BaseDelay); serr != nil {
					return nil, serr
				}
			}
			continue
		}

		if err := ValidateJSONAgainstSchema(schema, raw); err != nil {
			c.log.Error("recognition.malformed_response", "req_id", rid, "mode", mode, "error", err)
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		var out Result
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("%w: decode: %v", ErrMalformedResponse, err)
		}
		c.log.Debug("recognition.ok", "req_id", rid, "mode", mode, "attempt", attempt,
			"text_len", len(out.Text), "metadata_fields", len(out.Metadata), "line_items", len(out.LineItems))
		return &out, nil
	}

	msg := "no attempts made"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	return nil, common.NewError(common.KindRecognitionUnavailable,
		fmt.Sprintf("recognition failed after %d attempts: %s", c.cfg.MaxRetries, msg), lastErr)
}

// post sends one JSON request and returns the raw response body.
func (c *Client) post(ctx context.Context, rid, url string, body any) ([]byte, int, error) {
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("encode json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Warn("recognition.response_body_close_error", "req_id", rid, "error", err)
		}
	}()

	raw, _ := io.ReadAll(resp.Body)

	c.log.Debug("recognition.http",
		"req_id", rid,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return raw, resp.StatusCode, fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}
	return raw, resp.StatusCode, nil
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
