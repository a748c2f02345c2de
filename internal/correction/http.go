package correction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 30 * time.Second
	maxErrorBodyBytes     = 512
)

// retryConfig holds retry configuration
type retryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// shouldRetry determines if a status code is worth another attempt
func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// calculateBackoff returns initialBackoff * 2^attempt, capped at maxBackoff
func calculateBackoff(attempt int, config retryConfig) time.Duration {
	initial := config.InitialBackoff
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	maxBackoff := config.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}

	backoff := float64(initial) * math.Pow(2, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}
	return time.Duration(backoff)
}

// transport posts JSON to a provider endpoint with retries
type transport struct {
	client *http.Client
	retry  retryConfig
	logger *slog.Logger
}

// postJSON sends body and returns the raw 2xx response body
func (t *transport) postJSON(ctx context.Context, provider, url string, body any, headers map[string]string) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	log := t.logger.With(
		slog.String("provider", provider),
		slog.String("req_id", uuid.New().String()),
	)

	var lastErr error
	for attempt := 0; attempt <= t.retry.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		start := time.Now()
		raw, status, err := t.do(ctx, url, payload, headers)
		if err == nil && status/100 == 2 {
			log.Debug("Provider responded",
				slog.Int("status", status),
				slog.Int("bytes", len(raw)),
				slog.Duration("elapsed", time.Since(start)),
			)
			return raw, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("HTTP %d: %s", status, truncate(raw, maxErrorBodyBytes))
			if !shouldRetry(status) {
				return nil, &Failure{
					Provider: provider,
					Reason:   ReasonHTTP,
					Detail:   fmt.Sprintf("status %d", status),
					Err:      lastErr,
				}
			}
		}

		if attempt == t.retry.MaxRetries {
			break
		}

		backoff := calculateBackoff(attempt, t.retry)
		log.Warn("Provider request failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", t.retry.MaxRetries),
			slog.Duration("retry_after", backoff),
			slog.Any("error", lastErr),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, &Failure{
		Provider: provider,
		Reason:   ReasonHTTP,
		Detail:   fmt.Sprintf("request failed after %d retries", t.retry.MaxRetries),
		Err:      lastErr,
	}
}

func (t *transport) do(ctx context.Context, url string, payload []byte, headers map[string]string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return raw, resp.StatusCode, nil
}

func truncate(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "...(truncated)"
}
