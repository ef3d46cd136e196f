package synctera

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
	"github.com/poolcard/poolcard_service/internal/infrastructure/config"
	"github.com/poolcard/poolcard_service/pkg/circuitbreaker"
	"github.com/poolcard/poolcard_service/pkg/logger"
	"github.com/poolcard/poolcard_service/pkg/retry"
)

// Client is the low-level Synctera HTTP client. All calls go through the
// circuit breaker; 429 and 5xx responses are retried with backoff.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
	log        *logger.Logger
}

// NewClient creates the Synctera client
func NewClient(cfg config.SyncteraConfig, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		breaker:    circuitbreaker.New("synctera", circuitbreaker.DefaultConfig(), log),
		retrier:    retry.NewRetrier(retry.DefaultPolicy(), log),
		log:        log,
	}
}

// doRequest performs one authenticated request and decodes the response
// into out (when non-nil).
func (c *Client) doRequest(ctx context.Context, method, path string, body, out interface{}) error {
	return c.retrier.Do(ctx, func() error {
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.doOnce(ctx, method, path, body, out)
		})
		return err
	})
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domainerrors.ProviderUnavailableError(ProviderName, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domainerrors.ProviderUnavailableError(ProviderName, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		c.log.Warn("synctera transient failure",
			"status", resp.StatusCode, "method", method, "path", path)
		return domainerrors.ProviderUnavailableError(ProviderName,
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(respBody, 256)))

	default:
		return domainerrors.ProviderRejectedError(ProviderName,
			fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(respBody, 256)))
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
