package hasura

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	qerrors "github.com/kyleking/qik-trak/internal/errors"
)

// WaitReady polls the health endpoint with exponential backoff until it answers 200.
// A zero timeout disables the probe.
func (c *Client) WaitReady(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}

	if c.endpoint == "" {
		return qerrors.NewConfigError("metadata endpoint is not set", "hasuraEndpoint")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	backoff := c.backoffBase

	for {
		lastErr := c.probe(ctx)
		if lastErr == nil {
			return nil
		}

		select {
		case <-time.After(backoff):
			backoff = c.nextBackoff(backoff)
		case <-ctx.Done():
			return qerrors.Wrapf(lastErr, qerrors.ErrTypeNetwork, "%s not ready after %s", c.endpoint, timeout).
				WithSuggestion("Check that the GraphQL engine container is running").
				WithSuggestion("Increase QIKTRAK_STARTUP_TIMEOUT for slow starts")
		}
	}
}

// probe performs one health check
func (c *Client) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+HealthPath, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}

	return nil
}

// nextBackoff doubles the delay up to the maximum
func (c *Client) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > c.maxBackoff {
		return c.maxBackoff
	}

	return next
}
