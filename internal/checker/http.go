package checker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hazz-dev/healthgate/internal/config"
	"github.com/hazz-dev/healthgate/internal/task"
)

// newHTTPWorker probes an HTTP endpoint and succeeds when it answers with
// the expected status code.
func newHTTPWorker(c config.Check) task.Worker {
	client := &http.Client{Timeout: c.Timeout.Duration}
	return func(ctx context.Context) (any, error) {
		start := time.Now()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Target, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		for k, v := range c.Headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		resp.Body.Close()

		expected := c.ExpectedStatus
		if expected == 0 {
			expected = http.StatusOK
		}
		if resp.StatusCode != expected {
			return nil, fmt.Errorf("expected status %d, got %d", expected, resp.StatusCode)
		}

		return map[string]any{
			"status_code": resp.StatusCode,
			"response_ms": time.Since(start).Milliseconds(),
		}, nil
	}
}
