package checker

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/hazz-dev/healthgate/internal/config"
	"github.com/hazz-dev/healthgate/internal/task"
)

// newTCPWorker probes a TCP address and succeeds when a connection can be
// established.
func newTCPWorker(c config.Check) task.Worker {
	return func(ctx context.Context) (any, error) {
		start := time.Now()

		dialer := &net.Dialer{Timeout: c.Timeout.Duration}
		conn, err := dialer.DialContext(ctx, "tcp", c.Target)
		if err != nil {
			return nil, fmt.Errorf("dial tcp %s: %w", c.Target, err)
		}
		conn.Close()

		return map[string]any{
			"response_ms": time.Since(start).Milliseconds(),
		}, nil
	}
}
