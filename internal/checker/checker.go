// Package checker provides task workers probing backend dependencies.
package checker

import (
	"fmt"

	"github.com/hazz-dev/healthgate/internal/config"
	"github.com/hazz-dev/healthgate/internal/task"
)

// Worker returns the task worker for the given check configuration.
func Worker(c config.Check) (task.Worker, error) {
	switch c.Type {
	case "http":
		return newHTTPWorker(c), nil
	case "tcp":
		return newTCPWorker(c), nil
	case "docker":
		return newDockerWorker(c), nil
	default:
		return nil, fmt.Errorf("unknown checker type %q", c.Type)
	}
}

// Definition builds a registrable task definition for the given check.
func Definition(c config.Check) (task.Definition, error) {
	worker, err := Worker(c)
	if err != nil {
		return task.Definition{}, err
	}
	return task.Definition{
		Name:     c.Name,
		Run:      worker,
		Order:    c.Order,
		Critical: c.Critical,
		Disabled: c.Disabled,
		Timeout:  c.Timeout.Duration,
	}, nil
}
