package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusRunning    Status = "running"
	StatusFinished   Status = "finished"
)

// Result is the outcome of the most recent run. It is empty until the
// task has finished at least once.
type Result string

const (
	ResultNone    Result = ""
	ResultSuccess Result = "success"
	ResultFail    Result = "fail"
)

// ErrTimeout is recorded as a task failure when the worker exceeds its
// configured timeout.
var ErrTimeout = errors.New("task timed out")

// Worker is the unit of work a task executes. It returns arbitrary payload
// data on success.
type Worker func(ctx context.Context) (any, error)

// Meta carries the task attributes the orchestrator cares about.
type Meta struct {
	// Critical marks a check whose failure forces the overall status to red.
	Critical bool `json:"isCritical"`
	// Enabled controls whether the task participates in scheduled and
	// full runs. Disabled tasks can still be run by name.
	Enabled bool `json:"isEnabled"`
	// Order groups tasks into execution waves. Tasks sharing an order value
	// run concurrently; distinct values run in ascending sequence.
	Order int `json:"order"`
}

// Definition describes a task to register.
type Definition struct {
	Name     string
	Run      Worker
	Order    int
	Critical bool
	Disabled bool
	// Timeout bounds a single run of the worker. Zero means no limit.
	Timeout time.Duration
}

// Info is a point-in-time snapshot of a task. Timestamps and duration are
// nil until the corresponding lifecycle transition has happened.
type Info struct {
	Name       string     `json:"name"`
	Status     Status     `json:"status"`
	Result     Result     `json:"result"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt"`
	// Duration is the elapsed run time in seconds.
	Duration *float64 `json:"duration"`
	Data     any      `json:"data"`
	Error    string   `json:"error,omitempty"`
	Meta     Meta     `json:"_meta"`
}

// Task is a named unit of asynchronous work. Re-running a task overwrites
// its timing and result fields; concurrent runs of the same instance are
// not locked against each other.
type Task struct {
	def       Definition
	createdAt time.Time

	mu         sync.Mutex
	status     Status
	result     Result
	startedAt  *time.Time
	finishedAt *time.Time
	duration   *float64
	data       any
	errMsg     string
}

// New validates the definition and builds a Task.
func New(def Definition) (*Task, error) {
	if def.Name == "" {
		return nil, errors.New("task name is required")
	}
	if def.Run == nil {
		return nil, fmt.Errorf("task %q: worker function is required", def.Name)
	}
	return &Task{
		def:       def,
		createdAt: time.Now(),
		status:    StatusNotStarted,
	}, nil
}

// Name returns the task's unique name.
func (t *Task) Name() string {
	return t.def.Name
}

// Meta returns the task's orchestration attributes.
func (t *Task) Meta() Meta {
	return Meta{
		Critical: t.def.Critical,
		Enabled:  !t.def.Disabled,
		Order:    t.def.Order,
	}
}

// Run executes the worker, recording lifecycle transitions and outcome.
// A worker error is recorded on the task and returned to the caller.
func (t *Task) Run(ctx context.Context) (any, error) {
	started := time.Now()
	t.mu.Lock()
	t.status = StatusRunning
	t.startedAt = &started
	t.mu.Unlock()

	data, err := t.invoke(ctx)

	finished := time.Now()
	seconds := finished.Sub(started).Seconds()

	t.mu.Lock()
	t.status = StatusFinished
	t.finishedAt = &finished
	t.duration = &seconds
	if err != nil {
		t.result = ResultFail
		t.errMsg = err.Error()
		t.data = nil
	} else {
		t.result = ResultSuccess
		t.errMsg = ""
		t.data = data
	}
	t.mu.Unlock()

	return data, err
}

// invoke runs the worker, racing it against the configured timeout so a
// hung worker cannot stall the whole batch.
func (t *Task) invoke(ctx context.Context) (any, error) {
	if t.def.Timeout <= 0 {
		return runWorker(ctx, t.def.Run)
	}

	ctx, cancel := context.WithTimeout(ctx, t.def.Timeout)
	defer cancel()

	type outcome struct {
		data any
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		data, err := runWorker(ctx, t.def.Run)
		done <- outcome{data, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w after %s", ErrTimeout, t.def.Timeout)
	case out := <-done:
		return out.data, out.err
	}
}

func runWorker(ctx context.Context, fn Worker) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// Info returns a consistent snapshot of the task's current state.
func (t *Task) Info() Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Info{
		Name:       t.def.Name,
		Status:     t.status,
		Result:     t.result,
		CreatedAt:  t.createdAt,
		StartedAt:  t.startedAt,
		FinishedAt: t.finishedAt,
		Duration:   t.duration,
		Data:       t.data,
		Error:      t.errMsg,
		Meta:       t.Meta(),
	}
}
