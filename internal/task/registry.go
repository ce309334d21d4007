package task

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// UnknownTaskError reports a request for a task name that was never
// registered. HTTP handlers map it to a client error.
type UnknownTaskError struct {
	Name string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("unknown task %q", e.Name)
}

// Registry owns the set of registered tasks. Registering a duplicate name
// is rejected so wiring bugs surface at startup instead of silently
// replacing a check.
type Registry struct {
	logger *slog.Logger

	mu    sync.RWMutex
	tasks map[string]*Task
	names []string // registration order
}

// NewRegistry creates an empty Registry. Pass nil logger to use the default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		tasks:  make(map[string]*Task),
	}
}

// Register builds a task from the definition and adds it to the registry.
func (r *Registry) Register(def Definition) error {
	t, err := New(def)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[def.Name]; exists {
		return fmt.Errorf("task %q is already registered", def.Name)
	}
	r.tasks[def.Name] = t
	r.names = append(r.names, def.Name)
	r.logger.Debug("task registered", "task", def.Name, "critical", def.Critical)
	return nil
}

// Get returns the named task or an UnknownTaskError.
func (r *Registry) Get(name string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	if !ok {
		return nil, &UnknownTaskError{Name: name}
	}
	return t, nil
}

// All returns every registered task in registration order.
func (r *Registry) All() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tasks := make([]*Task, 0, len(r.names))
	for _, name := range r.names {
		tasks = append(tasks, r.tasks[name])
	}
	return tasks
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Infos returns snapshots for the named tasks, or for all registered tasks
// when no names are given.
func (r *Registry) Infos(names ...string) ([]Info, error) {
	tasks, err := r.resolve(names)
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(tasks))
	for _, t := range tasks {
		infos = append(infos, t.Info())
	}
	return infos, nil
}

// resolve maps names to tasks. An empty name list resolves to all tasks.
func (r *Registry) resolve(names []string) ([]*Task, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	tasks := make([]*Task, 0, len(names))
	for _, name := range names {
		t, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Run executes the named tasks (or all tasks when names is empty) and
// returns their snapshots. Tasks are grouped into waves by their Order
// value; waves run in ascending sequence and tasks within a wave run
// concurrently. A failing task contributes its fail snapshot rather than
// aborting the batch.
func (r *Registry) Run(ctx context.Context, names []string) ([]Info, error) {
	tasks, err := r.resolve(names)
	if err != nil {
		return nil, err
	}

	byOrder := make(map[int][]*Task)
	var orders []int
	for _, t := range tasks {
		o := t.Meta().Order
		if _, seen := byOrder[o]; !seen {
			orders = append(orders, o)
		}
		byOrder[o] = append(byOrder[o], t)
	}
	sort.Ints(orders)

	for _, o := range orders {
		g, gctx := errgroup.WithContext(ctx)
		for _, t := range byOrder[o] {
			g.Go(func() error {
				if _, err := t.Run(gctx); err != nil {
					// Recorded on the task; the batch keeps going.
					r.logger.Warn("task failed", "task", t.Name(), "error", err)
				}
				return nil
			})
		}
		// Workers never return errors to the group, so this only joins.
		_ = g.Wait()
	}

	infos := make([]Info, 0, len(tasks))
	for _, t := range tasks {
		infos = append(infos, t.Info())
	}
	return infos, nil
}
