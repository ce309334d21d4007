package task_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hazz-dev/healthgate/internal/task"
)

func succeed(name string) task.Definition {
	return task.Definition{Name: name, Run: func(ctx context.Context) (any, error) {
		return name, nil
	}}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := task.NewRegistry(nil)
	if err := r.Register(succeed("a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(succeed("a")); err == nil {
		t.Error("expected duplicate registration to be rejected")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := task.NewRegistry(nil)
	_, err := r.Get("missing")
	if err == nil {
		t.Fatal("expected error for unknown task")
	}
	var unknown *task.UnknownTaskError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownTaskError, got %T", err)
	}
	if unknown.Name != "missing" {
		t.Errorf("expected name 'missing', got %q", unknown.Name)
	}
}

func TestRegistry_AllPreservesRegistrationOrder(t *testing.T) {
	r := task.NewRegistry(nil)
	for _, name := range []string{"c", "a", "b"} {
		if err := r.Register(succeed(name)); err != nil {
			t.Fatal(err)
		}
	}
	var got []string
	for _, tk := range r.All() {
		got = append(got, tk.Name())
	}
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestRegistry_RunCollectsFailures(t *testing.T) {
	r := task.NewRegistry(nil)
	if err := r.Register(succeed("ok")); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(task.Definition{Name: "bad", Run: func(ctx context.Context) (any, error) {
		return nil, errors.New("boom")
	}}); err != nil {
		t.Fatal(err)
	}

	infos, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 infos, got %d", len(infos))
	}

	byName := make(map[string]task.Info)
	for _, info := range infos {
		if info.Status != task.StatusFinished {
			t.Errorf("task %q: expected finished, got %q", info.Name, info.Status)
		}
		byName[info.Name] = info
	}
	if byName["ok"].Result != task.ResultSuccess {
		t.Errorf("expected 'ok' success, got %q", byName["ok"].Result)
	}
	if byName["bad"].Result != task.ResultFail {
		t.Errorf("expected 'bad' fail, got %q", byName["bad"].Result)
	}
	if byName["bad"].Error != "boom" {
		t.Errorf("expected 'bad' error recorded, got %q", byName["bad"].Error)
	}
}

func TestRegistry_RunOrderWaves(t *testing.T) {
	r := task.NewRegistry(nil)

	var firstWaveDone atomic.Int32
	var mu sync.Mutex
	var secondWaveSaw []int32

	wave1 := func(ctx context.Context) (any, error) {
		firstWaveDone.Add(1)
		return nil, nil
	}
	wave2 := func(ctx context.Context) (any, error) {
		mu.Lock()
		secondWaveSaw = append(secondWaveSaw, firstWaveDone.Load())
		mu.Unlock()
		return nil, nil
	}

	for _, def := range []task.Definition{
		{Name: "first:a", Order: 1, Run: wave1},
		{Name: "first:b", Order: 1, Run: wave1},
		{Name: "second:a", Order: 2, Run: wave2},
	} {
		if err := r.Register(def); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := r.Run(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(secondWaveSaw) != 1 || secondWaveSaw[0] != 2 {
		t.Errorf("expected second wave to start after both first-wave tasks finished, saw %v", secondWaveSaw)
	}
}

func TestRegistry_RunNamedSubset(t *testing.T) {
	r := task.NewRegistry(nil)
	var ran atomic.Int32
	for _, name := range []string{"a", "b"} {
		if err := r.Register(task.Definition{Name: name, Run: func(ctx context.Context) (any, error) {
			ran.Add(1)
			return nil, nil
		}}); err != nil {
			t.Fatal(err)
		}
	}

	infos, err := r.Run(context.Background(), []string{"b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "b" {
		t.Fatalf("expected only 'b' to run, got %v", infos)
	}
	if ran.Load() != 1 {
		t.Errorf("expected 1 execution, got %d", ran.Load())
	}

	if _, err := r.Run(context.Background(), []string{"nope"}); err == nil {
		t.Error("expected error for unknown name")
	}
}
