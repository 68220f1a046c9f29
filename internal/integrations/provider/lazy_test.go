package provider

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"deepface-gateway/internal/integrations/facerecognition"
)

type stubEngine struct{}

func (stubEngine) Name() string { return "stub" }
func (stubEngine) Ping(ctx context.Context) error { return nil }
func (stubEngine) Analyze(ctx context.Context, req facerecognition.AnalyzeRequest) (facerecognition.Result, error) {
	return facerecognition.Result(`{}`), nil
}
func (stubEngine) Verify(ctx context.Context, req facerecognition.VerifyRequest) (facerecognition.Result, error) {
	return facerecognition.Result(`{}`), nil
}
func (stubEngine) Represent(ctx context.Context, req facerecognition.RepresentRequest) (facerecognition.Result, error) {
	return facerecognition.Result(`{}`), nil
}

func TestLazyEngineDefersInitialization(t *testing.T) {
	var calls int32
	lazy := NewLazyEngine(func(ctx context.Context) (facerecognition.Engine, error) {
		atomic.AddInt32(&calls, 1)
		return stubEngine{}, nil
	})

	if lazy.Initialized() {
		t.Fatal("engine must not be initialized before first use")
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("factory called before first use")
	}

	engine, err := lazy.Get(context.Background())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if engine.Name() != "stub" {
		t.Errorf("unexpected engine %s", engine.Name())
	}
	if !lazy.Initialized() {
		t.Error("engine should be initialized after first use")
	}

	if _, err := lazy.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("factory called %d times, want 1", n)
	}
}

func TestLazyEngineConcurrentFirstUse(t *testing.T) {
	var calls int32
	lazy := NewLazyEngine(func(ctx context.Context) (facerecognition.Engine, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return stubEngine{}, nil
	})

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := lazy.Get(context.Background()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Get failed: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("factory called %d times, want exactly 1", n)
	}
}

func TestLazyEngineRetriesAfterFailure(t *testing.T) {
	var calls int32
	lazy := NewLazyEngine(func(ctx context.Context) (facerecognition.Engine, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("engine not reachable")
		}
		return stubEngine{}, nil
	})

	if _, err := lazy.Get(context.Background()); err == nil {
		t.Fatal("expected first Get to fail")
	}
	if lazy.Initialized() {
		t.Fatal("failed initialization must not be cached")
	}
	if _, err := lazy.Get(context.Background()); err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if !lazy.Initialized() {
		t.Error("engine should be initialized after successful retry")
	}
}
