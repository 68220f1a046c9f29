package inference

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"deepface-gateway/internal/imageref"
	"deepface-gateway/internal/integrations/facerecognition"
)

// fakeEngine merkt sich die übergebenen Referenzen und prüft, ob die
// temporären Dateien während des Aufrufs existieren
type fakeEngine struct {
	mu       sync.Mutex
	err      error
	refs     []string
	existed  []bool
	actions  []string
	model    string
	block    chan struct{}
	inflight int
	maxSeen  int
}

func (f *fakeEngine) Name() string                   { return "fake" }
func (f *fakeEngine) Ping(ctx context.Context) error { return nil }

func (f *fakeEngine) record(refs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range refs {
		_, statErr := os.Stat(r)
		f.refs = append(f.refs, r)
		f.existed = append(f.existed, statErr == nil)
	}
}

func (f *fakeEngine) enter() {
	f.mu.Lock()
	f.inflight++
	if f.inflight > f.maxSeen {
		f.maxSeen = f.inflight
	}
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.inflight--
	f.mu.Unlock()
}

func (f *fakeEngine) Analyze(ctx context.Context, req facerecognition.AnalyzeRequest) (facerecognition.Result, error) {
	f.record(req.Img)
	f.mu.Lock()
	f.actions = req.Actions
	f.mu.Unlock()
	f.enter()
	if f.err != nil {
		return nil, f.err
	}
	return facerecognition.Result(`{"results":[{"age":30,"gender":{},"emotion":{},"race":{}}]}`), nil
}

func (f *fakeEngine) Verify(ctx context.Context, req facerecognition.VerifyRequest) (facerecognition.Result, error) {
	f.record(req.Img1, req.Img2)
	if f.err != nil {
		return nil, f.err
	}
	return facerecognition.Result(`{"verified":true}`), nil
}

func (f *fakeEngine) Represent(ctx context.Context, req facerecognition.RepresentRequest) (facerecognition.Result, error) {
	f.record(req.Img)
	f.mu.Lock()
	f.model = req.ModelName
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return facerecognition.Result(`{"results":[{"embedding":[0.5,0.25]}]}`), nil
}

type staticSource struct {
	engine facerecognition.Engine
	err    error
}

func (s staticSource) Get(ctx context.Context) (facerecognition.Engine, error) {
	return s.engine, s.err
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Observe(ctx context.Context, e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func validImage() string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte{0xFF, 0xD8, 0xFF, 0xDB, 1, 2, 3})
}

func newTestService(t *testing.T, engine *fakeEngine, pool *WorkerPool) (*Service, string, *eventLog) {
	t.Helper()
	dir := t.TempDir()
	events := &eventLog{}
	svc := NewService(imageref.NewResolver(dir, 1<<20), staticSource{engine: engine}, pool, events)
	return svc, dir, events
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no leftover temporary files, found %d", len(entries))
	}
}

func TestAnalyzeCleansUpAfterSuccess(t *testing.T) {
	engine := &fakeEngine{}
	svc, dir, events := newTestService(t, engine, nil)

	result, err := svc.Analyze(context.Background(), "req-1", AnalyzeInput{Img: validImage()})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(result) == 0 {
		t.Fatal("empty result")
	}
	if len(engine.existed) != 1 || !engine.existed[0] {
		t.Fatal("temporary file must exist while the engine runs")
	}
	if len(engine.actions) != 4 {
		t.Errorf("actions = %v, want defaults", engine.actions)
	}
	assertDirEmpty(t, dir)

	if len(events.events) != 1 || events.events[0].Status != http.StatusOK {
		t.Fatalf("unexpected events: %+v", events.events)
	}
	if events.events[0].ImageKinds[0] != imageref.KindDataURI {
		t.Errorf("image kind = %s, want data_uri", events.events[0].ImageKinds[0])
	}
}

func TestAnalyzeCleansUpAfterEngineFailure(t *testing.T) {
	engine := &fakeEngine{err: &facerecognition.EngineError{Status: 500, Message: "boom"}}
	svc, dir, events := newTestService(t, engine, nil)

	_, err := svc.Analyze(context.Background(), "req-2", AnalyzeInput{Img: validImage()})
	if err == nil {
		t.Fatal("expected error")
	}
	if StatusCode(err) != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", StatusCode(err))
	}
	assertDirEmpty(t, dir)
	if events.events[0].Error == "" {
		t.Error("event must carry the error message")
	}
}

func TestAnalyzeRejectsUnknownAction(t *testing.T) {
	engine := &fakeEngine{}
	svc, _, _ := newTestService(t, engine, nil)

	_, err := svc.Analyze(context.Background(), "req-3", AnalyzeInput{Img: validImage(), Actions: []string{"age", "height"}})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if len(engine.refs) != 0 {
		t.Error("engine must not be called for invalid actions")
	}
}

func TestVerifyBadBase64LeavesNoFiles(t *testing.T) {
	engine := &fakeEngine{}
	svc, dir, _ := newTestService(t, engine, nil)

	_, err := svc.Verify(context.Background(), "req-4", VerifyInput{
		Img1: validImage(),
		Img2: "data:image/jpeg;base64,###",
	})
	if !errors.Is(err, imageref.ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
	if StatusCode(err) != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", StatusCode(err))
	}
	assertDirEmpty(t, dir)
}

func TestMissingFieldsAreInvalid(t *testing.T) {
	engine := &fakeEngine{}
	svc, _, _ := newTestService(t, engine, nil)
	ctx := context.Background()

	_, err := svc.Verify(ctx, "req-5", VerifyInput{Img1: validImage()})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("verify without img2: got %v", err)
	}
	_, err = svc.Represent(ctx, "req-6", RepresentInput{})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("represent without img: got %v", err)
	}
}

func TestRepresentIsDeterministicWithDefaultModel(t *testing.T) {
	engine := &fakeEngine{}
	svc, dir, _ := newTestService(t, engine, nil)

	first, err := svc.Represent(context.Background(), "a", RepresentInput{Img: validImage()})
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Represent(context.Background(), "b", RepresentInput{Img: validImage()})
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Errorf("results differ: %s vs %s", first, second)
	}
	if engine.model != facerecognition.DefaultModelName {
		t.Errorf("model = %s, want %s", engine.model, facerecognition.DefaultModelName)
	}
	assertDirEmpty(t, dir)
}

func TestEngineInitFailureIsServerError(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(imageref.NewResolver(dir, 1<<20), staticSource{err: errors.New("engine down")}, nil)

	_, err := svc.Analyze(context.Background(), "req-7", AnalyzeInput{Img: validImage()})
	if StatusCode(err) != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", StatusCode(err))
	}
	assertDirEmpty(t, dir)
}

func TestWorkerPoolLimitsConcurrency(t *testing.T) {
	engine := &fakeEngine{block: make(chan struct{})}
	pool := NewWorkerPool(2)
	defer pool.Shutdown()
	svc, dir, _ := newTestService(t, engine, pool)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Analyze(context.Background(), "", AnalyzeInput{Img: "https://example.com/a.jpg"}); err != nil {
				t.Errorf("Analyze failed: %v", err)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(engine.block)
	wg.Wait()

	if engine.maxSeen > 2 {
		t.Errorf("observed %d concurrent engine calls, want at most 2", engine.maxSeen)
	}
	assertDirEmpty(t, dir)
}

func TestWorkerPoolHonoursCancellation(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Shutdown()

	release := make(chan struct{})
	started := make(chan struct{})
	go pool.Submit(context.Background(), "blocker", func(ctx context.Context) (facerecognition.Result, error) {
		close(started)
		<-release
		return nil, nil
	})
	defer close(release)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := pool.Submit(ctx, "waiting", func(ctx context.Context) (facerecognition.Result, error) {
		return facerecognition.Result(`{}`), nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrInvalidRequest, http.StatusBadRequest},
		{imageref.ErrInvalidImage, http.StatusBadRequest},
		{facerecognition.ErrImageUnavailable, http.StatusBadRequest},
		{&facerecognition.EngineError{Status: 400, Message: "no face"}, http.StatusBadRequest},
		{&facerecognition.EngineError{Status: 503, Message: "down"}, http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusCode(tt.err); got != tt.want {
			t.Errorf("StatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
