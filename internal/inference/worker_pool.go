package inference

import (
	"context"
	"sync"
	"time"

	"deepface-gateway/internal/integrations/facerecognition"

	log "github.com/sirupsen/logrus"
)

// WorkerPool begrenzt die Zahl gleichzeitiger Aufrufe des Dienstes
type WorkerPool struct {
	jobs            chan *job
	workerCount     int
	activeJobs      int
	activeJobsMutex sync.Mutex
	shutdown        chan struct{}
	shutdownOnce    sync.Once
	wg              sync.WaitGroup
}

// job repräsentiert einen einzelnen Dienstaufruf
type job struct {
	ctx      context.Context
	name     string
	run      func(ctx context.Context) (facerecognition.Result, error)
	resultCh chan jobResult // Individueller Ergebniskanal pro Job
}

type jobResult struct {
	result facerecognition.Result
	err    error
}

// NewWorkerPool erstellt einen Pool mit workerCount Workern und startet sie
func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}

	log.Infof("Initializing inference worker pool with %d workers", workerCount)

	pool := &WorkerPool{
		jobs:        make(chan *job, workerCount*2),
		workerCount: workerCount,
		shutdown:    make(chan struct{}),
	}
	pool.startWorkers()
	return pool
}

// startWorkers startet die Worker-Goroutinen
func (p *WorkerPool) startWorkers() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			log.Debugf("Worker %d started", workerID)

			for {
				select {
				case j := <-p.jobs:
					p.execute(workerID, j)
				case <-p.shutdown:
					log.Debugf("Worker %d received shutdown signal", workerID)
					return
				}
			}
		}(i)
	}
}

func (p *WorkerPool) execute(workerID int, j *job) {
	// Der Aufrufer hat eventuell schon aufgegeben
	if err := j.ctx.Err(); err != nil {
		j.resultCh <- jobResult{err: err}
		return
	}

	p.activeJobsMutex.Lock()
	p.activeJobs++
	jobCount := p.activeJobs
	p.activeJobsMutex.Unlock()

	log.Debugf("Worker %d running %s (active jobs: %d)", workerID, j.name, jobCount)
	start := time.Now()

	result, err := j.run(j.ctx)

	p.activeJobsMutex.Lock()
	p.activeJobs--
	p.activeJobsMutex.Unlock()

	// resultCh ist gepuffert, der Worker blockiert hier nie
	j.resultCh <- jobResult{result: result, err: err}
	log.Debugf("Worker %d completed %s in %v", workerID, j.name, time.Since(start))
}

// Submit führt run auf einem Worker aus und wartet auf das Ergebnis
func (p *WorkerPool) Submit(ctx context.Context, name string, run func(ctx context.Context) (facerecognition.Result, error)) (facerecognition.Result, error) {
	j := &job{
		ctx:      ctx,
		name:     name,
		run:      run,
		resultCh: make(chan jobResult, 1),
	}

	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.shutdown:
		return nil, ErrPoolClosed
	}

	select {
	case res := <-j.resultCh:
		return res.result, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.shutdown:
		return nil, ErrPoolClosed
	}
}

// ActiveJobCount gibt die Anzahl der aktuell aktiven Jobs zurück
func (p *WorkerPool) ActiveJobCount() int {
	p.activeJobsMutex.Lock()
	defer p.activeJobsMutex.Unlock()
	return p.activeJobs
}

// GetWorkerCount gibt die Anzahl der Worker im Pool zurück
func (p *WorkerPool) GetWorkerCount() int {
	return p.workerCount
}

// GetQueueCapacity gibt die Kapazität der Job-Queue zurück
func (p *WorkerPool) GetQueueCapacity() int {
	return cap(p.jobs)
}

// Shutdown fährt den Worker-Pool herunter und wartet auf laufende Jobs
func (p *WorkerPool) Shutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
	p.wg.Wait()
}
