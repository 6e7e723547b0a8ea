package storage

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/EliorMigdal/kaplat-ex7/domain"
)

// RepairConfig tunes the mirror repair workers.
type RepairConfig struct {
	Workers        int
	Buffer         int
	MaxAttempts    int
	RetryInitial   time.Duration
	RetryMax       time.Duration
	HandoffTimeout time.Duration
	AttemptTimeout time.Duration
}

func (c RepairConfig) withDefaults() RepairConfig {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Buffer <= 0 {
		c.Buffer = c.Workers * 16
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 10 * time.Second
	}
	return c
}

type repairJob struct {
	domain.Repair
	attempt int
}

// RepairQueue retries mirror writes that failed on the request path. Jobs
// live in memory only and are lost on restart.
type RepairQueue struct {
	cfg    RepairConfig
	logger *log.Logger
	jobs   chan repairJob
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	repaired atomic.Uint64
	dropped  atomic.Uint64
}

// NewRepairQueue starts cfg.Workers workers.
func NewRepairQueue(cfg RepairConfig, logger *log.Logger) *RepairQueue {
	if logger == nil {
		panic("storage.NewRepairQueue: logger is required")
	}
	cfg = cfg.withDefaults()
	q := &RepairQueue{
		cfg:    cfg,
		logger: logger,
		jobs:   make(chan repairJob, cfg.Buffer),
		stopCh: make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	logger.Infof("repair queue started, workers: %d, buffer: %d, attempts: %d", cfg.Workers, cfg.Buffer, cfg.MaxAttempts)
	return q
}

// Schedule hands r to the workers. When the buffer is full it waits up to
// HandoffTimeout and then gives up.
func (q *RepairQueue) Schedule(r domain.Repair) bool {
	if r.Run == nil {
		return false
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}

	job := repairJob{Repair: r}
	select {
	case q.jobs <- job:
		return true
	default:
	}
	if q.cfg.HandoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(q.cfg.HandoffTimeout)
	defer timer.Stop()
	select {
	case q.jobs <- job:
		return true
	case <-timer.C:
		return false
	}
}

func (q *RepairQueue) worker(id int) {
	defer q.wg.Done()
	for job := range q.jobs {
		q.process(id, job)
	}
}

func (q *RepairQueue) process(id int, job repairJob) {
	fields := log.Fields{"backend": job.Backend, "op": job.Op, "todo": job.TodoID, "worker": id}
	for {
		job.attempt++
		ctx, cancel := context.WithTimeout(context.Background(), q.cfg.AttemptTimeout)
		err := job.Run(ctx)
		cancel()
		if err == nil {
			q.logger.WithFields(fields).Infof("mirror %s of todo id %d to %s repaired after %d attempts", job.Op, job.TodoID, job.Backend, job.attempt)
			q.repaired.Add(1)
			return
		}
		if job.attempt >= q.cfg.MaxAttempts {
			q.logger.WithFields(fields).Errorf("mirror %s of todo id %d to %s abandoned after %d attempts: %v", job.Op, job.TodoID, job.Backend, job.attempt, err)
			q.dropped.Add(1)
			return
		}

		timer := time.NewTimer(exponentialBackoff(job.attempt, q.cfg.RetryInitial, q.cfg.RetryMax))
		select {
		case <-timer.C:
		case <-q.stopCh:
			timer.Stop()
			q.logger.WithFields(fields).Errorf("mirror %s of todo id %d to %s abandoned on shutdown: %v", job.Op, job.TodoID, job.Backend, err)
			q.dropped.Add(1)
			return
		}
	}
}

// Shutdown stops accepting repairs, abandons pending backoffs and waits for
// workers to drain the buffer or for ctx to end.
func (q *RepairQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.stopCh)
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports how many repairs succeeded and how many were abandoned.
func (q *RepairQueue) Stats() (repaired, dropped uint64) {
	return q.repaired.Load(), q.dropped.Load()
}

func exponentialBackoff(attempt int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		initial = time.Second
	}
	if attempt <= 0 {
		return initial
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	backoff := float64(initial) * math.Pow(2, float64(attempt-1))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	jitter := 0.2 * backoff
	return time.Duration(backoff + (rand.Float64()-0.5)*2*jitter)
}
