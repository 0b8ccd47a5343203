// Package worker runs slow upstream calls on a bounded, elastic pool. Jobs are
// handed out round robin per user so one user's burst cannot starve the rest.
package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrDispatcherBusy   = errors.New("dispatcher queue full")
	ErrDispatcherClosed = errors.New("dispatcher closed")
	ErrJobCanceled      = errors.New("job canceled")
)

type DispatcherConfig struct {
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int
	WorkerIdleTimeout time.Duration
}

// Job is one unit of work owned by a user.
type Job struct {
	UserID string

	ctx    context.Context
	fn     func(context.Context) error
	result chan error
	stop   bool
}

func (j Job) finish(err error) {
	if j.result != nil {
		j.result <- err
	}
}

type userQueue struct {
	jobs     []Job
	enqueued bool
}

type Dispatcher struct {
	pool     *pool
	jobQueue chan Job

	mu        sync.Mutex
	queues    map[string]*userQueue
	ready     *list.List // users with pending jobs, least recently served first
	positions map[string]*list.Element

	quit      chan struct{}
	closeOnce sync.Once
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.MinWorkers < 0 {
		cfg.MinWorkers = 0
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	d := &Dispatcher{
		pool:      newPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.WorkerIdleTimeout),
		jobQueue:  make(chan Job, cfg.QueueSize),
		queues:    make(map[string]*userQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		quit:      make(chan struct{}),
	}
	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnWorker()
	}
	go d.run()
	return d
}

// Submit queues fn for userID and waits for it to finish or for ctx to end.
// A job whose ctx is already done when its turn comes is skipped.
func (d *Dispatcher) Submit(ctx context.Context, userID string, fn func(context.Context) error) error {
	select {
	case <-d.quit:
		return ErrDispatcherClosed
	default:
	}
	job := Job{UserID: userID, ctx: ctx, fn: fn, result: make(chan error, 1)}
	select {
	case d.jobQueue <- job:
	default:
		return ErrDispatcherBusy
	}
	select {
	case err := <-job.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.quit:
		return ErrDispatcherClosed
	}
}

// CancelUser drops the user's queued jobs. Running jobs are left alone.
func (d *Dispatcher) CancelUser(userID string) {
	d.mu.Lock()
	q := d.queues[userID]
	delete(d.queues, userID)
	if elem, ok := d.positions[userID]; ok {
		d.ready.Remove(elem)
		delete(d.positions, userID)
	}
	d.mu.Unlock()
	if q == nil {
		return
	}
	for _, job := range q.jobs {
		job.finish(ErrJobCanceled)
	}
}

// Pending reports how many of the user's jobs are waiting for a worker.
func (d *Dispatcher) Pending(userID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if q := d.queues[userID]; q != nil {
		return len(q.jobs)
	}
	return 0
}

// Workers reports how many workers are alive.
func (d *Dispatcher) Workers() int {
	return d.pool.size()
}

// Close stops dispatching. Queued jobs fail with ErrDispatcherClosed.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.quit)
		d.pool.close()
	})
}

func (d *Dispatcher) run() {
	for {
		d.drain()
		if !d.hasReady() {
			select {
			case job := <-d.jobQueue:
				d.enqueueJob(job)
			case <-d.quit:
				d.failQueued()
				return
			}
			continue
		}
		// wait for a worker first so the pick sees every job that arrived meanwhile
		ch := d.pool.acquire()
		if ch == nil {
			d.failQueued()
			return
		}
		d.drain()
		job, ok := d.next()
		if !ok {
			if !d.pool.release(ch) {
				ch <- Job{stop: true}
			}
			continue
		}
		log.Debug().Str("user_id", job.UserID).Int("workers", d.pool.size()).Msg("job dispatched")
		ch <- job
	}
}

// drain moves every job waiting in the channel into the per-user queues.
func (d *Dispatcher) drain() {
	for {
		select {
		case job := <-d.jobQueue:
			d.enqueueJob(job)
		default:
			return
		}
	}
}

func (d *Dispatcher) hasReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready.Len() > 0
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.UserID]
	if q == nil {
		q = &userQueue{}
		d.queues[job.UserID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[job.UserID] = d.ready.PushBack(job.UserID)
}

// next pops a job of the front user and moves that user to the back.
func (d *Dispatcher) next() (Job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	elem := d.ready.Front()
	if elem == nil {
		return Job{}, false
	}
	userID := elem.Value.(string)
	q := d.queues[userID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		d.ready.Remove(elem)
		delete(d.positions, userID)
		delete(d.queues, userID)
	} else {
		d.ready.MoveToBack(elem)
	}
	return job, true
}

func (d *Dispatcher) failQueued() {
	d.mu.Lock()
	queues := d.queues
	d.queues = make(map[string]*userQueue)
	d.ready.Init()
	d.positions = make(map[string]*list.Element)
	d.mu.Unlock()
	for _, q := range queues {
		for _, job := range q.jobs {
			job.finish(ErrDispatcherClosed)
		}
	}
	for {
		select {
		case job := <-d.jobQueue:
			job.finish(ErrDispatcherClosed)
		default:
			return
		}
	}
}
