package worker

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

type worker struct {
	pool *pool
	jobs chan Job
}

func newWorker(p *pool) *worker {
	return &worker{pool: p, jobs: make(chan Job)}
}

// start runs the worker loop. An idle worker parks itself in the pool first;
// otherwise the caller already holds its channel.
func (w *worker) start(idle bool) {
	go func() {
		defer w.pool.retire(w.jobs)
		if idle && !w.pool.release(w.jobs) {
			return
		}
		for {
			job := <-w.jobs
			if job.stop {
				return
			}
			w.run(job)
			if !w.pool.release(w.jobs) {
				return
			}
		}
	}()
}

func (w *worker) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("user_id", job.UserID).Interface("panic", r).Msg("worker job panicked")
			job.finish(fmt.Errorf("job panicked: %v", r))
		}
	}()
	if err := job.ctx.Err(); err != nil {
		job.finish(err)
		return
	}
	job.finish(job.fn(job.ctx))
}
