package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/streampulse/streampulse/internal/bus"
	"github.com/streampulse/streampulse/internal/platform"
	"github.com/streampulse/streampulse/internal/scheduler"
)

// Runner drives due jobs through collection cycles. Each cycle runs on
// its own goroutine so a slow chat window for one entity never delays
// due-checks or collection for the others.
type Runner struct {
	sched  *scheduler.Scheduler
	cycle  *Cycle
	events *bus.EventBus
	sem    *Semaphore
	wg     sync.WaitGroup
}

// NewRunner creates a runner capping concurrent cycles at maxConcurrent.
func NewRunner(sched *scheduler.Scheduler, cycle *Cycle, events *bus.EventBus, maxConcurrent int) *Runner {
	return &Runner{
		sched:  sched,
		cycle:  cycle,
		events: events,
		sem:    NewSemaphore(maxConcurrent),
	}
}

// RunDue claims every currently due job and starts a collection cycle
// for it. Jobs that cannot get a worker slot are released so they are
// due again on the next check. Returns the number of cycles started.
// MarkRun is called exactly once per started cycle.
func (r *Runner) RunDue(ctx context.Context, now time.Time, platforms ...platform.Platform) int {
	started := 0
	for _, job := range r.sched.DueJobs(now, platforms...) {
		if !r.sched.Claim(job.ID, now) {
			continue
		}
		if !r.sem.TryAcquire() {
			r.sched.Release(job.ID, now)
			slog.Debug("Cycle deferred, no worker slot", "job", job.ID, "entity", job.EntityName)
			continue
		}
		started++
		r.wg.Add(1)
		go r.runOne(ctx, job)
	}
	return started
}

func (r *Runner) runOne(ctx context.Context, job *scheduler.Job) {
	defer r.wg.Done()
	defer r.sem.Release()

	startedAt := time.Now()
	outcome, err := r.cycle.Run(ctx, job)

	ev := &bus.CycleEvent{
		JobID:     job.ID,
		Platform:  job.Platform,
		Entity:    job.EntityName,
		Duration:  time.Since(startedAt),
		Timestamp: time.Now(),
	}
	if err != nil {
		r.sched.MarkRun(job.ID, false, err.Error())
		ev.Error = err.Error()
	} else {
		r.sched.MarkRun(job.ID, true, "")
		ev.Success = true
		ev.Observations = outcome.Observations
		ev.ChatMessages = outcome.ChatMessages
		ev.WentLive = outcome.WentLive
	}
	if r.events != nil {
		r.events.Publish(ev)
	}
}

// Wait blocks until every started cycle has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}
