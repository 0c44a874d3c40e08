// Package session ties one monitoring session together: the ephemeral
// store, the job scheduler, the cycle runner, and the event bus. A
// Session is constructed explicitly and passed by handle; there is no
// ambient global state.
package session

import (
	"context"
	"time"

	"github.com/streampulse/streampulse/internal/bus"
	"github.com/streampulse/streampulse/internal/collector"
	"github.com/streampulse/streampulse/internal/credentials"
	"github.com/streampulse/streampulse/internal/platform"
	"github.com/streampulse/streampulse/internal/scheduler"
	"github.com/streampulse/streampulse/internal/store"
)

// Options configures a new session.
type Options struct {
	// MaxConcurrentCycles caps parallel collection cycles.
	MaxConcurrentCycles int
	// Chat controls live-chat harvesting during Twitch stream cycles.
	Chat collector.ChatConfig
	// Creds resolves platform API credentials. Optional.
	Creds credentials.Provider
}

// Session owns all per-session state. Everything dies with the process.
type Session struct {
	Store     *store.Store
	Scheduler *scheduler.Scheduler
	Events    *bus.EventBus
	Clients   *platform.Registry

	runner *collector.Runner
}

// New builds a session with a fresh in-memory store and an empty job set.
func New(opts Options) (*Session, error) {
	st, err := store.New()
	if err != nil {
		return nil, err
	}
	creds := opts.Creds
	if creds == nil {
		creds = credentials.NewStatic(nil)
	}

	s := &Session{
		Store:     st,
		Scheduler: scheduler.New(),
		Events:    bus.New(),
		Clients:   platform.NewRegistry(),
	}
	cycle := collector.NewCycle(st, s.Clients, creds, opts.Chat)
	s.runner = collector.NewRunner(s.Scheduler, cycle, s.Events, opts.MaxConcurrentCycles)
	return s, nil
}

// Monitor registers the entity (get-or-create by natural key) and
// schedules a monitoring job for it. If a job already exists for the
// entity it is resumed and reused rather than double-scheduled.
func (s *Session) Monitor(p platform.Platform, naturalKey string, interval time.Duration) (string, error) {
	entityID, err := s.Store.AddEntity(p, naturalKey)
	if err != nil {
		return "", err
	}
	if job, ok := s.Scheduler.JobFor(p, entityID); ok {
		s.Scheduler.ResumeJob(job.ID)
		if err := s.Store.SetMonitoring(entityID, true); err != nil {
			return "", err
		}
		return job.ID, nil
	}

	jobID, err := s.Scheduler.AddJob(p, entityID, store.NormalizeKey(naturalKey), interval, nil)
	if err != nil {
		return "", err
	}
	if err := s.Store.SetMonitoring(entityID, true); err != nil {
		return "", err
	}
	return jobID, nil
}

// Pause deactivates a job and clears the entity's monitoring flag.
func (s *Session) Pause(jobID string) error {
	job, ok := s.Scheduler.Job(jobID)
	if !ok {
		return nil
	}
	s.Scheduler.PauseJob(jobID)
	return s.Store.SetMonitoring(job.EntityID, false)
}

// Resume reactivates a job (due immediately) and sets the monitoring flag.
func (s *Session) Resume(jobID string) error {
	job, ok := s.Scheduler.Job(jobID)
	if !ok {
		return nil
	}
	s.Scheduler.ResumeJob(jobID)
	return s.Store.SetMonitoring(job.EntityID, true)
}

// Unmonitor removes a job. The entity and its observation history stay
// in the store; only the schedule goes away.
func (s *Session) Unmonitor(jobID string) error {
	job, ok := s.Scheduler.Job(jobID)
	if !ok {
		return nil
	}
	s.Scheduler.RemoveJob(jobID)
	return s.Store.SetMonitoring(job.EntityID, false)
}

// DeleteEntity removes an entity, its observation history, and any jobs
// scheduled for it.
func (s *Session) DeleteEntity(p platform.Platform, entityID int64) error {
	for {
		job, ok := s.Scheduler.JobFor(p, entityID)
		if !ok {
			break
		}
		s.Scheduler.RemoveJob(job.ID)
	}
	return s.Store.DeleteEntity(entityID)
}

// RunDue starts a collection cycle for every due job and returns how
// many were started. Cycles run on worker goroutines; outcomes arrive
// on the event bus.
func (s *Session) RunDue(ctx context.Context, now time.Time, platforms ...platform.Platform) int {
	return s.runner.RunDue(ctx, now, platforms...)
}

// Wait blocks until every in-flight cycle has finished.
func (s *Session) Wait() {
	s.runner.Wait()
}

// Close waits for in-flight cycles and releases the store.
func (s *Session) Close() error {
	s.runner.Wait()
	return s.Store.Close()
}
