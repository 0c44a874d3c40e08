// Package scheduler tracks monitoring jobs and their due times. It never
// runs anything itself: callers ask for due jobs, perform the collection
// cycle, and report the outcome back via MarkRun.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streampulse/streampulse/internal/platform"
)

var (
	// ErrInvalidInterval rejects non-positive job intervals.
	ErrInvalidInterval = errors.New("scheduler: interval must be positive")
	// ErrEmptyEntityName rejects jobs with no entity name.
	ErrEmptyEntityName = errors.New("scheduler: entity name is empty")
)

// Job is one monitoring job. The scheduler hands out copies; all
// mutation goes through scheduler methods.
type Job struct {
	ID         string            `json:"id"`
	Platform   platform.Platform `json:"platform"`
	EntityID   int64             `json:"entity_id"`
	EntityName string            `json:"entity_name"`
	Interval   time.Duration     `json:"interval"`
	LastRun    time.Time         `json:"last_run,omitempty"` // zero until first MarkRun
	NextRun    time.Time         `json:"next_run"`
	Active     bool              `json:"active"`
	TotalRuns  int               `json:"total_runs"`
	LastError  string            `json:"last_error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Stats is an aggregate snapshot over all jobs, recomputed per call.
type Stats struct {
	TotalJobs      int            `json:"total_jobs"`
	ActiveJobs     int            `json:"active_jobs"`
	PausedJobs     int            `json:"paused_jobs"`
	TotalRuns      int            `json:"total_runs"`
	JobsWithErrors int            `json:"jobs_with_errors"`
	ByPlatform     map[string]int `json:"by_platform"`
}

// Scheduler manages the in-memory job set. Safe for concurrent use.
type Scheduler struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

// AddJob creates a new job that is immediately due. It does not
// deduplicate on (platform, entity): callers that want one job per
// entity must check HasJobFor first.
func (s *Scheduler) AddJob(p platform.Platform, entityID int64, entityName string, interval time.Duration, metadata map[string]string) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("%w: %v", ErrInvalidInterval, interval)
	}
	if entityName == "" {
		return "", ErrEmptyEntityName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job := &Job{
		ID:         uuid.NewString(),
		Platform:   p,
		EntityID:   entityID,
		EntityName: entityName,
		Interval:   interval,
		NextRun:    s.now(),
		Active:     true,
		Metadata:   metadata,
	}
	s.jobs[job.ID] = job
	slog.Info("Monitoring job added", "job", job.ID, "platform", p, "entity", entityName, "interval", interval)
	return job.ID, nil
}

// RemoveJob deletes a job. Removing a missing id is a no-op.
func (s *Scheduler) RemoveJob(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
}

// PauseJob deactivates a job. Missing ids are a no-op.
func (s *Scheduler) PauseJob(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		job.Active = false
	}
}

// ResumeJob reactivates a job and makes it due immediately, regardless
// of how long it sat paused. Missing ids are a no-op.
func (s *Scheduler) ResumeJob(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		job.Active = true
		job.NextRun = s.now()
	}
}

// DueJobs returns copies of the jobs that are active with next_run at or
// before now, optionally restricted to the given platforms. Order is
// unspecified. A returned job is a soft claim only; use Claim for
// at-most-once concurrent execution.
func (s *Scheduler) DueJobs(now time.Time, platforms ...platform.Platform) []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Job
	for _, job := range s.jobs {
		if !job.Active || job.NextRun.After(now) {
			continue
		}
		if len(platforms) > 0 && !containsPlatform(platforms, job.Platform) {
			continue
		}
		out = append(out, job.clone())
	}
	return out
}

// Claim atomically re-checks due-ness and pushes next_run forward so a
// concurrent caller cannot claim the same job. Returns false if the job
// is missing, paused, or no longer due.
func (s *Scheduler) Claim(jobID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || !job.Active || job.NextRun.After(now) {
		return false
	}
	job.NextRun = now.Add(job.Interval)
	return true
}

// Release rolls a claim back so the job is due again at the given time.
// Use when a claimed job could not actually run (e.g. no worker slot).
func (s *Scheduler) Release(jobID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		job.NextRun = at
	}
}

// MarkRun records the outcome of one collection attempt: bumps last_run
// and total_runs, schedules the next run one interval out, and sets or
// clears last_error. Callers must call this exactly once per attempt.
func (s *Scheduler) MarkRun(jobID string, success bool, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return
	}
	now := s.now()
	job.LastRun = now
	job.NextRun = now.Add(job.Interval)
	job.TotalRuns++
	if success {
		job.LastError = ""
	} else {
		job.LastError = errMsg
		slog.Warn("Collection cycle failed", "job", jobID, "entity", job.EntityName, "error", errMsg)
	}
}

// StartAll activates every job, overwrites each job's interval with the
// given one, and makes everything due immediately. A global reset, not
// the per-job control path.
func (s *Scheduler) StartAll(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInterval, interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, job := range s.jobs {
		job.Active = true
		job.Interval = interval
		job.NextRun = now
	}
	slog.Info("All monitoring jobs started", "jobs", len(s.jobs), "interval", interval)
	return nil
}

// StopAll pauses every job.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		job.Active = false
	}
	slog.Info("All monitoring jobs stopped", "jobs", len(s.jobs))
}

// Clear removes every job.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]*Job)
}

// Job returns a copy of one job.
func (s *Scheduler) Job(jobID string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

// Jobs returns copies of all jobs in unspecified order.
func (s *Scheduler) Jobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.clone())
	}
	return out
}

// HasJobFor reports whether any job exists for the (platform, entity)
// pair. The scheduler itself never enforces this uniqueness.
func (s *Scheduler) HasJobFor(p platform.Platform, entityID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.Platform == p && job.EntityID == entityID {
			return true
		}
	}
	return false
}

// JobFor returns a copy of the first job found for the (platform,
// entity) pair.
func (s *Scheduler) JobFor(p platform.Platform, entityID int64) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.Platform == p && job.EntityID == entityID {
			return job.clone(), true
		}
	}
	return nil, false
}

// Statistics recomputes the aggregate snapshot on every call.
func (s *Scheduler) Statistics() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{ByPlatform: make(map[string]int)}
	for _, job := range s.jobs {
		stats.TotalJobs++
		if job.Active {
			stats.ActiveJobs++
		} else {
			stats.PausedJobs++
		}
		stats.TotalRuns += job.TotalRuns
		if job.LastError != "" {
			stats.JobsWithErrors++
		}
		stats.ByPlatform[string(job.Platform)]++
	}
	return stats
}

func (j *Job) clone() *Job {
	c := *j
	if j.Metadata != nil {
		c.Metadata = make(map[string]string, len(j.Metadata))
		for k, v := range j.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func containsPlatform(ps []platform.Platform, p platform.Platform) bool {
	for _, x := range ps {
		if x == p {
			return true
		}
	}
	return false
}
