// Package scheduler implements background job scheduling for the saga
// progression engine. The worker process uses it to run the periodic XP
// reconciliation sweep.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/saga-hub/saga-progress-hub/pkg/logger"
)

// Job is a unit of background work.
type Job interface {
	// Name uniquely identifies the job within one scheduler.
	Name() string

	// Run executes the job. The context is cancelled on scheduler stop.
	Run(ctx context.Context) error

	// Description is a short human-readable summary for logs.
	Description() string
}

// Schedule decides when a job runs next.
type Schedule interface {
	// Next returns the first run time after t.
	Next(t time.Time) time.Time

	// String describes the schedule for logs.
	String() string
}

var (
	ErrNilJob                  = fmt.Errorf("job cannot be nil")
	ErrNilSchedule             = fmt.Errorf("schedule cannot be nil")
	ErrJobAlreadyExists        = fmt.Errorf("job already exists")
	ErrSchedulerAlreadyRunning = fmt.Errorf("scheduler is already running")
	ErrSchedulerNotRunning     = fmt.Errorf("scheduler is not running")
)

// Config contains scheduler configuration.
type Config struct {
	Logger *logger.Logger
}

// Scheduler runs registered jobs on their schedules. One goroutine ticks
// once a second and launches due jobs; Stop waits for in-flight runs.
type Scheduler struct {
	mu  sync.RWMutex
	log *logger.Logger

	jobs      map[string]*scheduledJob
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time
}

type scheduledJob struct {
	job       Job
	schedule  Schedule
	nextRun   time.Time
	runCount  int64
	failCount int64
}

// NewScheduler creates an empty scheduler.
func NewScheduler(config Config) *Scheduler {
	log := config.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Scheduler{
		log:  log.With(logger.Component("scheduler")),
		jobs: make(map[string]*scheduledJob),
	}
}

// Register adds a job. Names must be unique.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{
		job:      job,
		schedule: schedule,
		nextRun:  schedule.Next(time.Now()),
	}
	s.jobs[name] = sj

	s.log.Info("job registered",
		logger.String("job", name),
		logger.String("description", job.Description()),
		logger.String("next_run", sj.nextRun.Format(time.RFC3339)),
	)
	return nil
}

// Start launches the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.log.Info("scheduler started", logger.Int("jobs_count", len(s.jobs)))

	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop cancels the loop and waits for running jobs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.log.Info("scheduler stopped",
		logger.String("uptime", time.Since(s.startedAt).String()),
	)
	return nil
}

// IsRunning reports whether the loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.launchDue(now)
		}
	}
}

func (s *Scheduler) launchDue(now time.Time) {
	// Collecting a due job and advancing its next run happen under one lock
	// acquisition, so back-to-back ticks cannot launch the same job twice.
	s.mu.Lock()
	var due []*scheduledJob
	for _, sj := range s.jobs {
		if !sj.nextRun.IsZero() && now.After(sj.nextRun) {
			sj.nextRun = sj.schedule.Next(now)
			sj.runCount++
			due = append(due, sj)
		}
	}
	s.mu.Unlock()

	for _, sj := range due {
		s.wg.Add(1)
		go s.runJob(sj)
	}
}

func (s *Scheduler) runJob(sj *scheduledJob) {
	defer s.wg.Done()

	name := sj.job.Name()
	startedAt := time.Now()

	s.log.Info("job started", logger.String("job", name))

	err := sj.job.Run(s.ctx)
	duration := time.Since(startedAt)

	if err != nil {
		s.mu.Lock()
		sj.failCount++
		s.mu.Unlock()
		s.log.Error("job failed",
			logger.String("job", name),
			logger.Latency(duration),
			logger.Err(err),
		)
		return
	}

	s.log.Info("job completed",
		logger.String("job", name),
		logger.Latency(duration),
	)
}
