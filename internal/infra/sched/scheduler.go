package sched

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"vendor-billing/internal/domain/ports/adapter"
	"vendor-billing/internal/infra/i18n"
	"vendor-billing/internal/infra/logging"
	"vendor-billing/internal/infra/metrics"
	red "vendor-billing/internal/infra/redis"
	"vendor-billing/internal/usecase"
)

var (
	ErrUnknownJob = errors.New("unknown sweep job")
	// ErrSweepLocked means another instance is running the same sweep.
	ErrSweepLocked = errors.New("sweep already running")
)

type Deps struct {
	Locker  red.Locker
	Alerter adapter.AdminAlerter
	Stats   usecase.StatsUseCase
	Catalog *i18n.Catalog
	// RunTimeout bounds one run and is also the lock TTL.
	RunTimeout time.Duration
}

// Scheduler runs lifecycle sweeps on cron specs. A run holds a redis lock
// named sweep:<job> so only one instance sweeps at a time.
type Scheduler struct {
	cron *cron.Cron
	jobs map[string]Job
	deps Deps
	log  zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(jobs []Job, deps Deps, logger *zerolog.Logger) (*Scheduler, error) {
	if deps.RunTimeout <= 0 {
		deps.RunTimeout = 30 * time.Minute
	}
	l := logger.With().Str("component", "Scheduler").Logger()
	byName := make(map[string]Job, len(jobs))
	for _, j := range jobs {
		if j.Run == nil {
			return nil, fmt.Errorf("job %s: nil run func", j.Name)
		}
		if _, err := cron.ParseStandard(j.Spec); err != nil {
			return nil, fmt.Errorf("job %s: invalid cron spec %q: %w", j.Name, j.Spec, err)
		}
		if _, dup := byName[j.Name]; dup {
			return nil, fmt.Errorf("job %s registered twice", j.Name)
		}
		byName[j.Name] = j
	}
	cl := cronLogger{log: l}
	return &Scheduler{
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		jobs: byName,
		deps: deps,
		log:  l,
	}, nil
}

// Jobs returns the registered job names, sorted.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Start schedules every job and starts the cron loop. Runs use ctx as parent.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	for _, name := range s.Jobs() {
		job := s.jobs[name]
		if _, err := s.cron.AddFunc(job.Spec, func() { _, _ = s.Run(s.ctx, job.Name) }); err != nil {
			s.cancel()
			s.ctx = nil
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
		s.log.Info().Str("job", job.Name).Str("schedule", job.Spec).Msg("sweep scheduled")
	}
	s.cron.Start()
	return nil
}

// Stop stops scheduling, cancels in-flight runs and waits for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	done := s.cron.Stop()
	if cancel != nil {
		cancel()
	}
	<-done.Done()
	s.log.Info().Msg("scheduler stopped")
}

// Run executes one sweep now. It is used by the cron loop and by the admin
// endpoint.
func (s *Scheduler) Run(ctx context.Context, name string) (usecase.SweepReport, error) {
	job, ok := s.jobs[name]
	if !ok {
		return usecase.SweepReport{Job: name}, ErrUnknownJob
	}
	ctx = logging.WithJob(ctx, name)
	ctx, cancel := context.WithTimeout(ctx, s.deps.RunTimeout)
	defer cancel()
	log := s.log.With().Str("job", name).Logger()

	if s.deps.Locker != nil {
		token, err := s.deps.Locker.TryLock(ctx, "sweep:"+name, s.deps.RunTimeout)
		switch {
		case errors.Is(err, red.ErrLockHeld):
			metrics.IncSweepRun(name, "locked")
			log.Info().Msg("sweep skipped, lock held elsewhere")
			return usecase.SweepReport{Job: name}, ErrSweepLocked
		case err != nil:
			// Row-level guards still hold without the lock.
			log.Warn().Err(err).Msg("sweep lock unavailable, running unlocked")
		default:
			defer func() {
				uctx, ucancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer ucancel()
				if err := s.deps.Locker.Unlock(uctx, "sweep:"+name, token); err != nil {
					log.Warn().Err(err).Msg("sweep unlock failed")
				}
			}()
		}
	}

	start := time.Now()
	report, err := job.Run(ctx)
	if report.Job == "" {
		report.Job = name
	}
	if err != nil {
		metrics.IncSweepRun(name, "error")
		log.Error().Err(err).Dur("took", time.Since(start)).Msg("sweep failed")
		s.alert(ctx, "alert_sweep_failed", name, err.Error())
		return report, err
	}

	took := report.Duration()
	if took <= 0 {
		took = time.Since(start)
	}
	metrics.IncSweepRun(name, "ok")
	metrics.ObserveSweep(name, report.Succeeded, report.Skipped, report.Failed, took)
	log.Info().
		Int("scanned", report.Scanned).
		Int("succeeded", report.Succeeded).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Dur("took", took).
		Msg("sweep finished")
	if report.Failed > 0 {
		s.alert(ctx, "alert_sweep_report", name, report.Scanned, report.Succeeded, report.Skipped, report.Failed)
	}
	s.refreshGauges(ctx)
	return report, nil
}

func (s *Scheduler) alert(ctx context.Context, key string, args ...interface{}) {
	if s.deps.Alerter == nil {
		return
	}
	text := key + ": " + fmt.Sprint(args...)
	if s.deps.Catalog != nil {
		text = s.deps.Catalog.T(i18n.DefaultLang, key, args...)
	}
	if err := s.deps.Alerter.Alert(ctx, text); err != nil {
		s.log.Warn().Err(err).Msg("admin alert failed")
	}
}

func (s *Scheduler) refreshGauges(ctx context.Context) {
	if s.deps.Stats == nil {
		return
	}
	counts, err := s.deps.Stats.SubscriptionCounts(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("subscription counts unavailable")
		return
	}
	metrics.SetSubscriptionsTotal(counts)
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
