package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/talechto/internal/clock"
	obsmetrics "github.com/smallbiznis/talechto/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobSweepArtifacts = "sweep_artifacts"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  Config
	Janitor *Janitor
	Metrics *obsmetrics.JanitorMetrics `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	janitor *Janitor
	metrics *obsmetrics.JanitorMetrics
	cron    *cron.Cron
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Janitor == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	log := p.Log.Named("scheduler").With(zap.String("component", "scheduler"))

	cl := cronLogger{log: log.Sugar()}
	s := &Scheduler{
		log:     log,
		cfg:     cfg,
		genID:   p.GenID,
		clock:   p.Clock,
		janitor: p.Janitor,
		metrics: p.Metrics,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
	if _, err := s.cron.AddFunc(cfg.Schedule, func() { s.SweepArtifacts(context.Background()) }); err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %v", ErrInvalidConfig, cfg.Schedule, err)
	}
	return s, nil
}

// SweepArtifacts runs one janitor pass.
func (s *Scheduler) SweepArtifacts(ctx context.Context) {
	_ = s.runJob(ctx, JobSweepArtifacts, s.cfg.JobTimeout, func(ctx context.Context, run *jobRun) error {
		start := time.Now()
		removed, err := s.janitor.Sweep(ctx)
		run.AddProcessed(removed)
		s.metrics.ObserveSweep(removed, time.Since(start), err)
		return err
	})
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.newJobRun(ctx, name)
	s.logJobStart(ctx, run)

	err := fn(ctx, run)
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	// Deadline is a soft timeout; the next tick picks up the rest.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
		)
		return nil
	}
	s.logger(ctx).Error("job failed", zap.String("job", name), zap.Error(err))
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for a running job to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
