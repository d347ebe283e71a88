package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/signage/internal/schedule"
)

// DefaultTickInterval is how often the activation loop runs in serve mode.
const DefaultTickInterval = 30 * time.Second

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debug().Fields(kv).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error().Err(err).Fields(kv).Msg(msg)
}

// Runner owns process scheduling for the activation loop: a fixed interval
// plus on-demand ticks (document changes, API requests).
type Runner struct {
	activator *Activator
	interval  time.Duration
	loc       *time.Location

	mu      sync.Mutex
	c       *cron.Cron
	trigger chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewRunner(a *Activator, interval time.Duration, loc *time.Location) *Runner {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if loc == nil {
		loc = time.Local
	}
	return &Runner{activator: a, interval: interval, loc: loc, trigger: make(chan struct{}, 1)}
}

// Start registers the interval job and runs a first tick right away.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		return errors.New("runner already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	logger := cronLogger{l: log.With().Str("component", "runner").Logger()}
	c := cron.New(
		cron.WithLocation(r.loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", r.interval), func() { r.tick(ctx, "interval") }); err != nil {
		cancel()
		return fmt.Errorf("register activation job: %w", err)
	}

	r.c = c
	r.cancel = cancel
	c.Start()

	r.wg.Add(1)
	go r.triggerLoop(ctx)
	r.Trigger()

	log.Info().Dur("interval", r.interval).Str("tz", r.loc.String()).Msg("activation runner started")
	return nil
}

// Trigger requests an immediate tick. Requests made while one is pending
// collapse into it.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Runner) triggerLoop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.trigger:
			r.tick(ctx, "trigger")
		}
	}
}

func (r *Runner) tick(ctx context.Context, source string) {
	report, err := r.activator.Tick(ctx)
	if errors.Is(err, schedule.ErrTickInProgress) {
		log.Debug().Str("source", source).Msg("tick skipped, previous tick still running")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("source", source).Msg("activation tick failed")
		return
	}
	if report.Activated || report.Closed != "" {
		log.Info().
			Str("source", source).
			Str("winner", report.Winner).
			Str("closed", report.Closed).
			Strs("post_actions", report.PostActions).
			Msg("activation changed")
	}
}

// Stop waits for running ticks to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c == nil {
		return
	}
	<-r.c.Stop().Done()
	r.cancel()
	r.wg.Wait()
	r.c = nil
	log.Info().Msg("activation runner stopped")
}
