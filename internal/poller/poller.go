// Package poller follows a generation job from the client side until it
// reaches a terminal status.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/kiranshivaraju/tripplanner/internal/client"
	"github.com/kiranshivaraju/tripplanner/internal/itinerary"
	"github.com/kiranshivaraju/tripplanner/pkg/models"
)

var (
	// ErrJobNotFound means the server kept answering not_found past the budget.
	ErrJobNotFound = errors.New("job not found")
	// ErrTakingLonger means the poll cap was reached before a terminal status.
	ErrTakingLonger = errors.New("itinerary generation is taking longer than expected")
)

// JobFailedError carries the message of a job that ended in failed.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// Source is the subset of the API the poller needs.
type Source interface {
	Status(ctx context.Context, jobID string) (models.StatusView, error)
	Health(ctx context.Context) error
}

// Config defines polling behavior.
type Config struct {
	BaseInterval time.Duration // interval between status queries
	Growth       float64       // multiplier applied when backing off
	MaxFactor    float64       // interval never exceeds BaseInterval*MaxFactor
	SlowResponse time.Duration // a status query slower than this widens the interval
	Mobile       bool          // start from a widened interval

	NotFoundBudget    int           // consecutive not_found answers tolerated
	NotFoundBaseDelay time.Duration // the n-th not_found waits n*NotFoundBaseDelay

	MaxPolls int // status queries before giving up with ErrTakingLonger

	OfflineBaseDelay time.Duration // first connectivity re-check delay
	OfflineMaxDelay  time.Duration // connectivity re-check delays double up to this
}

// DefaultConfig provides the standard polling policy.
var DefaultConfig = Config{
	BaseInterval:      3 * time.Second,
	Growth:            1.5,
	MaxFactor:         2.5,
	SlowResponse:      1500 * time.Millisecond,
	NotFoundBudget:    20,
	NotFoundBaseDelay: 500 * time.Millisecond,
	MaxPolls:          100,
	OfflineBaseDelay:  time.Second,
	OfflineMaxDelay:   30 * time.Second,
}

// Phase is the poller's externally visible state.
type Phase string

const (
	PhasePolling      Phase = "polling"
	PhaseOffline      Phase = "offline"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
	PhaseTakingLonger Phase = "taking_longer"
)

// State is reported to the observer after every step.
type State struct {
	Phase    Phase
	Polls    int
	Interval time.Duration
	NotFound int
	Status   models.JobStatus
}

// Result is the outcome of a completed job.
type Result struct {
	JobID string
	// Itinerary is always normalized, on the server or here.
	Itinerary map[string]any
	// ServerNormalized is false when the server stored raw model output.
	ServerNormalized bool
	Polls            int
}

// Option configures a Poller.
type Option func(*Poller)

// WithSleep replaces the timer-based wait, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) { p.sleep = fn }
}

// WithClock replaces time.Now when measuring response latency.
func WithClock(fn func() time.Time) Option {
	return func(p *Poller) { p.now = fn }
}

// WithObserver receives every state change.
func WithObserver(fn func(State)) Option {
	return func(p *Poller) { p.observe = fn }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// Poller drives the status state machine for one job at a time.
type Poller struct {
	src     Source
	cfg     Config
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
	observe func(State)
	logger  *slog.Logger
}

// New creates a Poller. Zero fields in cfg take DefaultConfig values.
func New(src Source, cfg Config, opts ...Option) *Poller {
	p := &Poller{
		src:    src,
		cfg:    withDefaults(cfg),
		sleep:  sleepCtx,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func withDefaults(cfg Config) Config {
	d := DefaultConfig
	if cfg.BaseInterval <= 0 {
		cfg.BaseInterval = d.BaseInterval
	}
	if cfg.Growth <= 1 {
		cfg.Growth = d.Growth
	}
	if cfg.MaxFactor < 1 {
		cfg.MaxFactor = d.MaxFactor
	}
	if cfg.SlowResponse <= 0 {
		cfg.SlowResponse = d.SlowResponse
	}
	if cfg.NotFoundBudget < 1 {
		cfg.NotFoundBudget = d.NotFoundBudget
	}
	if cfg.NotFoundBaseDelay <= 0 {
		cfg.NotFoundBaseDelay = d.NotFoundBaseDelay
	}
	if cfg.MaxPolls < 1 {
		cfg.MaxPolls = d.MaxPolls
	}
	if cfg.OfflineBaseDelay <= 0 {
		cfg.OfflineBaseDelay = d.OfflineBaseDelay
	}
	if cfg.OfflineMaxDelay < cfg.OfflineBaseDelay {
		cfg.OfflineMaxDelay = max(d.OfflineMaxDelay, cfg.OfflineBaseDelay)
	}
	return cfg
}

func (p *Poller) maxInterval() time.Duration {
	return time.Duration(float64(p.cfg.BaseInterval) * p.cfg.MaxFactor)
}

// floor is the interval fast responses relax back to. Mobile clients never
// go below one growth step.
func (p *Poller) floor() time.Duration {
	if p.cfg.Mobile {
		return min(p.grow(p.cfg.BaseInterval), p.maxInterval())
	}
	return p.cfg.BaseInterval
}

func (p *Poller) grow(d time.Duration) time.Duration {
	return time.Duration(math.Round(float64(d) * p.cfg.Growth))
}

// adapt returns the next interval given the latency of the last query.
func (p *Poller) adapt(cur, latency time.Duration) time.Duration {
	if latency > p.cfg.SlowResponse {
		return min(p.grow(cur), p.maxInterval())
	}
	relaxed := time.Duration(math.Round(float64(cur) / p.cfg.Growth))
	return max(relaxed, p.floor())
}

func (p *Poller) notFoundDelay(n int) time.Duration {
	return min(time.Duration(n)*p.cfg.NotFoundBaseDelay, p.maxInterval())
}

func (p *Poller) emit(s State) {
	if p.observe != nil {
		p.observe(s)
	}
}

// Wait polls jobID until it completes, fails, exhausts the not-found budget or
// the poll cap, or ctx is cancelled. A completed job's raw result is
// normalized before it is returned. Cancelling ctx stops every pending wait.
func (p *Poller) Wait(ctx context.Context, jobID string) (*Result, error) {
	interval := p.floor()
	notFound := 0

	for polls := 0; ; {
		if polls >= p.cfg.MaxPolls {
			p.emit(State{Phase: PhaseTakingLonger, Polls: polls, Interval: interval})
			return nil, ErrTakingLonger
		}

		start := p.now()
		view, err := p.src.Status(ctx, jobID)
		latency := p.now().Sub(start)
		polls++

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, client.ErrUnreachable) {
				if err := p.waitOnline(ctx, polls, interval); err != nil {
					return nil, err
				}
				continue
			}
			// Anything else (5xx, timeouts) is transient: slow down and retry.
			interval = min(p.grow(interval), p.maxInterval())
			p.logger.Debug("status query failed", "job_id", jobID, "error", err, "next_interval", interval)
			p.emit(State{Phase: PhasePolling, Polls: polls, Interval: interval, NotFound: notFound})
			if err := p.sleep(ctx, interval); err != nil {
				return nil, err
			}
			continue
		}

		switch view.Status {
		case models.JobStatusCompleted:
			p.emit(State{Phase: PhaseCompleted, Polls: polls, Interval: interval, Status: view.Status})
			return p.complete(jobID, view, polls)

		case models.JobStatusFailed:
			p.emit(State{Phase: PhaseFailed, Polls: polls, Interval: interval, Status: view.Status})
			msg := view.Error
			if msg == "" {
				msg = "generation failed"
			}
			return nil, &JobFailedError{JobID: jobID, Message: msg}

		case models.JobStatusNotFound:
			notFound++
			if notFound >= p.cfg.NotFoundBudget {
				p.emit(State{Phase: PhaseFailed, Polls: polls, Interval: interval, NotFound: notFound, Status: view.Status})
				return nil, fmt.Errorf("%w: %s after %d attempts", ErrJobNotFound, jobID, notFound)
			}
			delay := p.notFoundDelay(notFound)
			p.logger.Debug("job not visible yet", "job_id", jobID, "not_found", notFound, "delay", delay)
			p.emit(State{Phase: PhasePolling, Polls: polls, Interval: delay, NotFound: notFound, Status: view.Status})
			if err := p.sleep(ctx, delay); err != nil {
				return nil, err
			}

		default:
			notFound = 0
			interval = p.adapt(interval, latency)
			p.emit(State{Phase: PhasePolling, Polls: polls, Interval: interval, Status: view.Status})
			if err := p.sleep(ctx, interval); err != nil {
				return nil, err
			}
		}
	}
}

// waitOnline suspends polling and re-checks connectivity with exponential
// backoff until the server answers.
func (p *Poller) waitOnline(ctx context.Context, polls int, interval time.Duration) error {
	delay := p.cfg.OfflineBaseDelay
	for {
		p.emit(State{Phase: PhaseOffline, Polls: polls, Interval: delay})
		p.logger.Info("server unreachable, waiting for connectivity", "retry_in", delay)
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
		if err := p.src.Health(ctx); err == nil {
			p.logger.Info("connectivity restored")
			p.emit(State{Phase: PhasePolling, Polls: polls, Interval: interval})
			return nil
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
		delay = min(delay*2, p.cfg.OfflineMaxDelay)
	}
}

func (p *Poller) complete(jobID string, view models.StatusView, polls int) (*Result, error) {
	res := &Result{JobID: jobID, Polls: polls}
	switch {
	case view.Result == nil:
		return nil, &JobFailedError{JobID: jobID, Message: "completed without a result"}
	case view.Result.Processed():
		res.Itinerary = view.Result.Itinerary
		res.ServerNormalized = true
	default:
		doc, err := itinerary.ParseAndNormalize(view.Result.Raw)
		if err != nil {
			return nil, &JobFailedError{JobID: jobID, Message: fmt.Sprintf("The generated itinerary could not be read: %v", err)}
		}
		res.Itinerary = doc
	}
	return res, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
