// Package refine runs the generate, execute and validate loop that turns a
// sample statement into a parsing routine.
package refine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cleared-dev/parsergen/internal/generate"
	"github.com/cleared-dev/parsergen/internal/sample"
	"github.com/cleared-dev/parsergen/internal/sandbox"
	"github.com/cleared-dev/parsergen/internal/schema"
	"github.com/cleared-dev/parsergen/internal/target"
	"github.com/cleared-dev/parsergen/internal/validate"
)

// DefaultMaxAttempts is the attempt ceiling when none is configured.
const DefaultMaxAttempts = 3

var (
	// ErrAttemptsExhausted is the terminal cause when no attempt passed.
	ErrAttemptsExhausted = errors.New("attempts exhausted")
	// ErrValidationMismatch marks a run whose last attempt produced the
	// wrong table.
	ErrValidationMismatch = errors.New("output does not match reference")
)

// Loader reads the sample of a target.
type Loader interface {
	Load(ctx context.Context, t target.Target) (*sample.Sample, error)
}

// Options configures a Controller.
type Options struct {
	MaxAttempts     int
	Validation      validate.Options
	CaseInsensitive []string
	AllowedImports  []string
	FeedbackLimit   int // bytes
	FeedbackRows    int
	Logger          *zap.Logger
}

// Controller drives runs. It holds no per-run state and may be reused.
type Controller struct {
	loader Loader
	gen    generate.Client
	exec   sandbox.Executor
	opts   Options
	logger *zap.Logger
}

// New returns a Controller, filling unset options with defaults.
func New(loader Loader, gen generate.Client, exec sandbox.Executor, opts Options) *Controller {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.FeedbackLimit <= 0 {
		opts.FeedbackLimit = DefaultFeedbackLimit
	}
	if opts.FeedbackRows <= 0 {
		opts.FeedbackRows = DefaultFeedbackRows
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Controller{loader: loader, gen: gen, exec: exec, opts: opts, logger: opts.Logger}
}

// run is the mutable state of one Run call.
type run struct {
	c      *Controller
	target target.Target
	logger *zap.Logger

	sample   *sample.Sample
	schema   schema.Schema
	attempt  int
	feedback string
	current  *Attempt
	result   *Result
}

// Run executes the loop for t until success, exhaustion, a fatal error or
// cancellation of ctx.
func (c *Controller) Run(ctx context.Context, t target.Target) *Result {
	r := c.newRun(t)
	state := StateInit
	for !state.Terminal() {
		if err := ctx.Err(); err != nil {
			state = r.cancel(err)
			break
		}
		next := r.step(ctx, state)
		r.logger.Debug("state transition",
			zap.Stringer("from", state),
			zap.Stringer("to", next),
			zap.Int("attempt", r.attempt),
		)
		state = next
	}
	r.result.State = state

	fields := []zap.Field{
		zap.String("state", state.String()),
		zap.Int("attempts", len(r.result.Attempts)),
	}
	if r.result.Err != nil {
		fields = append(fields, zap.Error(r.result.Err))
	}
	r.logger.Info("run finished", fields...)
	return r.result
}

func (c *Controller) newRun(t target.Target) *run {
	id := uuid.NewString()
	return &run{
		c:      c,
		target: t,
		logger: c.logger.With(zap.String("run_id", id), zap.String("target", t.Name)),
		result: &Result{RunID: id, Target: t.Name},
	}
}

func (r *run) step(ctx context.Context, s State) State {
	switch s {
	case StateInit:
		return r.init(ctx)
	case StateGenerating:
		return r.generating(ctx)
	case StateExecuting:
		return r.executing(ctx)
	case StateValidating:
		return r.validating(ctx)
	default:
		return r.fatal(fmt.Errorf("no transition from state %s", s))
	}
}

func (r *run) init(ctx context.Context) State {
	smp, err := r.c.loader.Load(ctx, r.target)
	if err != nil {
		if ctx.Err() != nil {
			return r.cancel(ctx.Err())
		}
		return r.fatal(fmt.Errorf("loading sample: %w", err))
	}
	s, err := schema.Observe(smp.Reference, schema.WithCaseInsensitive(r.c.opts.CaseInsensitive...))
	if err != nil {
		return r.fatal(fmt.Errorf("observing schema: %w", err))
	}
	r.sample = smp
	r.schema = s
	r.attempt = 1
	r.feedback = ""
	r.logger.Debug("schema observed", zap.String("schema", s.String()))
	return StateGenerating
}

func (r *run) generating(ctx context.Context) State {
	r.current = &Attempt{
		Index:     r.attempt,
		Feedback:  r.feedback,
		StartedAt: time.Now(),
	}
	src, err := r.c.gen.Generate(ctx, generate.Request{
		Target:         r.target.Name,
		Document:       r.sample.Document,
		Schema:         r.schema,
		Reference:      r.sample.Reference,
		Attempt:        r.attempt,
		MaxAttempts:    r.c.opts.MaxAttempts,
		AllowedImports: r.c.opts.AllowedImports,
		Feedback:       r.feedback,
	})
	if ctx.Err() != nil {
		return r.cancel(ctx.Err())
	}
	if err != nil {
		if !errors.Is(err, generate.ErrGenerationUnavailable) {
			err = fmt.Errorf("%w: %w", generate.ErrGenerationUnavailable, err)
		}
		r.current.GenerationErr = err
		r.current.Outcome = OutcomeGenerationFailed
		if r.attempt >= r.c.opts.MaxAttempts {
			r.record()
			return r.fatal(fmt.Errorf("attempt %d: %w", r.attempt, err))
		}
		return r.advance(generationFeedback(err, r.c.opts.FeedbackLimit))
	}
	r.current.Source = src
	return StateExecuting
}

func (r *run) executing(ctx context.Context) State {
	table, err := r.c.exec.Execute(ctx, r.current.Source, r.sample.Document)
	if ctx.Err() != nil {
		return r.cancel(ctx.Err())
	}
	if err != nil {
		f, ok := sandbox.AsFailure(err)
		if !ok {
			f = &sandbox.Failure{Kind: sandbox.FailureCrash, Message: err.Error()}
		}
		r.current.ExecutionErr = f
		r.current.Outcome = OutcomeExecutionFailed
		return r.advance(executionFeedback(f, r.c.opts.FeedbackLimit))
	}
	r.current.Output = table
	return StateValidating
}

func (r *run) validating(_ context.Context) State {
	v := validate.Validate(r.current.Output, r.sample.Reference, r.schema, r.c.opts.Validation)
	r.current.Verdict = &v
	if v.Pass {
		r.current.Outcome = OutcomePass
		r.result.Artifact = r.current.Source
		r.record()
		return StateDoneSuccess
	}
	r.current.Outcome = OutcomeMismatch
	return r.advance(mismatchFeedback(v, r.c.opts.FeedbackRows, r.c.opts.FeedbackLimit))
}

// advance records the failed current attempt with its report and moves to
// the next attempt, or ends the run at the ceiling.
func (r *run) advance(report string) State {
	r.current.Report = report
	last := *r.current
	r.record()

	r.feedback = report
	r.attempt++
	if r.attempt <= r.c.opts.MaxAttempts {
		return StateGenerating
	}

	var cause error
	switch {
	case last.ExecutionErr != nil:
		cause = last.ExecutionErr
	case last.Verdict != nil:
		cause = fmt.Errorf("%w: %s", ErrValidationMismatch, last.Verdict.Summary())
	default:
		cause = last.GenerationErr
	}
	r.result.Err = fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, len(r.result.Attempts), cause)
	return StateDoneExhausted
}

func (r *run) record() {
	a := *r.current
	a.Duration = time.Since(a.StartedAt)
	r.result.Attempts = append(r.result.Attempts, a)
	r.current = nil

	r.logger.Info("attempt finished",
		zap.Int("attempt", a.Index),
		zap.String("outcome", string(a.Outcome)),
		zap.Duration("elapsed", a.Duration),
	)
}

func (r *run) fatal(err error) State {
	r.result.Err = err
	return StateDoneFatal
}

// cancel discards the attempt in flight.
func (r *run) cancel(err error) State {
	r.current = nil
	r.result.Err = err
	return StateCancelled
}
