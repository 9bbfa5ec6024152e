package ensemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"subguard/internal/logging"
	"subguard/internal/services"
)

// ErrNoVotes is returned when every engine failed.
var ErrNoVotes = errors.New("no engine produced a vote")

// Engine outcome labels reported to an Observer.
const (
	OutcomeVoted   = "voted"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
)

// Observer receives one notification per engine call. Implementations must
// be safe for concurrent use.
type Observer interface {
	EngineOutcome(engine, outcome string, elapsed time.Duration)
}

// Options tunes a Voter.
type Options struct {
	Strategy          Strategy
	ConflictThreshold float64
	// Parallelism caps concurrent engine calls. Zero runs every engine at
	// once; one runs them sequentially.
	Parallelism int
	// DefaultTimeout applies to members registered without their own.
	DefaultTimeout time.Duration
	Observer       Observer
}

// Failure records an engine excluded from the vote.
type Failure struct {
	Engine   string        `json:"engine"`
	Error    string        `json:"error"`
	Timeout  bool          `json:"timeout"`
	Duration time.Duration `json:"duration"`
}

// Result is the combined verdict for one clip.
type Result struct {
	HasSubtitles bool                 `json:"has_subtitles"`
	Confidence   float64              `json:"confidence"`
	Strategy     Strategy             `json:"strategy"`
	Votes        []Vote               `json:"votes"`
	Failures     []Failure            `json:"failures,omitempty"`
	Conflict     *ConflictAnalysis    `json:"conflict_analysis,omitempty"`
	Uncertainty  *UncertaintyAnalysis `json:"uncertainty_analysis,omitempty"`
}

// outcome is the vote-or-error pair collected from each engine.
type outcome struct {
	member Member
	vote   Vote
	err    error
	took   time.Duration
}

// Voter runs registered engines and combines their votes.
type Voter struct {
	registry *Registry
	opts     Options
	logger   *slog.Logger
}

// NewVoter validates opts and returns a Voter over registry.
func NewVoter(registry *Registry, opts Options, logger *slog.Logger) (*Voter, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "ensemble", "new voter", "no engines registered", nil)
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyWeighted
	}
	if _, err := ParseStrategy(string(opts.Strategy)); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "ensemble", "new voter", "", err)
	}
	if opts.ConflictThreshold <= 0 {
		opts.ConflictThreshold = DefaultConflictThreshold
	}
	if opts.Parallelism < 0 {
		opts.Parallelism = 0
	}
	return &Voter{
		registry: registry,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "ensemble"),
	}, nil
}

// Vote runs every engine against videoPath and combines the surviving votes.
// A failing engine is logged and excluded. If none survive, the error wraps
// ErrNoVotes; if ctx ends first, the error wraps ctx.Err().
func (v *Voter) Vote(ctx context.Context, videoPath string) (Result, error) {
	members := v.registry.Members()
	outcomes := make([]outcome, len(members))

	var g errgroup.Group
	if v.opts.Parallelism > 0 {
		g.SetLimit(v.opts.Parallelism)
	}
	for i, m := range members {
		g.Go(func() error {
			outcomes[i] = v.run(ctx, m, videoPath)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		if errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
			return Result{}, services.Wrap(services.ErrTimeout, "validate", "ensemble", "vote deadline exceeded", err)
		}
		return Result{}, services.Wrap(services.ErrTransient, "validate", "ensemble", "vote canceled", err)
	}

	logger := logging.WithContext(ctx, v.logger)
	res := Result{Strategy: v.opts.Strategy}
	for _, o := range outcomes {
		if o.err != nil {
			timedOut := errors.Is(o.err, context.DeadlineExceeded)
			res.Failures = append(res.Failures, Failure{
				Engine:   o.member.Name,
				Error:    o.err.Error(),
				Timeout:  timedOut,
				Duration: o.took,
			})
			logging.WarnWithContext(logger, "engine failed; excluded from vote", "engine_failed",
				logging.String(logging.FieldEngine, o.member.Name),
				logging.Bool("timeout", timedOut),
				logging.Error(o.err),
				logging.String(logging.FieldErrorHint, "check the engine binary and its timeout"),
				logging.String(logging.FieldImpact, "verdict uses the remaining engines"),
			)
			continue
		}
		res.Votes = append(res.Votes, o.vote)
	}
	if len(res.Votes) == 0 {
		return res, services.Wrap(services.ErrDetector, "validate", "ensemble",
			fmt.Sprintf("all %d engines failed", len(members)), ErrNoVotes)
	}

	res.HasSubtitles, res.Confidence = Decide(v.opts.Strategy, res.Votes)
	res.Conflict = DetectConflict(res.Votes, res.HasSubtitles, v.opts.ConflictThreshold)
	res.Uncertainty = EstimateUncertainty(res.Votes)

	attrs := []logging.Attr{
		logging.Bool("has_subtitles", res.HasSubtitles),
		logging.Float64("confidence", res.Confidence),
		logging.String("strategy", string(res.Strategy)),
		logging.Int("votes", len(res.Votes)),
		logging.Int("failures", len(res.Failures)),
		logging.String("uncertainty", res.Uncertainty.Level),
	}
	if res.Conflict != nil {
		attrs = append(attrs, logging.String("conflict", res.Conflict.Severity))
	}
	logger.Info("ensemble vote complete", logging.Args(attrs...)...)
	return res, nil
}

// run calls one engine under its own deadline. Panics are converted into
// failures so one engine cannot take down the vote.
func (v *Voter) run(ctx context.Context, m Member, videoPath string) (out outcome) {
	out.member = m
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = v.opts.DefaultTimeout
	}
	engineCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		engineCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out.err = fmt.Errorf("engine panic: %v", r)
		}
		out.took = time.Since(start)
		v.observe(m.Name, out.err, out.took)
	}()

	vote, err := m.Engine.Detect(engineCtx, videoPath)
	if err == nil && engineCtx.Err() != nil {
		err = engineCtx.Err()
	}
	if err != nil {
		out.err = err
		return out
	}
	if math.IsNaN(vote.Confidence) || vote.Confidence < 0 || vote.Confidence > 1 {
		out.err = services.Wrap(services.ErrDetector, "validate", m.Name,
			fmt.Sprintf("confidence %v outside [0,1]", vote.Confidence), nil)
		return out
	}
	vote.Engine = m.Name
	vote.Weight = m.Weight
	vote.Duration = time.Since(start)
	out.vote = vote
	return out
}

func (v *Voter) observe(engine string, err error, elapsed time.Duration) {
	if v.opts.Observer == nil {
		return
	}
	label := OutcomeVoted
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		label = OutcomeTimeout
	case err != nil:
		label = OutcomeFailed
	}
	v.opts.Observer.EngineOutcome(engine, label, elapsed)
}
