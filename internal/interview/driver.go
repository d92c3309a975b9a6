package interview

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/capitalize-ai/interview-sim/internal/model"
	"github.com/capitalize-ai/interview-sim/internal/transcript"
	"github.com/capitalize-ai/interview-sim/pkg/logger"
)

// Recorder persists finished sessions.
type Recorder interface {
	Persist(identity string, messages []model.Message, start time.Time) error
	Exists(identity string) bool
}

// DriverConfig controls which sessions a batch runs.
type DriverConfig struct {
	Personas             []model.Persona
	InterviewsPerPersona int
	MaxTurns             int
	// SkipCompleted skips identities that already have a transcript, so an
	// interrupted batch can be resumed.
	SkipCompleted bool
	// SessionDelay pauses between sessions.
	SessionDelay time.Duration
}

// SessionSummary describes one attempted session.
type SessionSummary struct {
	Identity string
	Persona  string
	Outcome  model.Outcome
	Signal   model.TerminationSignal
	Turns    int
	Skipped  bool
	Err      error
}

// Summary aggregates a batch run.
type Summary struct {
	Attempted int
	Signaled  int
	Exhausted int
	Aborted   int
	Skipped   int
	Failed    int
	Sessions  []SessionSummary
}

// Driver runs one controller session per persona and repetition, strictly
// one after another.
type Driver struct {
	controller *Controller
	recorder   Recorder
	cfg        DriverConfig
	logger     *logger.Logger
	now        func() time.Time
}

// NewDriver creates a batch driver.
func NewDriver(controller *Controller, recorder Recorder, cfg DriverConfig, log *logger.Logger) *Driver {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.InterviewsPerPersona <= 0 {
		cfg.InterviewsPerPersona = 1
	}
	return &Driver{
		controller: controller,
		recorder:   recorder,
		cfg:        cfg,
		logger:     log,
		now:        time.Now,
	}
}

// Run executes the batch. Persistence failures are logged and collected; the
// batch continues with the next session. The returned error combines them,
// plus the context error if the batch was interrupted.
func (d *Driver) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}
	var errs error

	for _, persona := range d.cfg.Personas {
		d.logger.Info("running interviews for persona",
			zap.String("persona", persona.Name),
			zap.Int("interviews", d.cfg.InterviewsPerPersona),
		)

		for n := 1; n <= d.cfg.InterviewsPerPersona; n++ {
			if err := ctx.Err(); err != nil {
				d.logger.Warn("batch interrupted", zap.Error(err))
				return summary, multierr.Append(errs, err)
			}

			s := d.runOne(ctx, persona, n)
			summary.add(s)
			if s.Err != nil {
				errs = multierr.Append(errs, s.Err)
			}
			if !s.Skipped && d.cfg.SessionDelay > 0 {
				sleep(ctx, d.cfg.SessionDelay)
			}
		}
	}

	d.logger.Info("batch finished",
		zap.Int("attempted", summary.Attempted),
		zap.Int("signaled", summary.Signaled),
		zap.Int("exhausted", summary.Exhausted),
		zap.Int("aborted", summary.Aborted),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, errs
}

func (d *Driver) runOne(ctx context.Context, persona model.Persona, n int) SessionSummary {
	identity := transcript.Identity(persona.Name, n)
	log := d.logger.With(zap.String("identity", identity), zap.String("persona", persona.Name))

	if d.cfg.SkipCompleted && d.recorder.Exists(identity) {
		log.Info("transcript exists, skipping")
		return SessionSummary{Identity: identity, Persona: persona.Name, Skipped: true}
	}

	log.Info("starting interview", zap.Int("n", n), zap.Int("of", d.cfg.InterviewsPerPersona))
	state := model.NewConversationState(identity, persona, d.cfg.MaxTurns, d.now())
	res := d.controller.Run(ctx, state)

	s := SessionSummary{
		Identity: identity,
		Persona:  persona.Name,
		Outcome:  res.Outcome,
		Signal:   res.Signal,
		Turns:    res.Turns,
	}
	if err := d.recorder.Persist(identity, res.Messages, state.StartedAt); err != nil {
		s.Err = fmt.Errorf("persist %s: %w", identity, err)
		log.Error("failed to persist interview", zap.Error(err))
		return s
	}
	log.Info("interview completed and saved", zap.String("outcome", string(res.Outcome)))
	return s
}

func (s *Summary) add(session SessionSummary) {
	s.Sessions = append(s.Sessions, session)
	if session.Skipped {
		s.Skipped++
		return
	}
	s.Attempted++
	switch session.Outcome {
	case model.OutcomeSignaled:
		s.Signaled++
	case model.OutcomeBudgetExhausted:
		s.Exhausted++
	case model.OutcomeAborted:
		s.Aborted++
	}
	if session.Err != nil {
		s.Failed++
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
