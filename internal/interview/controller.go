// Package interview runs simulated interviews between an interviewer and a
// respondent model and drives batches of them.
package interview

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/interview-sim/internal/llm"
	"github.com/capitalize-ai/interview-sim/internal/model"
	"github.com/capitalize-ai/interview-sim/internal/retry"
	"github.com/capitalize-ai/interview-sim/pkg/logger"
	"github.com/capitalize-ai/interview-sim/pkg/metrics"
	"github.com/capitalize-ai/interview-sim/pkg/tracing"
)

// Protocol is everything the controller needs to know about an interview
// instrument. Prompt texts are opaque.
type Protocol struct {
	SystemPrompt string
	// RespondentTemplate may reference {persona_name} and {persona_description}.
	RespondentTemplate string
	AbortedMessage     string
	Codes              []model.CodeRule
	DetectPolicyCodes  bool
	SubstringFallback  bool
}

// RespondentInstruction renders the respondent's system instruction for p.
func (p Protocol) RespondentInstruction(persona model.Persona) string {
	return strings.NewReplacer(
		"{persona_name}", persona.Name,
		"{persona_description}", persona.Description,
	).Replace(p.RespondentTemplate)
}

type phase int

const (
	phaseAwaitingOpening phase = iota
	phaseAlternating
	phaseTerminated
)

// Result is the final state of one session.
type Result struct {
	Outcome  model.Outcome
	Signal   model.TerminationSignal
	Turns    int
	Messages []model.Message
	State    *model.ConversationState
}

// Controller drives one conversation at a time through opening, strict
// respondent/interviewer alternation, and termination.
type Controller struct {
	gateway   llm.Gateway
	policy    *retry.Policy
	protocol  Protocol
	scanner   *Scanner
	sink      EventSink
	logger    *logger.Logger
	callDelay time.Duration
	now       func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithEventSink sets the sink receiving session events.
func WithEventSink(sink EventSink) Option {
	return func(c *Controller) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// WithCallDelay pauses after every gateway call.
func WithCallDelay(d time.Duration) Option {
	return func(c *Controller) { c.callDelay = d }
}

// WithLogger sets the controller logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithClock overrides the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a controller that calls gateway through policy.
func NewController(gateway llm.Gateway, policy *retry.Policy, protocol Protocol, opts ...Option) *Controller {
	c := &Controller{
		gateway:  gateway,
		policy:   policy,
		protocol: protocol,
		scanner:  NewScanner(protocol.Codes, protocol.SubstringFallback, protocol.DetectPolicyCodes),
		sink:     NopSink{},
		logger:   logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run drives state until it terminates. It never returns an error: upstream
// failures end the session with the aborted marker so it can still be recorded.
func (c *Controller) Run(ctx context.Context, state *model.ConversationState) *Result {
	ctx, span := tracing.Tracer().Start(ctx, "interview.session", trace.WithAttributes(
		attribute.String("session.id", state.SessionID),
		attribute.String("session.identity", state.Identity),
		attribute.String("session.persona", state.Persona.Name),
		attribute.Int("session.max_turns", state.MaxTurns),
	))
	defer span.End()

	log := c.logger.WithSession(state.SessionID, state.Identity, state.Persona.Name)
	log.Info("session started", zap.Int("max_turns", state.MaxTurns))

	metrics.SessionInProgress.Set(1)
	defer metrics.SessionInProgress.Set(0)
	c.emit(ctx, log, state, &model.SessionEvent{Type: model.EventTypeSessionStarted})

	res := &Result{State: state}
	p := phaseAwaitingOpening
	for p != phaseTerminated {
		switch p {
		case phaseAwaitingOpening:
			p = c.opening(ctx, log, state, res)
		case phaseAlternating:
			p = c.turn(ctx, log, state, res)
		}
	}
	state.Stop()

	res.Turns = state.Turn
	res.Messages = state.Snapshot()

	span.SetAttributes(
		attribute.String("session.outcome", string(res.Outcome)),
		attribute.Int("session.turns", res.Turns),
	)
	if res.Outcome == model.OutcomeAborted {
		span.SetStatus(codes.Error, "session aborted")
	}
	metrics.RecordSession(string(res.Outcome))
	log.Info("session finished",
		zap.String("outcome", string(res.Outcome)),
		zap.String("signal", string(res.Signal)),
		zap.Int("turns", res.Turns),
		zap.Int("messages", len(res.Messages)),
	)
	c.emit(ctx, log, state, &model.SessionEvent{
		Type:    model.EventTypeSessionFinished,
		Outcome: res.Outcome,
		Signal:  string(res.Signal),
	})
	return res
}

func (c *Controller) opening(ctx context.Context, log *logger.Logger, state *model.ConversationState, res *Result) phase {
	reply, ok := c.generate(ctx, log, state, model.RoleInterviewer, c.protocol.SystemPrompt)
	if !ok {
		return c.abort(ctx, log, state, res)
	}
	return c.interviewerReply(ctx, log, state, res, reply)
}

func (c *Controller) turn(ctx context.Context, log *logger.Logger, state *model.ConversationState, res *Result) phase {
	if !state.BeginTurn() {
		res.Outcome = model.OutcomeBudgetExhausted
		log.Info("turn budget exhausted", zap.Int("turns", state.Turn))
		return phaseTerminated
	}

	answer, ok := c.generate(ctx, log, state, model.RoleRespondent, c.protocol.RespondentInstruction(state.Persona))
	if !ok {
		return c.abort(ctx, log, state, res)
	}
	c.append(ctx, log, state, model.RoleRespondent, answer)

	reply, ok := c.generate(ctx, log, state, model.RoleInterviewer, c.protocol.SystemPrompt)
	if !ok {
		return c.abort(ctx, log, state, res)
	}

	return c.interviewerReply(ctx, log, state, res, reply)
}

// interviewerReply scans an interviewer utterance, the opening included, and
// records it or the message its code maps to.
func (c *Controller) interviewerReply(ctx context.Context, log *logger.Logger, state *model.ConversationState, res *Result, reply string) phase {
	det, found := c.scanner.Scan(reply)
	if !found {
		c.append(ctx, log, state, model.RoleInterviewer, reply)
		return phaseAlternating
	}

	metrics.SignalsTotal.WithLabelValues(string(det.Rule.Signal)).Inc()
	if det.Rule.Halts {
		res.Outcome = model.OutcomeSignaled
		res.Signal = det.Rule.Signal
		log.Info("termination code detected",
			zap.String("code", det.Rule.Code),
			zap.String("signal", string(det.Rule.Signal)),
			zap.String("match", string(det.Mode)),
			zap.Int("turn", state.Turn),
		)
		if msg, err := state.Close(model.RoleInterviewer, det.Rule.ClosingMessage, c.now()); err == nil {
			c.appended(ctx, log, state, msg)
		}
		return phaseTerminated
	}

	state.PolicySignals = append(state.PolicySignals, model.PolicySignal{
		Turn:   state.Turn,
		Code:   det.Rule.Code,
		Signal: det.Rule.Signal,
	})
	log.Warn("policy code detected",
		zap.String("code", det.Rule.Code),
		zap.String("signal", string(det.Rule.Signal)),
		zap.String("match", string(det.Mode)),
		zap.Int("turn", state.Turn),
	)
	c.emit(ctx, log, state, &model.SessionEvent{
		Type:   model.EventTypePolicySignal,
		Signal: string(det.Rule.Signal),
	})
	if det.Rule.ClosingMessage != "" {
		reply = det.Rule.ClosingMessage
	}
	c.append(ctx, log, state, model.RoleInterviewer, reply)
	return phaseAlternating
}

func (c *Controller) abort(ctx context.Context, log *logger.Logger, state *model.ConversationState, res *Result) phase {
	res.Outcome = model.OutcomeAborted
	log.Warn("session aborted after upstream failure", zap.Int("turn", state.Turn))
	if msg, err := state.Close(model.RoleSystem, c.protocol.AbortedMessage, c.now()); err == nil {
		c.appended(ctx, log, state, msg)
	}
	return phaseTerminated
}

// generate asks the gateway, through the retry policy, for role's next
// utterance given the full shared history.
func (c *Controller) generate(ctx context.Context, log *logger.Logger, state *model.ConversationState, role model.Role, instruction string) (string, bool) {
	ctx, span := tracing.Tracer().Start(ctx, "interview.generate", trace.WithAttributes(
		attribute.String("llm.provider", c.gateway.Name()),
		attribute.String("interview.role", string(role)),
		attribute.Int("interview.turn", state.Turn),
	))
	defer span.End()

	req := &llm.GenerateRequest{
		History:           state.Snapshot(),
		SystemInstruction: instruction,
		Perspective:       role,
	}

	reply, ok := c.policy.Invoke(ctx, func(ctx context.Context) (string, error) {
		start := time.Now()
		resp, err := c.gateway.Generate(ctx, req)
		status := "success"
		if err != nil {
			status = string(llm.KindOther)
			if llm.IsRateLimited(err) {
				status = string(llm.KindRateLimited)
			}
		}
		metrics.RecordLLMCall(c.gateway.Name(), string(role), status, time.Since(start).Seconds())
		if err != nil {
			return "", err
		}
		log.Debug("gateway reply",
			zap.String("role", string(role)),
			zap.Int("tokens_in", resp.TokensIn),
			zap.Int("tokens_out", resp.TokensOut),
			zap.Int64("latency_ms", resp.LatencyMs),
		)
		return resp.Content, nil
	})
	if !ok {
		span.SetStatus(codes.Error, "upstream failure")
		return "", false
	}

	c.pause(ctx)
	return reply, true
}

func (c *Controller) append(ctx context.Context, log *logger.Logger, state *model.ConversationState, role model.Role, content string) {
	msg, err := state.Append(role, content, c.now())
	if err != nil {
		log.Error("append rejected", zap.String("role", string(role)), zap.Error(err))
		return
	}
	c.appended(ctx, log, state, msg)
}

func (c *Controller) appended(ctx context.Context, log *logger.Logger, state *model.ConversationState, msg model.Message) {
	metrics.MessagesTotal.WithLabelValues(string(msg.Role)).Inc()
	log.Info("message appended",
		zap.String("role", string(msg.Role)),
		zap.Int("turn", state.Turn),
		zap.String("content", msg.Content),
	)
	c.emit(ctx, log, state, &model.SessionEvent{
		Type:    model.EventTypeMessageAppended,
		Message: &msg,
	})
}

func (c *Controller) emit(ctx context.Context, log *logger.Logger, state *model.ConversationState, event *model.SessionEvent) {
	event.ID = uuid.Must(uuid.NewV7()).String()
	event.SessionID = state.SessionID
	event.Identity = state.Identity
	event.Persona = state.Persona.Name
	event.Turn = state.Turn
	event.CreatedAt = c.now()

	// Publishing must outlive a canceled session so the finish event still goes out.
	if err := c.sink.Publish(context.WithoutCancel(ctx), event); err != nil {
		log.Warn("failed to publish session event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func (c *Controller) pause(ctx context.Context) {
	if c.callDelay <= 0 {
		return
	}
	t := time.NewTimer(c.callDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
