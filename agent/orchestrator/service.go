package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Todo-Agent/agent/contract"
	historyx "github.com/tanpawarit/Chative-Todo-Agent/agent/history"
	protocolx "github.com/tanpawarit/Chative-Todo-Agent/agent/protocol"
	toolx "github.com/tanpawarit/Chative-Todo-Agent/agent/tool"
	metricsx "github.com/tanpawarit/Chative-Todo-Agent/pkg/metrics"
)

var ErrHalted = errors.New("orchestrator halted after a fatal error")

// Orchestrator drives one conversation session. It is strictly sequential
// and must not be shared between goroutines.
type Orchestrator struct {
	oracle   contractx.Oracle
	tools    *toolx.Registry
	journal  contractx.Journal
	notifier contractx.TurnNotifier
	history  *historyx.History
	window   historyx.Window

	sessionID         string
	maxSteps          int
	strictStoreErrors bool
	state             State

	logger zerolog.Logger
	now    func() time.Time
}

type Option func(*Orchestrator)

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithJournal(j contractx.Journal) Option {
	return func(o *Orchestrator) {
		if j != nil {
			o.journal = j
		}
	}
}

func WithNotifier(n contractx.TurnNotifier) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithMaxSteps bounds oracle queries per turn. n <= 0 means unbounded.
func WithMaxSteps(n int) Option {
	return func(o *Orchestrator) { o.maxSteps = n }
}

// WithStrictStoreErrors makes store failures fatal instead of observations.
func WithStrictStoreErrors(strict bool) Option {
	return func(o *Orchestrator) { o.strictStoreErrors = strict }
}

func WithWindow(w historyx.Window) Option {
	return func(o *Orchestrator) { o.window = w }
}

// WithSessionID resumes or names the session journaled under id.
func WithSessionID(id string) Option {
	return func(o *Orchestrator) { o.sessionID = strings.TrimSpace(id) }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New builds a session. When the journal already holds entries for the
// session id the history is restored from them; otherwise it is seeded with
// systemPrompt and the seed is journaled.
func New(
	ctx context.Context,
	oracle contractx.Oracle,
	tools *toolx.Registry,
	systemPrompt string,
	opts ...Option,
) (*Orchestrator, error) {
	if oracle == nil {
		return nil, fmt.Errorf("%w: oracle is required", contractx.ErrValidation)
	}
	if tools == nil {
		return nil, fmt.Errorf("%w: tool registry is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: system prompt is required", contractx.ErrValidation)
	}

	o := &Orchestrator{
		oracle:   oracle,
		tools:    tools,
		journal:  nopJournal{},
		notifier: nopNotifier{},
		window:   historyx.KeepAll{},
		maxSteps: DefaultMaxSteps,
		logger:   log.Logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	if o.sessionID == "" {
		o.sessionID = uuid.NewString()
	}
	o.logger = o.logger.With().Str("session_id", o.sessionID).Logger()

	entries, err := o.journal.Load(ctx, o.sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session journal: %w", err)
	}
	if len(entries) > 0 {
		h, err := historyx.Restore(entries, historyx.WithWindow(o.window))
		if err != nil {
			return nil, fmt.Errorf("restore session: %w", err)
		}
		o.history = h
		o.logger.Info().Int("entries", h.Len()).Msg("session restored from journal")
		return o, nil
	}

	o.history = historyx.New(systemPrompt, historyx.WithWindow(o.window))
	if err := o.journal.Append(ctx, o.sessionID, o.history.Last()); err != nil {
		return nil, fmt.Errorf("journal system entry: %w", err)
	}
	return o, nil
}

func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

func (o *Orchestrator) State() State {
	return o.state
}

// History returns a copy of the full transcript.
func (o *Orchestrator) History() []historyx.Entry {
	return o.history.Snapshot()
}

// HandleMessage runs one user turn to completion and returns the output
// text. Any returned error other than ErrInvalidMessage is fatal and halts
// the session.
func (o *Orchestrator) HandleMessage(ctx context.Context, text string) (string, error) {
	if o.state == StateHalted {
		return "", ErrHalted
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: user message is blank", contractx.ErrInvalidMessage)
	}

	out, err := o.runTurn(ctx, text)
	if err != nil {
		o.transition(StateHalted)
		metricsx.TurnsTotal.WithLabelValues("failed").Inc()
		return "", err
	}
	metricsx.TurnsTotal.WithLabelValues("completed").Inc()
	return out, nil
}

func (o *Orchestrator) runTurn(ctx context.Context, text string) (string, error) {
	payload, err := protocolx.EncodeUser(text)
	if err != nil {
		return "", err
	}
	if err := o.append(ctx, historyx.Entry{Role: historyx.RoleUser, Payload: payload}); err != nil {
		return "", err
	}

	ev := contractx.TurnEvent{SessionID: o.sessionID, Input: text}
	var pending protocolx.Message

	o.transition(StateAwaitOracleReply)
	for {
		switch o.state {
		case StateAwaitOracleReply:
			if o.maxSteps > 0 && ev.Steps >= o.maxSteps {
				return "", fmt.Errorf("%w: no output after %d oracle replies", contractx.ErrStepBudgetExceeded, ev.Steps)
			}
			ev.Steps++

			msg, err := o.queryOracle(ctx)
			if err != nil {
				return "", err
			}

			switch msg.Type {
			case protocolx.TypePlan:
				o.logger.Debug().Str("plan", msg.Plan).Msg("oracle planned")
			case protocolx.TypeAction:
				pending = msg
				o.transition(StateDispatch)
			case protocolx.TypeOutput:
				ev.Output = msg.Output
				ev.CompletedAt = o.now().UTC()
				o.transition(StateAwaitUserInput)
				o.notify(ctx, ev)
				return msg.Output, nil
			}

		case StateDispatch:
			call, err := o.dispatch(ctx, pending)
			if err != nil {
				return "", err
			}
			ev.ToolCalls = append(ev.ToolCalls, call)
			o.transition(StateAwaitOracleReply)

		default:
			return "", fmt.Errorf("unexpected loop state=%s", o.state)
		}
	}
}

// queryOracle sends the transcript view and appends the raw reply before
// decoding it, so a rejected reply is still part of the record.
func (o *Orchestrator) queryOracle(ctx context.Context) (protocolx.Message, error) {
	raw, err := o.oracle.Reply(ctx, o.history.View())
	if err != nil {
		return protocolx.Message{}, err
	}
	o.logger.Debug().Str("reply", raw).Msg("oracle raw reply")

	if err := o.append(ctx, historyx.Entry{Role: historyx.RoleAssistant, Payload: raw}); err != nil {
		return protocolx.Message{}, err
	}

	msg, err := protocolx.Decode(raw)
	if err != nil {
		metricsx.ProtocolViolationsTotal.WithLabelValues("malformed").Inc()
		return protocolx.Message{}, err
	}
	metricsx.OracleRepliesTotal.WithLabelValues(string(msg.Type)).Inc()
	return msg, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, msg protocolx.Message) (contractx.ToolCall, error) {
	d, err := o.tools.Resolve(msg.Function)
	if err != nil {
		metricsx.ProtocolViolationsTotal.WithLabelValues("unknown_tool").Inc()
		return contractx.ToolCall{}, err
	}

	started := o.now()
	result, err := d.Invoke(ctx, msg.Input)
	metricsx.ToolDuration.WithLabelValues(d.Name).Observe(o.now().Sub(started).Seconds())

	call := contractx.ToolCall{Tool: d.Name}
	obs := protocolx.NewObservation(result)
	status := "ok"
	defer func() { metricsx.ToolInvocationsTotal.WithLabelValues(d.Name, status).Inc() }()

	switch {
	case err == nil:
		o.logger.Info().Str("tool", d.Name).Msg("tool dispatched")
	case errors.Is(err, contractx.ErrInvalidToolInput):
		status = "invalid_input"
		call.Failed = true
		obs = protocolx.FailedObservation(err)
		o.logger.Warn().Err(err).Str("tool", d.Name).Msg("tool input rejected")
	default:
		status = "store_error"
		call.Failed = true
		if o.strictStoreErrors {
			return call, err
		}
		obs = protocolx.FailedObservation(err)
		o.logger.Warn().Err(err).Str("tool", d.Name).Msg("tool failed, reporting to oracle")
	}

	payload, err := obs.Encode()
	if err != nil {
		return call, err
	}
	if err := o.append(ctx, historyx.Entry{Role: historyx.RoleDeveloper, Payload: payload}); err != nil {
		return call, err
	}
	return call, nil
}

func (o *Orchestrator) append(ctx context.Context, e historyx.Entry) error {
	o.history.Append(e)
	if err := o.journal.Append(ctx, o.sessionID, e); err != nil {
		return fmt.Errorf("journal %s entry: %w", e.Role, err)
	}
	return nil
}

func (o *Orchestrator) notify(ctx context.Context, ev contractx.TurnEvent) {
	if err := o.notifier.NotifyTurn(ctx, ev); err != nil {
		o.logger.Warn().Err(err).Msg("turn notification failed")
	}
}

func (o *Orchestrator) transition(next State) {
	if o.state == next {
		return
	}
	o.logger.Debug().Str("from", o.state.String()).Str("to", next.String()).Msg("state transition")
	o.state = next
}

type nopJournal struct{}

func (nopJournal) Append(context.Context, string, historyx.Entry) error { return nil }

func (nopJournal) Load(context.Context, string) ([]historyx.Entry, error) { return nil, nil }

type nopNotifier struct{}

func (nopNotifier) NotifyTurn(context.Context, contractx.TurnEvent) error { return nil }
