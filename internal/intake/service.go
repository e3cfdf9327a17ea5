// ABOUTME: Turn service: classifies events, applies transitions, performs side effects.
// ABOUTME: Session writes are awaited; staff notify and post-finalize clear run detached.

package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/OGJRx/intake-gateway/internal/flow"
	"github.com/OGJRx/intake-gateway/internal/job"
	"github.com/OGJRx/intake-gateway/internal/metrics"
	"github.com/OGJRx/intake-gateway/internal/session"
)

// detachTimeout bounds detached work (staff notify, post-finalize clear) so
// it cannot hang forever after the reply has been sent.
const detachTimeout = 30 * time.Second

// Event is one inbound chat event, already decoded by the transport.
type Event struct {
	// UserID identifies the sender; keys the session store.
	UserID string

	// ChatID identifies the conversation; recorded on job records.
	ChatID string

	// FirstName is the sender's display name as known to the platform.
	// Used for quote leads, which have no name-collection turn.
	FirstName string

	// Command is the bare command name ("start", "status", ...) or empty
	// for a free-text turn.
	Command string

	// Args is the inline text following the command, if any.
	Args string

	// Text is the free-text input for non-command turns.
	Text string
}

// Kind returns the event kind for logging and metrics.
func (e Event) Kind() string {
	if e.Command != "" {
		return e.Command
	}
	return "text"
}

// Reply is the outbound answer for an event. Empty Text means no reply.
type Reply struct {
	Text     string
	Markdown bool
}

func markdown(text string) Reply {
	return Reply{Text: text, Markdown: true}
}

// Notifier fans a summary out to the staff channel. Failures must never
// reach the user-facing flow; the service calls it detached and logs errors.
type Notifier interface {
	NotifyStaff(ctx context.Context, summary string) error
}

// Config collects the service dependencies. There is no process-wide
// singleton; each gateway instance builds its own service.
type Config struct {
	Sessions session.Store
	Jobs     job.Sink
	Notifier Notifier
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Service routes events through the conversation state machine.
type Service struct {
	sessions session.Store
	jobs     job.Sink
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger

	// detach runs fire-and-forget work. Replaced in tests to run inline.
	detach func(name string, fn func(ctx context.Context) error)
}

// New creates a Service from the config.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	s := &Service{
		sessions: cfg.Sessions,
		jobs:     cfg.Jobs,
		notifier: cfg.Notifier,
		metrics:  m,
		logger:   logger.With("component", "intake"),
	}
	s.detach = s.spawnDetached
	return s
}

// spawnDetached runs fn in its own goroutine with a fresh bounded context.
// The caller's context is not used: detached work outlives the reply path.
func (s *Service) spawnDetached(name string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), detachTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Error("detached operation failed", "op", name, "error", err)
		}
	}()
}

// HandleEvent processes one inbound event and returns the reply. The
// returned error reports a definite backend failure for logging; the Reply
// is always usable, carrying a retry-later message in that case.
func (s *Service) HandleEvent(ctx context.Context, ev Event) (Reply, error) {
	s.metrics.EventsTotal.WithLabelValues(ev.Kind()).Inc()

	switch ev.Command {
	case "start", "schedule":
		return s.handleStart(ctx, ev)
	case "status":
		return s.handleStatus(ctx, ev)
	case "quote":
		return s.handleQuote(ctx, ev)
	case "":
		return s.handleText(ctx, ev)
	default:
		return markdown(replyUsageHint), nil
	}
}

// handleStart resets the session unconditionally and begins the dialogue.
// This is the escape hatch: it works from any step, including a desynced one.
func (s *Service) handleStart(ctx context.Context, ev Event) (Reply, error) {
	state := session.State{Step: flow.StepAwaitName, Data: map[string]string{}}
	if err := s.sessions.Write(ctx, ev.UserID, state); err != nil {
		s.logger.Error("session reset failed", "user_id", ev.UserID, "error", err)
		return markdown(replyRetryLater), err
	}
	return markdown(replyStart), nil
}

// handleStatus answers with the latest job record for the chat. Latest means
// last by insertion order, per the sink contract.
func (s *Service) handleStatus(ctx context.Context, ev Event) (Reply, error) {
	records, err := s.jobs.Query(ctx, ev.ChatID)
	if err != nil {
		s.logger.Error("status query failed", "chat_id", ev.ChatID, "error", err)
		return markdown(replyRetryLater), err
	}
	if len(records) == 0 {
		return markdown(replyNoJobs), nil
	}
	return markdown(statusReply(records[len(records)-1])), nil
}

// handleQuote is the single-turn lead side path. It never reads or writes
// the session; the record is synthesized from the event alone. The save is
// awaited so the user is not promised a callback that was never recorded.
func (s *Service) handleQuote(ctx context.Context, ev Event) (Reply, error) {
	clientName := strings.TrimSpace(ev.FirstName)
	if clientName == "" {
		clientName = "customer"
	}
	vehicleInfo := strings.TrimSpace(ev.Args)
	if vehicleInfo == "" {
		vehicleInfo = "General request"
	}

	rec := &job.Record{
		ChatID:      ev.ChatID,
		ClientName:  clientName,
		VehicleInfo: vehicleInfo,
		Notes:       "Quote requested",
		Status:      job.StatusLead,
		IsLead:      true,
	}

	if _, err := s.jobs.Save(ctx, rec); err != nil {
		s.logger.Error("lead save failed", "chat_id", ev.ChatID, "error", err)
		return markdown(replyRetryLater), err
	}
	s.metrics.JobsSavedTotal.WithLabelValues(string(rec.Status)).Inc()
	s.notifyStaff(staffLeadSummary(rec))

	return markdown(replyQuote), nil
}

// handleText runs a free-text turn through the state machine.
func (s *Service) handleText(ctx context.Context, ev Event) (Reply, error) {
	state := s.readSession(ctx, ev.UserID)
	res := flow.Transition(state.Step, ev.Text)

	switch res.Outcome {
	case flow.OutcomeNoop:
		return markdown(replyUsageHint), nil

	case flow.OutcomeReject:
		return markdown(rejectReply(state.Step)), nil

	case flow.OutcomeAdvance:
		return s.applyAdvance(ctx, ev, state, res)

	case flow.OutcomeFinalize:
		return s.applyFinalize(ctx, ev, state, res)

	case flow.OutcomeDesync:
		s.logger.Warn("session desync detected",
			"user_id", ev.UserID, "step", string(state.Step))
		return markdown(replyDesync), nil

	default:
		return Reply{}, fmt.Errorf("unhandled outcome %v", res.Outcome)
	}
}

// applyAdvance persists the new step and gained fields, then prompts for the
// next stage. The write is awaited: advancing the prompt while the write
// failed would desynchronize the dialogue from the store.
func (s *Service) applyAdvance(ctx context.Context, ev Event, state session.State, res flow.Result) (Reply, error) {
	next := state.Clone()
	next.Step = res.Next
	for k, v := range res.Patch {
		next.Data[k] = v
	}

	if err := s.sessions.Write(ctx, ev.UserID, next); err != nil {
		s.logger.Error("session write failed",
			"user_id", ev.UserID, "step", string(res.Next), "error", err)
		return markdown(replyRetryLater), err
	}
	return markdown(advanceReply(res.Next, res.Patch)), nil
}

// applyFinalize builds the job record from the accumulated session data and
// saves it. The save is awaited so the success reply tells the truth. The
// session clear is issued detached in every case, success or failure, so the
// user is never left stuck in the final step; the staff notification is also
// detached and its failure never reaches the reply path.
func (s *Service) applyFinalize(ctx context.Context, ev Event, state session.State, res flow.Result) (Reply, error) {
	rec := &job.Record{
		ChatID:      ev.ChatID,
		ClientName:  state.Data[flow.FieldClientName],
		VehicleInfo: state.Data[flow.FieldVehicleInfo],
		Notes:       res.Notes,
		Status:      job.StatusScheduled,
	}

	_, saveErr := s.jobs.Save(ctx, rec)

	userID := ev.UserID
	s.detach("session-clear", func(ctx context.Context) error {
		return s.sessions.Clear(ctx, userID)
	})

	if saveErr != nil {
		s.logger.Error("job save failed", "chat_id", ev.ChatID, "error", saveErr)
		return markdown(replyRetryLater), saveErr
	}

	s.metrics.JobsSavedTotal.WithLabelValues(string(rec.Status)).Inc()
	s.logger.Info("appointment recorded",
		"chat_id", ev.ChatID, "job_id", rec.ID)
	s.notifyStaff(staffAppointmentSummary(rec))

	return markdown(replyFinalized), nil
}

// readSession reads the user's session, substituting the safe default on any
// failure. A missing session is the normal fresh case; anything else is a
// store failure that must not block the user, so it is logged and counted.
func (s *Service) readSession(ctx context.Context, userID string) session.State {
	state, err := s.sessions.Read(ctx, userID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			s.logger.Warn("session read failed, using fresh state",
				"user_id", userID, "error", err)
			s.metrics.SessionFallbacksTotal.Inc()
		}
		return session.Fresh()
	}
	if !state.Step.Known() {
		// Leave the corrupt step for the transition to classify as desync.
		return state
	}
	return state
}

// notifyStaff fans out a staff summary without blocking the reply path.
func (s *Service) notifyStaff(summary string) {
	if s.notifier == nil {
		return
	}
	s.detach("staff-notify", func(ctx context.Context) error {
		return s.notifier.NotifyStaff(ctx, summary)
	})
}
