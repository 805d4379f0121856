package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrel-app/kestrel-core/activity"
	"github.com/kestrel-app/kestrel-core/config"
	"github.com/kestrel-app/kestrel-core/logger"
	"github.com/kestrel-app/kestrel-core/permission"
	"github.com/kestrel-app/kestrel-core/transport"
)

// Kind distinguishes assistant sessions from plain terminal sessions.
type Kind string

const (
	KindAssistant Kind = "assistant"
	KindTerminal  Kind = "terminal"
)

// Phase is the session's position in the turn lifecycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseResponding Phase = "responding"
	PhaseCancelling Phase = "cancelling"
)

// Outcome records how the most recent turn ended.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

var (
	// ErrTerminalSession is returned when a turn is started on a terminal
	// session. Terminals carry I/O but never respond.
	ErrTerminalSession = errors.New("terminal sessions do not respond")

	// ErrAlreadyResponding is returned when a turn is started while one is
	// already in flight.
	ErrAlreadyResponding = errors.New("session is already responding")
)

// TurnStats holds the bridge-reported metrics of the last completed turn.
type TurnStats struct {
	Duration time.Duration
	NumTurns int
	CostUSD  float64
}

// Options configures a new session. Zero-value fields get defaults: a fresh
// ID and assistant kind.
type Options struct {
	ID         string
	Kind       Kind
	Title      string
	WorkingDir string
	Limits     config.Limits
	Transport  transport.Transport
	Contents   activity.ContentProvider
}

// Session is one supervised conversation or terminal. All methods are safe
// for concurrent use; in practice events arrive on the coordinator goroutine
// while commands come from callers.
type Session struct {
	id         string
	kind       Kind
	title      string
	workingDir string
	createdAt  time.Time

	limits    config.Limits
	transport transport.Transport
	contents  activity.ContentProvider
	log       *slog.Logger

	mu          sync.Mutex
	phase       Phase
	lastOutcome Outcome
	lastStats   TurnStats
	lastError   string
	activities  []*activity.ToolActivity
	byToolUse   map[string]*activity.ToolActivity
	permissions *permission.Queue
}

// New creates an idle session.
func New(opts Options) *Session {
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	kind := opts.Kind
	if kind == "" {
		kind = KindAssistant
	}
	return &Session{
		id:          id,
		kind:        kind,
		title:       opts.Title,
		workingDir:  opts.WorkingDir,
		createdAt:   time.Now(),
		limits:      opts.Limits,
		transport:   opts.Transport,
		contents:    opts.Contents,
		log:         logger.WithSession(id),
		phase:       PhaseIdle,
		byToolUse:   make(map[string]*activity.ToolActivity),
		permissions: permission.NewQueue(),
	}
}

func (s *Session) ID() string         { return s.id }
func (s *Session) Kind() Kind         { return s.kind }
func (s *Session) Title() string      { return s.title }
func (s *Session) WorkingDir() string { return s.workingDir }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// IsResponding reports whether a turn is in flight, including one being
// cancelled. Terminal sessions always report false.
func (s *Session) IsResponding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase != PhaseIdle
}

// LastOutcome reports how the most recent turn ended.
func (s *Session) LastOutcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOutcome
}

// LastTurnStats reports the metrics of the most recent completed turn.
// Cancelled and failed turns leave the previous stats in place.
func (s *Session) LastTurnStats() TurnStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStats
}

// LastError returns the most recent bridge error text, if any.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Start opens a turn with the given prompt. Terminal sessions reject it, and
// a session with a turn already in flight rejects it.
func (s *Session) Start(prompt string) error {
	if s.kind == KindTerminal {
		return ErrTerminalSession
	}

	s.mu.Lock()
	if s.phase != PhaseIdle {
		s.mu.Unlock()
		return ErrAlreadyResponding
	}
	s.phase = PhaseResponding
	s.lastOutcome = OutcomeNone
	s.lastError = ""
	s.mu.Unlock()

	if err := s.transport.Start(s.id, prompt); err != nil {
		s.mu.Lock()
		s.phase = PhaseIdle
		s.lastOutcome = OutcomeFailed
		s.mu.Unlock()
		return err
	}
	s.log.Debug("turn started")
	return nil
}

// Cancel requests interruption of the in-flight turn. It is a no-op when the
// session is idle or already cancelling; the turn stays open until the bridge
// acknowledges or the response completes on its own.
func (s *Session) Cancel() error {
	if s.kind == KindTerminal {
		return nil
	}

	s.mu.Lock()
	if s.phase != PhaseResponding {
		s.mu.Unlock()
		return nil
	}
	s.phase = PhaseCancelling
	s.mu.Unlock()

	s.log.Debug("cancel requested")
	return s.transport.Cancel(s.id)
}

// HandleEvent ingests one bridge event addressed to this session. Events are
// accepted in every phase; a turn being cancelled still streams tool results
// until the bridge settles it.
func (s *Session) HandleEvent(ev *transport.Event) {
	switch ev.Kind {
	case transport.EventToolStart:
		s.handleToolStart(ev.Payload)
	case transport.EventToolResult:
		s.handleToolResult(ev.Payload)
	case transport.EventPermissionRequest:
		s.handlePermissionRequest(ev.Payload)
	case transport.EventResponseComplete:
		s.handleResponseComplete(ev.Payload)
	case transport.EventCancelAck:
		s.settleTurn(OutcomeCancelled)
	case transport.EventError:
		s.handleError(ev.Payload)
	}
}

func (s *Session) handleToolStart(payload json.RawMessage) {
	var p transport.ToolStartPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ToolUseID == "" {
		s.log.Warn("dropping tool_start with unusable payload", "error", err)
		return
	}

	a := activity.NewRunning(p.ToolUseID, p.ToolName, p.Input)

	s.mu.Lock()
	s.activities = append(s.activities, a)
	s.byToolUse[p.ToolUseID] = a
	s.mu.Unlock()

	s.log.Debug("tool started", "tool", a.Tool, "toolUseID", p.ToolUseID)
}

func (s *Session) handleToolResult(payload json.RawMessage) {
	var p transport.ToolResultPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ToolUseID == "" {
		s.log.Warn("dropping tool_result with unusable payload", "error", err)
		return
	}

	// The record mutation happens under s.mu: Activities() snapshots these
	// same fields from other goroutines.
	s.mu.Lock()
	a, ok := s.byToolUse[p.ToolUseID]
	if !ok {
		s.mu.Unlock()
		s.log.Warn("tool_result for unknown tool use", "toolUseID", p.ToolUseID)
		return
	}
	a.ApplyResult(p.Result, s.limits, s.contents)
	tool, state := a.Tool, a.State
	s.mu.Unlock()

	s.log.Debug("tool finished", "tool", tool, "state", state)
}

func (s *Session) handlePermissionRequest(payload json.RawMessage) {
	req := permission.ParseRequest(payload, s.limits)
	decide := func(d permission.Decision) {
		if err := s.transport.ResolvePermission(s.id, req.ID, string(d)); err != nil {
			s.log.Warn("failed to forward permission decision", "requestID", req.ID, "error", err)
		}
	}

	// Phase check and enqueue share one critical section: a request must
	// land in the queue before a concurrent settleTurn sees idle, or be
	// denied, never queued against an idle session.
	s.mu.Lock()
	inFlight := s.phase != PhaseIdle
	if inFlight {
		s.permissions.Enqueue(req, decide)
	}
	s.mu.Unlock()

	// A session with no turn in flight must never hold pending prompts. A
	// late request for a settled turn is answered immediately with a denial.
	if !inFlight {
		s.log.Debug("denying permission request outside a turn", "requestID", req.ID)
		decide(permission.DecisionDeny)
		return
	}
	s.log.Debug("permission requested", "tool", req.ToolName, "requestID", req.ID)
}

func (s *Session) handleError(payload json.RawMessage) {
	var p transport.ErrorPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		p.Message = "unknown bridge error"
	}

	s.mu.Lock()
	s.lastError = p.Message
	inFlight := s.phase != PhaseIdle
	s.mu.Unlock()

	s.log.Warn("bridge error", "code", p.Code, "message", p.Message)
	if inFlight {
		s.settleTurn(OutcomeFailed)
	}
}

func (s *Session) handleResponseComplete(payload json.RawMessage) {
	var p transport.ResponseCompletePayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			s.log.Warn("unreadable completion payload", "error", err)
		}
	}

	if !s.settleTurn(OutcomeCompleted) {
		return
	}

	s.mu.Lock()
	s.lastStats = TurnStats{
		Duration: time.Duration(p.DurationMs) * time.Millisecond,
		NumTurns: p.NumTurns,
		CostUSD:  p.CostUSD,
	}
	s.mu.Unlock()
	s.log.Debug("turn stats", "durationMs", p.DurationMs, "numTurns", p.NumTurns, "costUSD", p.CostUSD)
}

// settleTurn moves the session to idle and reports whether this call did the
// settling. The first terminal event wins: a completion racing a cancel
// acknowledgment settles the turn, and the loser arrives against an idle
// session and is discarded here.
func (s *Session) settleTurn(outcome Outcome) bool {
	s.mu.Lock()
	if s.phase == PhaseIdle {
		s.mu.Unlock()
		s.log.Debug("discarding terminal event for settled turn", "outcome", outcome)
		return false
	}
	s.phase = PhaseIdle
	s.lastOutcome = outcome
	s.mu.Unlock()

	// Prompts still queued guard tool calls that will never run now.
	if denied := s.permissions.DenyAll(); len(denied) > 0 {
		s.log.Debug("denied stale permission requests", "count", len(denied))
	}
	s.log.Debug("turn settled", "outcome", outcome)
	return true
}

// ResolvePermission applies the user's decision to the current permission
// request and forwards it to the bridge.
func (s *Session) ResolvePermission(decision permission.Decision) (*permission.Request, error) {
	return s.permissions.Resolve(decision)
}

// CurrentPermission returns the permission request being presented, or nil.
func (s *Session) CurrentPermission() *permission.Request {
	return s.permissions.Current()
}

// QueuedPermissions reports how many requests wait behind the current one.
func (s *Session) QueuedPermissions() int {
	return s.permissions.QueuedCount()
}

// Activities returns a snapshot of the activity log in chat order. The
// returned records are copies; mutating them does not affect the session.
func (s *Session) Activities() []activity.ToolActivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]activity.ToolActivity, len(s.activities))
	for i, a := range s.activities {
		out[i] = *a
	}
	return out
}

// ActivityCount reports how many tool activities the session has recorded.
func (s *Session) ActivityCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activities)
}
