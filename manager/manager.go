// Package manager owns the session registry, the selection, and the single
// coordination goroutine that feeds bridge events to sessions.
package manager

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kestrel-app/kestrel-core/activity"
	"github.com/kestrel-app/kestrel-core/config"
	"github.com/kestrel-app/kestrel-core/logger"
	"github.com/kestrel-app/kestrel-core/session"
	"github.com/kestrel-app/kestrel-core/transport"
)

// ErrUnknownSession is returned when an operation targets a session ID that
// is not registered (never existed or already closed).
var ErrUnknownSession = errors.New("unknown session")

// SessionInfo is a read-only snapshot of one registered session.
type SessionInfo struct {
	ID          string
	Kind        session.Kind
	Title       string
	WorkingDir  string
	Phase       session.Phase
	Activities  int
	Permissions int // Total pending permission requests
	CreatedAt   time.Time
	Selected    bool
}

// SessionManager is an ordered registry of sessions plus the selection.
// Sessions keep creation order; the selection is by ID so a stale pointer
// can never outlive its session.
type SessionManager struct {
	cfg       *config.Config
	transport transport.Transport
	contents  activity.ContentProvider

	mu       sync.RWMutex
	order    []string
	sessions map[string]*session.Session
	selected string // session ID, "" when nothing is selected
}

// NewSessionManager creates an empty registry. tr is handed to every session
// it creates; contents may be nil.
func NewSessionManager(cfg *config.Config, tr transport.Transport, contents activity.ContentProvider) *SessionManager {
	return &SessionManager{
		cfg:       cfg,
		transport: tr,
		contents:  contents,
		sessions:  make(map[string]*session.Session),
	}
}

// NewSession registers a new assistant session and returns it.
func (sm *SessionManager) NewSession(title, workingDir string) *session.Session {
	return sm.add("", session.KindAssistant, title, workingDir)
}

// NewTerminalSession registers a new terminal session and returns it.
func (sm *SessionManager) NewTerminalSession(title, workingDir string) *session.Session {
	return sm.add("", session.KindTerminal, title, workingDir)
}

// add registers a session. A non-empty id means the bridge assigned it.
func (sm *SessionManager) add(id string, kind session.Kind, title, workingDir string) *session.Session {
	s := session.New(session.Options{
		ID:         id,
		Kind:       kind,
		Title:      title,
		WorkingDir: workingDir,
		Limits:     sm.cfg.GetLimits(),
		Transport:  sm.transport,
		Contents:   sm.contents,
	})

	sm.mu.Lock()
	sm.order = append(sm.order, s.ID())
	sm.sessions[s.ID()] = s
	sm.mu.Unlock()

	logger.WithComponent("manager").Debug("session registered", "sessionID", s.ID(), "kind", kind)
	return s
}

// Get returns the session with the given ID.
func (sm *SessionManager) Get(id string) (*session.Session, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return s, nil
}

// Sessions returns all registered sessions in creation order.
func (sm *SessionManager) Sessions() []*session.Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]*session.Session, 0, len(sm.order))
	for _, id := range sm.order {
		out = append(out, sm.sessions[id])
	}
	return out
}

// SessionInfos returns snapshots of all sessions in creation order.
func (sm *SessionManager) SessionInfos() []SessionInfo {
	sm.mu.RLock()
	order := append([]string(nil), sm.order...)
	selected := sm.selected
	byID := make(map[string]*session.Session, len(sm.sessions))
	for id, s := range sm.sessions {
		byID[id] = s
	}
	sm.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(order))
	for _, id := range order {
		s := byID[id]
		pending := 0
		if s.CurrentPermission() != nil {
			pending = 1 + s.QueuedPermissions()
		}
		infos = append(infos, SessionInfo{
			ID:          s.ID(),
			Kind:        s.Kind(),
			Title:       s.Title(),
			WorkingDir:  s.WorkingDir(),
			Phase:       s.Phase(),
			Activities:  s.ActivityCount(),
			Permissions: pending,
			CreatedAt:   s.CreatedAt(),
			Selected:    id == selected,
		})
	}
	return infos
}

// Select makes the given session the selected one.
func (sm *SessionManager) Select(id string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, ok := sm.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	sm.selected = id
	return nil
}

// Selected returns the selected session, or nil when nothing is selected.
func (sm *SessionManager) Selected() *session.Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if sm.selected == "" {
		return nil
	}
	return sm.sessions[sm.selected]
}

// CloseSession removes a session from the registry. If it was selected, the
// selection moves to the previous session in creation order, or clears when
// none remains. Both happen in the same critical section, so no caller can
// ever observe a selection pointing at a closed session.
func (sm *SessionManager) CloseSession(id string) error {
	sm.mu.Lock()
	if _, ok := sm.sessions[id]; !ok {
		sm.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	delete(sm.sessions, id)
	idx := -1
	for i, existing := range sm.order {
		if existing == id {
			idx = i
			sm.order = append(sm.order[:i], sm.order[i+1:]...)
			break
		}
	}
	if sm.selected == id {
		sm.selected = ""
		if idx > 0 {
			sm.selected = sm.order[idx-1]
		}
	}
	sm.mu.Unlock()

	logger.WithComponent("manager").Debug("session closed", "sessionID", id)
	return nil
}

// Count reports how many sessions are registered.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.order)
}

// Route delivers one event to its target session. Session lifecycle
// announcements from the bridge are handled here: session_open registers the
// session under the bridge-assigned ID, session_close removes it. Events for
// unknown sessions are an error; a session closed between arrival and
// routing is indistinguishable from one that never existed.
func (sm *SessionManager) Route(ev *transport.Event) error {
	switch ev.Kind {
	case transport.EventSessionOpen:
		return sm.openAnnounced(ev)
	case transport.EventSessionClose:
		return sm.CloseSession(ev.SessionID)
	}

	s, err := sm.Get(ev.SessionID)
	if err != nil {
		return err
	}
	s.HandleEvent(ev)
	return nil
}

// openAnnounced registers a bridge-announced session. A repeated announce
// for a known ID is a reconnect artifact and ignored.
func (sm *SessionManager) openAnnounced(ev *transport.Event) error {
	if _, err := sm.Get(ev.SessionID); err == nil {
		logger.WithComponent("manager").Debug("ignoring repeated session announce", "sessionID", ev.SessionID)
		return nil
	}

	var p transport.SessionOpenPayload
	if len(ev.Payload) > 0 {
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("%w: session_open payload: %v", transport.ErrMalformedEvent, err)
		}
	}

	kind := session.KindAssistant
	if p.Kind == string(session.KindTerminal) {
		kind = session.KindTerminal
	}
	sm.add(ev.SessionID, kind, p.Title, p.WorkingDir)
	return nil
}
