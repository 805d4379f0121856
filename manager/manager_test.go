package manager

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/kestrel-app/kestrel-core/config"
	"github.com/kestrel-app/kestrel-core/session"
	"github.com/kestrel-app/kestrel-core/transport"
)

type fakeTransport struct{}

func (fakeTransport) Start(sessionID, prompt string) error { return nil }
func (fakeTransport) Cancel(sessionID string) error        { return nil }
func (fakeTransport) ResolvePermission(sessionID, requestID, decision string) error {
	return nil
}

func newTestManager(t *testing.T) *SessionManager {
	t.Helper()
	return NewSessionManager(config.Default(), fakeTransport{}, nil)
}

func TestNewSession_Registration(t *testing.T) {
	sm := newTestManager(t)

	s1 := sm.NewSession("first", "/tmp/a")
	s2 := sm.NewTerminalSession("term", "/tmp/b")

	if sm.Count() != 2 {
		t.Errorf("count = %d, want 2", sm.Count())
	}
	if s1.Kind() != session.KindAssistant || s2.Kind() != session.KindTerminal {
		t.Errorf("kinds = %q, %q", s1.Kind(), s2.Kind())
	}

	got, err := sm.Get(s1.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != s1 {
		t.Error("Get returned a different session")
	}
}

func TestGet_Unknown(t *testing.T) {
	sm := newTestManager(t)
	if _, err := sm.Get("nope"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("err = %v, want ErrUnknownSession", err)
	}
}

func TestSessions_CreationOrder(t *testing.T) {
	sm := newTestManager(t)
	ids := []string{
		sm.NewSession("a", "").ID(),
		sm.NewSession("b", "").ID(),
		sm.NewSession("c", "").ID(),
	}

	all := sm.Sessions()
	if len(all) != 3 {
		t.Fatalf("got %d sessions", len(all))
	}
	for i, s := range all {
		if s.ID() != ids[i] {
			t.Errorf("position %d = %s, want %s", i, s.ID(), ids[i])
		}
	}

	// Closing the middle one keeps the rest in order.
	if err := sm.CloseSession(ids[1]); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	all = sm.Sessions()
	if len(all) != 2 || all[0].ID() != ids[0] || all[1].ID() != ids[2] {
		t.Errorf("order after close = %v", []string{all[0].ID(), all[1].ID()})
	}
}

func TestSelect(t *testing.T) {
	sm := newTestManager(t)
	s := sm.NewSession("a", "")

	if sm.Selected() != nil {
		t.Error("fresh manager should have no selection")
	}
	if err := sm.Select(s.ID()); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got := sm.Selected(); got != s {
		t.Errorf("selected = %v", got)
	}
	if err := sm.Select("nope"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("err = %v, want ErrUnknownSession", err)
	}
}

func TestCloseSession_ClearsSelection(t *testing.T) {
	sm := newTestManager(t)
	s := sm.NewSession("a", "")
	sm.Select(s.ID())

	if err := sm.CloseSession(s.ID()); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if sm.Selected() != nil {
		t.Error("selection must be cleared with the close")
	}
	if _, err := sm.Get(s.ID()); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("closed session still reachable: %v", err)
	}
}

func TestCloseSession_SelectionFallsBackToPrevious(t *testing.T) {
	sm := newTestManager(t)
	first := sm.NewSession("first", "")
	second := sm.NewSession("second", "")
	sm.Select(second.ID())

	if err := sm.CloseSession(second.ID()); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if got := sm.Selected(); got != first {
		t.Errorf("selection after close = %v, want the previous session", got)
	}
}

func TestCloseSession_OtherSelectionSurvives(t *testing.T) {
	sm := newTestManager(t)
	keep := sm.NewSession("keep", "")
	gone := sm.NewSession("gone", "")
	sm.Select(keep.ID())

	sm.CloseSession(gone.ID())

	if got := sm.Selected(); got != keep {
		t.Errorf("selection changed: %v", got)
	}
}

func TestCloseSession_Unknown(t *testing.T) {
	sm := newTestManager(t)
	if err := sm.CloseSession("nope"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("err = %v, want ErrUnknownSession", err)
	}
}

func TestRoute(t *testing.T) {
	sm := newTestManager(t)
	s := sm.NewSession("a", "")
	s.Start("go")

	ev := &transport.Event{
		SessionID: s.ID(),
		Kind:      transport.EventToolStart,
		Payload:   json.RawMessage(`{"toolUseId":"tu-1","toolName":"Bash","input":{"command":"ls"}}`),
	}
	if err := sm.Route(ev); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if got := s.ActivityCount(); got != 1 {
		t.Errorf("activity count = %d, want 1", got)
	}
}

func TestRoute_SessionOpenRegistersSession(t *testing.T) {
	sm := newTestManager(t)

	open := &transport.Event{
		SessionID: "bridge-sess-1",
		Kind:      transport.EventSessionOpen,
		Payload:   json.RawMessage(`{"kind":"assistant","title":"build fix","workingDir":"/tmp/proj"}`),
	}
	if err := sm.Route(open); err != nil {
		t.Fatalf("Route(session_open): %v", err)
	}

	s, err := sm.Get("bridge-sess-1")
	if err != nil {
		t.Fatalf("announced session not registered: %v", err)
	}
	if s.Kind() != session.KindAssistant || s.Title() != "build fix" || s.WorkingDir() != "/tmp/proj" {
		t.Errorf("session = %q %q %q", s.Kind(), s.Title(), s.WorkingDir())
	}

	// Subsequent events reach the announced session.
	s.Start("go")
	toolStart := &transport.Event{
		SessionID: "bridge-sess-1",
		Kind:      transport.EventToolStart,
		Payload:   json.RawMessage(`{"toolUseId":"tu-1","toolName":"Bash","input":{"command":"make"}}`),
	}
	if err := sm.Route(toolStart); err != nil {
		t.Fatalf("Route(tool_start): %v", err)
	}
	if got := s.ActivityCount(); got != 1 {
		t.Errorf("activity count = %d, want 1", got)
	}
}

func TestRoute_SessionOpenTerminalKind(t *testing.T) {
	sm := newTestManager(t)

	sm.Route(&transport.Event{
		SessionID: "term-1",
		Kind:      transport.EventSessionOpen,
		Payload:   json.RawMessage(`{"kind":"terminal","title":"scratch"}`),
	})

	s, err := sm.Get("term-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Kind() != session.KindTerminal {
		t.Errorf("kind = %q, want terminal", s.Kind())
	}
}

func TestRoute_RepeatedSessionOpenIgnored(t *testing.T) {
	sm := newTestManager(t)

	open := &transport.Event{SessionID: "sess-1", Kind: transport.EventSessionOpen}
	if err := sm.Route(open); err != nil {
		t.Fatalf("first announce: %v", err)
	}
	if err := sm.Route(open); err != nil {
		t.Fatalf("repeated announce: %v", err)
	}
	if sm.Count() != 1 {
		t.Errorf("count = %d, want 1", sm.Count())
	}
}

func TestRoute_SessionClose(t *testing.T) {
	sm := newTestManager(t)
	sm.Route(&transport.Event{SessionID: "sess-1", Kind: transport.EventSessionOpen})

	if err := sm.Route(&transport.Event{SessionID: "sess-1", Kind: transport.EventSessionClose}); err != nil {
		t.Fatalf("Route(session_close): %v", err)
	}
	if _, err := sm.Get("sess-1"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("closed session still reachable: %v", err)
	}
}

func TestRoute_SessionOpenMalformedPayload(t *testing.T) {
	sm := newTestManager(t)

	err := sm.Route(&transport.Event{
		SessionID: "sess-1",
		Kind:      transport.EventSessionOpen,
		Payload:   json.RawMessage(`{broken`),
	})
	if !errors.Is(err, transport.ErrMalformedEvent) {
		t.Errorf("err = %v, want ErrMalformedEvent", err)
	}
	if sm.Count() != 0 {
		t.Errorf("malformed announce registered a session")
	}
}

func TestRoute_UnknownSession(t *testing.T) {
	sm := newTestManager(t)
	ev := &transport.Event{SessionID: "nope", Kind: transport.EventToolStart}
	if err := sm.Route(ev); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("err = %v, want ErrUnknownSession", err)
	}
}

func TestSessionInfos(t *testing.T) {
	sm := newTestManager(t)
	s1 := sm.NewSession("alpha", "/tmp/a")
	sm.NewTerminalSession("beta", "/tmp/b")
	sm.Select(s1.ID())
	s1.Start("go")

	infos := sm.SessionInfos()
	if len(infos) != 2 {
		t.Fatalf("got %d infos", len(infos))
	}
	if !infos[0].Selected || infos[1].Selected {
		t.Error("selected flag on wrong session")
	}
	if infos[0].Phase != session.PhaseResponding {
		t.Errorf("phase = %q", infos[0].Phase)
	}
	if infos[1].Kind != session.KindTerminal {
		t.Errorf("kind = %q", infos[1].Kind)
	}
}
