package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kestrel-app/kestrel-core/manager"
	"github.com/kestrel-app/kestrel-core/session"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newVersionCmd()
	cmd.SetOut(&out)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "kestrelcore") || !strings.Contains(got, version) {
		t.Errorf("output = %q", got)
	}
}

func TestWriteSessionsTable(t *testing.T) {
	infos := []manager.SessionInfo{
		{ID: "abcdef123456", Title: "build fix", Kind: session.KindAssistant,
			Phase: session.PhaseResponding, Activities: 3, Permissions: 1, Selected: true},
		{ID: "fedcba654321", Title: "scratch", Kind: session.KindTerminal,
			Phase: session.PhaseIdle},
	}

	var out bytes.Buffer
	writeSessionsTable(&out, infos)
	got := out.String()

	if !strings.Contains(got, "* abcdef12") {
		t.Errorf("selected session not marked:\n%s", got)
	}
	if !strings.Contains(got, "fedcba65") || strings.Contains(got, "fedcba654321") {
		t.Errorf("session IDs not shortened:\n%s", got)
	}
	if !strings.Contains(got, "responding") || !strings.Contains(got, "terminal") {
		t.Errorf("phase/kind columns missing:\n%s", got)
	}
}

func TestWriteSessionsTable_Empty(t *testing.T) {
	var out bytes.Buffer
	writeSessionsTable(&out, nil)
	if !strings.Contains(out.String(), "(no sessions)") {
		t.Errorf("empty placeholder missing:\n%s", out.String())
	}
}
