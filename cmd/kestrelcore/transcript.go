package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/kestrel-app/kestrel-core/logger"
	"github.com/kestrel-app/kestrel-core/transport"
)

// transcriptWriter appends every inbound event, as JSON lines, to one log
// file per session. Write failures are logged and the file given up on; a
// transcript is a debugging aid, never worth stalling the event stream for.
type transcriptWriter struct {
	mu    sync.Mutex
	files map[string]*os.File
}

func newTranscriptWriter() *transcriptWriter {
	return &transcriptWriter{files: make(map[string]*os.File)}
}

func (t *transcriptWriter) record(ev *transport.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.files[ev.SessionID]
	if !ok {
		path, err := logger.TranscriptLogPath(ev.SessionID)
		if err != nil {
			logger.Get().Warn("transcript path unavailable", "sessionID", ev.SessionID, "error", err)
			return
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			logger.Get().Warn("transcript dir unavailable", "path", path, "error", err)
			return
		}
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logger.Get().Warn("transcript open failed", "path", path, "error", err)
			return
		}
		t.files[ev.SessionID] = f
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		logger.Get().Warn("transcript write failed", "sessionID", ev.SessionID, "error", err)
		f.Close()
		delete(t.files, ev.SessionID)
	}
}

func (t *transcriptWriter) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, f := range t.files {
		f.Close()
		delete(t.files, id)
	}
}
