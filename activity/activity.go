// Package activity normalizes raw tool calls into structured, size-bounded
// ToolActivity records.
//
// A record is created when the transport reports a tool-call start and
// mutated in place when the matching result arrives. Results are truncated
// before storage (see truncate.go) so a runaway Bash command or a huge file
// read cannot balloon session memory; the stored preview and the reported
// totals always agree.
package activity

import (
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/kestrel-app/kestrel-core/config"
	"github.com/kestrel-app/kestrel-core/diff"
)

// Tool is the fixed classification of tool names the UI knows how to render.
// Unrecognized names map to ToolOther rather than failing, so new tools in
// the bridge degrade gracefully.
type Tool string

const (
	ToolBash  Tool = "Bash"
	ToolEdit  Tool = "Edit"
	ToolWrite Tool = "Write"
	ToolRead  Tool = "Read"
	ToolGlob  Tool = "Glob"
	ToolGrep  Tool = "Grep"
	ToolOther Tool = "Other"
)

// Classify maps a raw tool name to the fixed enumeration.
func Classify(name string) Tool {
	switch name {
	case "Bash", "Edit", "Write", "Read", "Glob", "Grep":
		return Tool(name)
	default:
		return ToolOther
	}
}

// Verb returns a human-readable verb for the tool type
func (t Tool) Verb() string {
	switch t {
	case ToolRead:
		return "Reading"
	case ToolEdit:
		return "Editing"
	case ToolWrite:
		return "Writing"
	case ToolGlob, ToolGrep:
		return "Searching"
	case ToolBash:
		return "Running"
	default:
		return "Using"
	}
}

// Accent returns the accent group the UI uses to color the activity row.
func (t Tool) Accent() string {
	switch t {
	case ToolBash:
		return "command"
	case ToolEdit, ToolWrite:
		return "edit"
	case ToolRead:
		return "read"
	case ToolGlob, ToolGrep:
		return "search"
	default:
		return "neutral"
	}
}

// State is the lifecycle state of a tool activity.
type State string

const (
	// StatePending is reserved for tools announced by the assistant but not
	// yet started by the bridge. The current bridge only reports starts, so
	// records are born running; renderers must still handle pending.
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Failure reasons recorded on failed activities.
const (
	FailureMissingContent  = "MissingContent"
	FailureDiffUnavailable = "DiffUnavailable"
)

// Input holds the sparse, display-relevant fields extracted from a tool's
// input payload. Fields not applicable to the tool are left empty.
type Input struct {
	Command  string // Bash
	FilePath string // Edit, Write, Read
	Pattern  string // Glob, Grep
}

// Result holds the truncated result of a tool execution. The field groups
// are mutually exclusive: stdout/stderr for Bash, file content for
// Read/Write, diff lines for Edit, filenames for Glob/Grep.
type Result struct {
	Stdout      []string // Bash stdout preview, capped at Limits.PreviewLines
	StdoutTotal int      // Total stdout line count before truncation
	Stderr      string   // Bash stderr, capped at Limits.StderrChars
	ExitCode    *int     // Bash exit code (nil if not reported)

	FileContent []string // Read content preview, capped at Limits.PreviewLines
	FileTotal   int      // Total content line count before truncation

	DiffLines []diff.Line // Edit diff (only on success)

	Filenames  []string // Glob/Grep matches, capped at Limits.MaxFilenames
	FilesTotal int      // Total match count before truncation

	Error string // Error text reported by the bridge
}

// ToolActivity is a structured record of one tool invocation and its result.
// Records are owned by the session that created them, appended in chat order,
// and never reordered or removed.
type ToolActivity struct {
	ID        string // Opaque identity
	ToolUseID string // Transport correlation key for matching results
	RawName   string // Tool name exactly as the bridge reported it
	Tool      Tool
	Input     Input
	Result    Result
	State     State
	Failure   string // Failure reason when State == StateFailed

	StartedAt   time.Time
	CompletedAt time.Time
}

// inputField maps each tool to the payload field its display input comes from.
var inputFields = map[Tool]struct {
	field string
	dst   func(*Input, string)
}{
	ToolBash:  {"command", func(in *Input, v string) { in.Command = v }},
	ToolEdit:  {"file_path", func(in *Input, v string) { in.FilePath = v }},
	ToolWrite: {"file_path", func(in *Input, v string) { in.FilePath = v }},
	ToolRead:  {"file_path", func(in *Input, v string) { in.FilePath = v }},
	ToolGlob:  {"pattern", func(in *Input, v string) { in.Pattern = v }},
	ToolGrep:  {"pattern", func(in *Input, v string) { in.Pattern = v }},
}

// NewRunning creates an activity record for a tool call the bridge just
// reported as started. rawInput is the tool's input JSON; relevant fields are
// extracted sparsely, everything else is ignored.
func NewRunning(toolUseID, name string, rawInput []byte) *ToolActivity {
	a := &ToolActivity{
		ID:        uuid.New().String(),
		ToolUseID: toolUseID,
		RawName:   name,
		Tool:      Classify(name),
		State:     StateRunning,
		StartedAt: time.Now(),
	}

	if len(rawInput) > 0 && gjson.ValidBytes(rawInput) {
		parsed := gjson.ParseBytes(rawInput)
		if cfg, ok := inputFields[a.Tool]; ok {
			if v := parsed.Get(cfg.field); v.Exists() {
				cfg.dst(&a.Input, v.String())
			}
		} else {
			// Unknown tool: best effort, grab a command-ish field for display
			for _, field := range []string{"command", "file_path", "pattern", "query", "url"} {
				if v := parsed.Get(field); v.Exists() {
					a.Input.Command = v.String()
					break
				}
			}
		}
	}

	return a
}

// ContentProvider supplies pre/post file content for Edit activities when the
// result payload does not embed it. Absence of a provider is not an error at
// this level; the activity is just marked failed with MissingContent.
type ContentProvider interface {
	FileContents(path string) (before, after string, err error)
}

// ApplyResult fills in the result of a completed tool call, mutating the
// record in place. The same identity is kept; a new call is a new record.
//
// raw is the tool_result payload from the bridge. limits controls truncation.
// contents may be nil.
func (a *ToolActivity) ApplyResult(raw []byte, limits config.Limits, contents ContentProvider) {
	a.CompletedAt = time.Now()
	a.State = StateCompleted

	var parsed gjson.Result
	if len(raw) > 0 && gjson.ValidBytes(raw) {
		parsed = gjson.ParseBytes(raw)
	}

	if errText := parsed.Get("error"); errText.Exists() && errText.String() != "" {
		a.Result.Error = errText.String()
		a.State = StateFailed
	}

	switch a.Tool {
	case ToolEdit:
		a.applyEditResult(parsed, contents)

	case ToolRead:
		content := parsed.Get("content").String()
		a.Result.FileContent, a.Result.FileTotal = truncateLines(content, limits.PreviewLines)

	case ToolWrite:
		// Nothing to preview; the write either succeeded or carried an error.

	case ToolGlob, ToolGrep:
		var names []string
		parsed.Get("filenames").ForEach(func(_, v gjson.Result) bool {
			names = append(names, v.String())
			return true
		})
		a.Result.Filenames, a.Result.FilesTotal = truncateList(names, limits.MaxFilenames)

	default: // ToolBash and unrecognized tools
		stdout := parsed.Get("stdout").String()
		if stdout == "" {
			stdout = parsed.Get("output").String()
		}
		a.Result.Stdout, a.Result.StdoutTotal = truncateLines(stdout, limits.PreviewLines)
		a.Result.Stderr = truncateChars(parsed.Get("stderr").String(), limits.StderrChars)
		if code := parsed.Get("exit_code"); code.Exists() {
			exit := int(code.Int())
			a.Result.ExitCode = &exit
			if exit != 0 {
				a.State = StateFailed
			}
		}
	}
}

// applyEditResult computes the diff for an Edit activity. Pre/post content
// comes from the payload when embedded, otherwise from the content provider.
// Failed edits never carry a diff.
func (a *ToolActivity) applyEditResult(parsed gjson.Result, contents ContentProvider) {
	if a.State == StateFailed {
		return
	}

	path := a.Input.FilePath
	if path == "" {
		path = parsed.Get("file_path").String()
		a.Input.FilePath = path
	}

	before, after, ok := editContents(parsed, path, contents)
	if !ok {
		a.State = StateFailed
		a.Failure = FailureMissingContent
		return
	}

	lines, err := diff.Compute(before, after)
	if err != nil {
		a.State = StateFailed
		a.Failure = FailureDiffUnavailable
		return
	}
	a.Result.DiffLines = lines
}

// editContents resolves the before/after text for an edit. Payload-embedded
// content wins; the provider is the fallback collaborator.
func editContents(parsed gjson.Result, path string, contents ContentProvider) (before, after string, ok bool) {
	oldContent := parsed.Get("old_content")
	newContent := parsed.Get("new_content")
	if oldContent.Exists() && newContent.Exists() {
		return oldContent.String(), newContent.String(), true
	}

	if path == "" || contents == nil {
		return "", "", false
	}
	before, after, err := contents.FileContents(path)
	if err != nil {
		return "", "", false
	}
	return before, after, true
}

// Summary returns a brief human-readable summary of the activity result,
// suitable for a collapsed row.
func (a *ToolActivity) Summary() string {
	switch {
	case a.State == StateFailed && a.Failure != "":
		return a.Failure
	case a.State == StateFailed && a.Result.Error != "":
		return "error"
	case a.Tool == ToolEdit && len(a.Result.DiffLines) > 0:
		return "applied"
	case a.Tool == ToolRead:
		return countSummary(a.Result.FileTotal, "line")
	case a.Tool == ToolGlob || a.Tool == ToolGrep:
		return countSummary(a.Result.FilesTotal, "file")
	case a.Result.ExitCode != nil && *a.Result.ExitCode == 0:
		return "success"
	}
	return ""
}
