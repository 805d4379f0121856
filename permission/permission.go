// Package permission models the approval prompts a session surfaces when a
// tool call needs user consent before it runs.
//
// Each session owns one Queue. Requests wait in arrival order; only the head
// is presented, and resolving it promotes the next. Resolving with nothing
// pending is a caller error, reported with ErrNoActiveRequest.
package permission

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/kestrel-app/kestrel-core/config"
)

// ErrNoActiveRequest is returned when a resolution arrives with no pending
// request to apply it to.
var ErrNoActiveRequest = errors.New("no active permission request")

// Decision is the user's answer to a permission request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
)

// Field is one labeled value from the tool's input, shown in the prompt.
// Order is preserved from the request payload.
type Field struct {
	Label string
	Value string
}

// Request describes one pending approval prompt.
type Request struct {
	ID          string
	ToolName    string
	Description string
	Input       []Field // Ordered input summary, values capped at Limits.ValueChars
	WorkingDir  string
	OutsidePath bool   // The tool would touch paths outside WorkingDir
	Reason      string // Bridge-supplied explanation for why approval is needed
	CreatedAt   time.Time
}

// ParseRequest builds a Request from a permission_request payload. A missing
// request ID gets a fresh one so resolution always has a stable key. Input
// values longer than limits.ValueChars are truncated.
func ParseRequest(raw []byte, limits config.Limits) *Request {
	req := &Request{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
	}

	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return req
	}
	parsed := gjson.ParseBytes(raw)

	if id := parsed.Get("id").String(); id != "" {
		req.ID = id
	}
	req.ToolName = parsed.Get("tool_name").String()
	req.Description = parsed.Get("description").String()
	req.WorkingDir = parsed.Get("working_dir").String()
	req.OutsidePath = parsed.Get("outside_working_dir").Bool()
	req.Reason = parsed.Get("reason").String()

	parsed.Get("input").ForEach(func(key, value gjson.Result) bool {
		req.Input = append(req.Input, Field{
			Label: key.String(),
			Value: capValue(value.String(), limits.ValueChars),
		})
		return true
	})

	return req
}

func capValue(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}

// DecideFunc receives the user's decision for a request. It is invoked
// outside the queue lock, so implementations may call back into the queue.
type DecideFunc func(Decision)

type pending struct {
	req    *Request
	decide DecideFunc
}

// Queue is a per-session FIFO of permission requests.
type Queue struct {
	mu    sync.Mutex
	items []pending
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends a request. decide may be nil for requests with no
// transport-side callback.
func (q *Queue) Enqueue(req *Request, decide DecideFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, pending{req: req, decide: decide})
}

// Current returns the request being presented, or nil when the queue is
// empty. Only the head is ever presented.
func (q *Queue) Current() *Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0].req
}

// QueuedCount reports how many requests are waiting behind the current one.
func (q *Queue) QueuedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return 0
	}
	return len(q.items) - 1
}

// Len reports the total number of requests in the queue, including the
// current one.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Resolve applies the decision to the current request, removes it, and
// promotes the next in arrival order. It returns the resolved request, or
// ErrNoActiveRequest when the queue is empty.
func (q *Queue) Resolve(decision Decision) (*Request, error) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return nil, ErrNoActiveRequest
	}
	head := q.items[0]
	q.items = q.items[1:]
	q.mu.Unlock()

	if head.decide != nil {
		head.decide(decision)
	}
	return head.req, nil
}

// DenyAll drains the queue, denying every request in arrival order, and
// returns the denied requests. Used when a session stops responding with
// prompts still pending.
func (q *Queue) DenyAll() []*Request {
	q.mu.Lock()
	drained := q.items
	q.items = nil
	q.mu.Unlock()

	denied := make([]*Request, 0, len(drained))
	for _, p := range drained {
		if p.decide != nil {
			p.decide(DecisionDeny)
		}
		denied = append(denied, p.req)
	}
	return denied
}
