package models

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrTaskSealed is returned when a turn is appended to a task whose final answer
// has already been synthesized.
var ErrTaskSealed = errors.New("task is sealed: final answer already synthesized")

// Turn roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Turn is one entry in a task's conversation context.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ReplyTo   string    `json:"reply_to,omitempty"` // ID of the request this turn answers
	Timestamp time.Time `json:"timestamp"`
}

// Document is a piece of caller-supplied reference material available to
// document-search nodes.
type Document struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Task is the root unit of work: one user request and its conversation context.
// The context is appended to only by the phase controller and by the caller
// answering an information request.
type Task struct {
	ID        string     `json:"id"`
	Request   string     `json:"request"`
	Context   []Turn     `json:"context,omitempty"`
	Documents []Document `json:"documents,omitempty"`
	Sealed    bool       `json:"sealed,omitempty"`

	mu sync.Mutex
}

// NewTask creates a task for the given request with an optional prior context.
func NewTask(id, request string, history []Turn) *Task {
	ctx := make([]Turn, len(history))
	copy(ctx, history)
	return &Task{ID: id, Request: request, Context: ctx}
}

// Validate checks if the task has all required fields
func (t *Task) Validate() error {
	if t.ID == "" {
		return errors.New("task id is required")
	}
	if strings.TrimSpace(t.Request) == "" {
		return errors.New("task request is required")
	}
	return nil
}

// Append adds a turn to the conversation context.
func (t *Task) Append(turn Turn) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Sealed {
		return ErrTaskSealed
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	t.Context = append(t.Context, turn)
	return nil
}

// History returns a snapshot of the conversation context.
func (t *Task) History() []Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Turn, len(t.Context))
	copy(out, t.Context)
	return out
}

// Seal marks the task immutable.
func (t *Task) Seal() {
	t.mu.Lock()
	t.Sealed = true
	t.mu.Unlock()
}

// IsSealed reports whether Seal has been called.
func (t *Task) IsSealed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Sealed
}

// HasAnswer reports whether the context holds a user turn answering the given
// request at or after index from.
func (t *Task) HasAnswer(requestID string, from int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if from < 0 {
		from = 0
	}
	for i := from; i < len(t.Context); i++ {
		turn := t.Context[i]
		if turn.Role == RoleUser && turn.ReplyTo == requestID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the task, safe to persist or hand to another run.
func (t *Task) Clone() *Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := &Task{ID: t.ID, Request: t.Request, Sealed: t.Sealed}
	c.Context = append([]Turn(nil), t.Context...)
	c.Documents = append([]Document(nil), t.Documents...)
	return c
}
