package controller

import (
	"context"
	"sync"
	"time"

	"github.com/harrison/agentflow/internal/models"
)

// Continuation is everything needed to resume a parked run. It is keyed by
// Token and consumed on successful resume.
type Continuation struct {
	Token          string                      `json:"token"`
	Kind           models.SuspensionKind       `json:"kind"`
	Phase          models.Phase                `json:"phase"`
	Task           *models.Task                `json:"task"`
	Classification *models.Classification      `json:"classification,omitempty"`
	Feasibility    *models.FeasibilityVerdict  `json:"feasibility,omitempty"`
	Plan           *models.Plan                `json:"plan,omitempty"`
	Information    *models.InformationRequest  `json:"information,omitempty"`
	Confirmation   *models.ConfirmationRequest `json:"confirmation,omitempty"`
	Clarifications int                         `json:"clarifications"`
	StartedAt      time.Time                   `json:"started_at"`
	CreatedAt      time.Time                   `json:"created_at"`
}

// Suspension renders the continuation as the value returned to the caller.
func (c *Continuation) Suspension() *models.Suspension {
	s := &models.Suspension{
		Token:        c.Token,
		Kind:         c.Kind,
		Information:  c.Information,
		Confirmation: c.Confirmation,
	}
	if c.Task != nil {
		s.TaskID = c.Task.ID
	}
	return s
}

// ContinuationStore persists continuations. Load and Delete return an error
// wrapping ErrUnknownToken when the token does not exist; Delete is how a
// resume claims a token, so only one caller may succeed.
type ContinuationStore interface {
	Save(ctx context.Context, c *Continuation) error
	Load(ctx context.Context, token string) (*Continuation, error)
	Delete(ctx context.Context, token string) error
}

// MemoryStore is an in-process ContinuationStore.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*Continuation
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Continuation)}
}

// Save implements ContinuationStore.
func (m *MemoryStore) Save(ctx context.Context, c *Continuation) error {
	cp := *c
	if c.Task != nil {
		cp.Task = c.Task.Clone()
	}
	cp.Plan = c.Plan.Clone()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[c.Token] = &cp
	return nil
}

// Load implements ContinuationStore.
func (m *MemoryStore) Load(ctx context.Context, token string) (*Continuation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[token]
	if !ok {
		return nil, unknownToken(token)
	}
	cp := *c
	if c.Task != nil {
		cp.Task = c.Task.Clone()
	}
	cp.Plan = c.Plan.Clone()
	return &cp, nil
}

// Delete implements ContinuationStore.
func (m *MemoryStore) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[token]; !ok {
		return unknownToken(token)
	}
	delete(m.items, token)
	return nil
}

// Len returns the number of parked runs.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
