// Package memory holds sessions and message transcripts for the lifetime of
// the process. Nothing survives a restart; cross-restart persistence is a
// deliberate non-goal of the service.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/docsight/docsight/internal/domain"
)

// Store is an in-memory SessionRepository + MessageRepository. All reads
// return copies: callers only ever see committed snapshots, never the
// orchestrator's live message.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*domain.Session
	messages map[uuid.UUID][]*domain.Message
	inFlight map[uuid.UUID]bool
}

func New() *Store {
	return &Store{
		sessions: make(map[uuid.UUID]*domain.Session),
		messages: make(map[uuid.UUID][]*domain.Message),
		inFlight: make(map[uuid.UUID]bool),
	}
}

func (s *Store) Sessions() domain.SessionRepository { return (*sessionRepo)(s) }
func (s *Store) Messages() domain.MessageRepository { return (*messageRepo)(s) }

type sessionRepo Store

func (r *sessionRepo) Create(_ context.Context, sess *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sess.ID]; exists {
		return fmt.Errorf("memory.sessionRepo.Create: %w", domain.ErrConflict)
	}

	cp := *sess
	r.sessions[sess.ID] = &cp
	return nil
}

func (r *sessionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("memory.sessionRepo.GetByID: %w", domain.ErrNotFound)
	}

	cp := *sess
	return &cp, nil
}

// BeginTurn gates one in-flight turn per session: no queueing, and a new
// turn never cancels a running one.
func (r *sessionRepo) BeginTurn(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("memory.sessionRepo.BeginTurn: %w", domain.ErrNotFound)
	}
	if r.inFlight[id] {
		return fmt.Errorf("memory.sessionRepo.BeginTurn: %w", domain.ErrTurnInFlight)
	}

	r.inFlight[id] = true
	return nil
}

func (r *sessionRepo) EndTurn(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("memory.sessionRepo.EndTurn: %w", domain.ErrNotFound)
	}

	delete(r.inFlight, id)
	return nil
}

type messageRepo Store

func (r *messageRepo) Append(_ context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[m.SessionID]; !ok {
		return fmt.Errorf("memory.messageRepo.Append: %w", domain.ErrNotFound)
	}

	r.messages[m.SessionID] = append(r.messages[m.SessionID], copyMessage(m))
	return nil
}

func (r *messageRepo) Update(_ context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := r.messages[m.SessionID]
	for i, existing := range msgs {
		if existing.ID == m.ID {
			msgs[i] = copyMessage(m)
			return nil
		}
	}

	return fmt.Errorf("memory.messageRepo.Update: %w", domain.ErrNotFound)
}

func (r *messageRepo) GetByID(_ context.Context, sessionID, id uuid.UUID) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.messages[sessionID] {
		if m.ID == id {
			return copyMessage(m), nil
		}
	}

	return nil, fmt.Errorf("memory.messageRepo.GetByID: %w", domain.ErrNotFound)
}

func (r *messageRepo) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("memory.messageRepo.ListBySession: %w", domain.ErrNotFound)
	}

	msgs := r.messages[sessionID]
	out := make([]*domain.Message, len(msgs))
	for i, m := range msgs {
		out[i] = copyMessage(m)
	}
	return out, nil
}

// copyMessage deep-copies the mutable parts so a stored snapshot cannot be
// changed through a reference the caller still holds.
func copyMessage(m *domain.Message) *domain.Message {
	cp := *m

	if m.PageRefs != nil {
		cp.PageRefs = append([]int(nil), m.PageRefs...)
	}
	if m.Steps != nil {
		cp.Steps = append([]domain.StepRecord(nil), m.Steps...)
	}
	if m.Insight != nil {
		insight := *m.Insight
		insight.Items = append([]domain.InsightItem(nil), m.Insight.Items...)
		cp.Insight = &insight
	}

	return &cp
}
