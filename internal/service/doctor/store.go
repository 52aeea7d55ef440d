package doctor

import (
	"context"
	"sync"

	"github.com/tilahungoito/healthydoc/internal/models"
)

// SessionStore holds the running transcript of a consultation.
type SessionStore interface {
	Append(ctx context.Context, sessionID string, msg models.ConversationMessage) error
	History(ctx context.Context, sessionID string) ([]models.ConversationMessage, error)
	Clear(ctx context.Context, sessionID string) error
}

// ReceiptStore keeps generated receipts. Get returns (nil, nil) on a miss so
// callers can distinguish absence from storage failure.
type ReceiptStore interface {
	Put(ctx context.Context, sessionID string, receipt *models.MedicalReceipt) error
	Get(ctx context.Context, sessionID string) (*models.MedicalReceipt, error)
	Delete(ctx context.Context, sessionID string) error
}

type memorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string][]models.ConversationMessage
}

// NewMemorySessionStore returns an in-process transcript store.
func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{sessions: make(map[string][]models.ConversationMessage)}
}

func (s *memorySessionStore) Append(ctx context.Context, sessionID string, msg models.ConversationMessage) error {
	s.mu.Lock()
	s.sessions[sessionID] = append(s.sessions[sessionID], msg)
	s.mu.Unlock()
	return nil
}

func (s *memorySessionStore) History(ctx context.Context, sessionID string) ([]models.ConversationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.sessions[sessionID]
	out := make([]models.ConversationMessage, len(history))
	copy(out, history)
	return out, nil
}

func (s *memorySessionStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

type memoryReceiptStore struct {
	mu       sync.RWMutex
	receipts map[string]*models.MedicalReceipt
}

// NewMemoryReceiptStore returns an in-process receipt store.
func NewMemoryReceiptStore() ReceiptStore {
	return &memoryReceiptStore{receipts: make(map[string]*models.MedicalReceipt)}
}

func (s *memoryReceiptStore) Put(ctx context.Context, sessionID string, receipt *models.MedicalReceipt) error {
	s.mu.Lock()
	s.receipts[sessionID] = receipt
	s.mu.Unlock()
	return nil
}

func (s *memoryReceiptStore) Get(ctx context.Context, sessionID string) (*models.MedicalReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	receipt, ok := s.receipts[sessionID]
	if !ok {
		return nil, nil
	}
	clone := *receipt
	return &clone, nil
}

func (s *memoryReceiptStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.receipts, sessionID)
	s.mu.Unlock()
	return nil
}
