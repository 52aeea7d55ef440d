package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/tilahungoito/healthydoc/internal/models"
	"github.com/tilahungoito/healthydoc/internal/redis"
	"github.com/tilahungoito/healthydoc/internal/service/doctor"
)

// ErrSessionNotFound covers both unknown sessions and sessions owned by a
// different user.
var ErrSessionNotFound = errors.New("session not found")

// DispatcherConfig sizes the worker pool and job queue.
type DispatcherConfig struct {
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int
	WorkerIdleTimeout time.Duration
}

func (cfg DispatcherConfig) withDefaults() DispatcherConfig {
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = 2
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		cfg.MaxWorkers = cfg.MinWorkers * 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return cfg
}

// Manager routes consultation work through the dispatcher so each user's
// turns are processed fairly and serially, and tracks session ownership.
type Manager struct {
	doctor     *doctor.Service
	dispatcher *Dispatcher
	sessions   *sessionCache
	cache      *stateRedis
}

func NewManager(doc *doctor.Service, cfg DispatcherConfig, cache *redis.Client) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		doctor:   doc,
		sessions: newSessionCache(),
		cache:    newStateCache(cache),
	}
	m.dispatcher = NewDispatcher(cfg.MinWorkers, cfg.MaxWorkers, cfg.QueueSize, m, cfg.WorkerIdleTimeout)
	m.cache.startListener(func(inv invalidateMessage) {
		debugLog("[manager] invalidation for session %s", inv.SessionID)
		m.sessions.drop(inv.SessionID)
	})
	return m
}

// StartConsultation opens a new session for the user.
func (m *Manager) StartConsultation(ctx context.Context, userID int64) (*doctor.StartResult, error) {
	resultCh := make(chan jobReturn, 1)
	job := Job{Type: Start, StartTask: startTask{
		req:      StartRequest{Context: ctx, UserID: userID},
		resultCh: resultCh,
	}}
	if err := m.dispatcher.Submit(job); err != nil {
		return nil, err
	}
	select {
	case ret := <-resultCh:
		return ret.start, ret.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Consult runs one chat turn for a session the user owns.
func (m *Manager) Consult(ctx context.Context, req ConsultRequest) (*doctor.ChatResult, error) {
	if err := m.authorize(req.UserID, req.SessionID); err != nil {
		return nil, err
	}
	req.Context = ctx
	resultCh := make(chan jobReturn, 1)
	job := Job{Type: Consult, ConsultTask: consultTask{req: req, resultCh: resultCh}}
	if err := m.dispatcher.Submit(job); err != nil {
		return nil, err
	}
	select {
	case ret := <-resultCh:
		return ret.consult, ret.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Receipt fetches or generates the receipt for a session the user owns.
func (m *Manager) Receipt(ctx context.Context, req ReceiptRequest) (*models.MedicalReceipt, error) {
	if err := m.authorize(req.UserID, req.SessionID); err != nil {
		return nil, err
	}
	req.Context = ctx
	resultCh := make(chan jobReturn, 1)
	job := Job{Type: Receipt, ReceiptTask: receiptTask{req: req, resultCh: resultCh}}
	if err := m.dispatcher.Submit(job); err != nil {
		return nil, err
	}
	select {
	case ret := <-resultCh:
		return ret.receipt, ret.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EndConsultation clears the transcript. The session stays registered so its
// receipt remains retrievable.
func (m *Manager) EndConsultation(ctx context.Context, userID int64, sessionID string) error {
	if err := m.authorize(userID, sessionID); err != nil {
		return err
	}
	return m.doctor.End(ctx, sessionID)
}

// ResetUser drops every session the user owns, including receipts, and
// cancels any queued work.
func (m *Manager) ResetUser(ctx context.Context, userID int64) {
	m.dispatcher.CancelUser(userID)
	for _, sessionID := range m.sessions.dropUser(userID) {
		if err := m.doctor.Forget(ctx, sessionID); err != nil {
			log.Printf("forget session %s: %v", sessionID, err)
		}
		m.cache.invalidateMeta(sessionID)
		m.cache.publishInvalidation(invalidateMessage{UserID: userID, SessionID: sessionID})
	}
}

// authorize checks session ownership against the local cache, then redis.
// A session unknown to both is adopted by the caller: ids are unguessable
// and memory-only deployments lose the registry on restart.
func (m *Manager) authorize(userID int64, sessionID string) error {
	if sessionID == "" {
		return ErrSessionNotFound
	}
	if meta, ok := m.sessions.get(sessionID); ok {
		if meta.UserID != userID {
			return ErrSessionNotFound
		}
		return nil
	}
	if meta, ok := m.cache.loadMeta(sessionID); ok {
		if meta.UserID != userID {
			return ErrSessionNotFound
		}
		m.sessions.put(sessionID, meta)
		return nil
	}
	m.register(sessionID, sessionMeta{UserID: userID, StartedAt: time.Now().UTC()})
	return nil
}

func (m *Manager) register(sessionID string, meta sessionMeta) {
	m.sessions.put(sessionID, meta)
	m.cache.cacheMeta(sessionID, meta)
}

func (m *Manager) handleStart(task startTask) {
	ctx := task.req.Context
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := m.doctor.Start(ctx)
	if err == nil {
		m.register(result.SessionID, sessionMeta{
			UserID:    task.req.UserID,
			StartedAt: result.Timestamp,
		})
	}
	task.resultCh <- jobReturn{start: result, err: err}
}

func (m *Manager) handleConsult(task consultTask) {
	req := task.req
	ctx := req.Context
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := m.doctor.Chat(ctx, doctor.ChatRequest{
		SessionID: req.SessionID,
		Message:   req.Message,
		Language:  req.Language,
	})
	if err == nil {
		if meta, ok := m.sessions.get(req.SessionID); ok && meta.Language != string(result.Language) {
			meta.Language = string(result.Language)
			m.register(req.SessionID, meta)
		}
	}
	task.resultCh <- jobReturn{consult: result, err: err}
}

func (m *Manager) handleReceipt(task receiptTask) {
	req := task.req
	ctx := req.Context
	if ctx == nil {
		ctx = context.Background()
	}
	receipt, err := m.doctor.Receipt(ctx, req.SessionID, req.Posted)
	task.resultCh <- jobReturn{receipt: receipt, err: err}
}
