package doctor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tilahungoito/healthydoc/internal/models"
	"github.com/tilahungoito/healthydoc/internal/redis"
)

const (
	contextKeyPrefix = "doctor:context:"
	receiptKeyPrefix = "doctor:receipt:"

	contextTTL = 2 * time.Hour
	receiptTTL = 24 * time.Hour
)

type redisSessionStore struct {
	cache *redis.Client
}

// NewRedisSessionStore keeps transcripts in redis so consultations survive
// process restarts. Append is read-modify-write; the worker dispatcher
// serializes jobs per user, which keeps it race free.
func NewRedisSessionStore(cache *redis.Client) SessionStore {
	return &redisSessionStore{cache: cache}
}

func (s *redisSessionStore) Append(ctx context.Context, sessionID string, msg models.ConversationMessage) error {
	history, err := s.History(ctx, sessionID)
	if err != nil {
		return err
	}
	history = append(history, msg)
	payload, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	return s.cache.Set(ctx, contextKeyPrefix+sessionID, payload, contextTTL)
}

func (s *redisSessionStore) History(ctx context.Context, sessionID string) ([]models.ConversationMessage, error) {
	raw, err := s.cache.Get(ctx, contextKeyPrefix+sessionID)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	var history []models.ConversationMessage
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return history, nil
}

func (s *redisSessionStore) Clear(ctx context.Context, sessionID string) error {
	return s.cache.Del(ctx, contextKeyPrefix+sessionID)
}

type redisReceiptStore struct {
	cache *redis.Client
}

// NewRedisReceiptStore keeps receipts in redis under their own TTL, so a
// receipt remains retrievable after the consultation transcript is cleared.
func NewRedisReceiptStore(cache *redis.Client) ReceiptStore {
	return &redisReceiptStore{cache: cache}
}

func (s *redisReceiptStore) Put(ctx context.Context, sessionID string, receipt *models.MedicalReceipt) error {
	payload, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}
	return s.cache.Set(ctx, receiptKeyPrefix+sessionID, payload, receiptTTL)
}

func (s *redisReceiptStore) Get(ctx context.Context, sessionID string) (*models.MedicalReceipt, error) {
	raw, err := s.cache.Get(ctx, receiptKeyPrefix+sessionID)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("load receipt: %w", err)
	}
	var receipt models.MedicalReceipt
	if err := json.Unmarshal([]byte(raw), &receipt); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return &receipt, nil
}

func (s *redisReceiptStore) Delete(ctx context.Context, sessionID string) error {
	return s.cache.Del(ctx, receiptKeyPrefix+sessionID)
}
