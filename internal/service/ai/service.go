package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/tilahungoito/healthydoc/internal/config"
	"github.com/tilahungoito/healthydoc/internal/language"
	"github.com/tilahungoito/healthydoc/internal/models"
	"github.com/tilahungoito/healthydoc/internal/translate"
)

const (
	defaultMaxTokens = 2000
	retryMaxTokens   = 3000

	defaultTemperature float32 = 0.3
	defaultTopP        float32 = 0.9
)

// ErrNoProviders reports that no chat model could be constructed.
var ErrNoProviders = errors.New("no ai providers configured")

type provider struct {
	name             string
	chat             model.BaseChatModel
	preferNonEnglish bool
}

// Service generates model replies across a configured provider chain,
// falling back to an English pipeline plus translation when every provider
// fails for an Ethiopic-language request.
type Service struct {
	providers []provider
	chain     *translate.Chain
}

// NewService builds chat models for every provider in cfg.ProviderOrder.
// Providers without an API key are skipped with a log line; at least one
// usable provider is required.
func NewService(ctx context.Context, cfg *config.Config, chain *translate.Chain) (*Service, error) {
	svc := &Service{chain: chain}
	for _, name := range cfg.ProviderOrder {
		provCfg := cfg.Providers[name]
		if provCfg.APIKey == "" {
			log.Printf("provider %s skipped: no api key", name)
			continue
		}
		chat, err := newChatModel(ctx, name, provCfg)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		svc.providers = append(svc.providers, provider{
			name:             name,
			chat:             chat,
			preferNonEnglish: provCfg.PreferNonEnglish,
		})
	}
	if len(svc.providers) == 0 {
		return nil, ErrNoProviders
	}
	return svc, nil
}

// Request describes one generation call.
type Request struct {
	// System is the system prompt, written for the consultation language.
	System string
	// EnglishSystem is the prompt used by the translate fallback. When empty
	// System is reused.
	EnglishSystem string
	History       []models.ConversationMessage
	Language      language.Language
	// WantJSON enables the truncation check and retry with a larger budget.
	WantJSON  bool
	MaxTokens int
}

// Generate walks the provider chain and returns the first usable reply.
// For Amharic and Tigrinya requests the providers flagged prefer_non_english
// move to the front; if the whole chain fails the request is re-run in
// English and the reply translated back.
func (s *Service) Generate(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	messages := buildMessages(req.System, req.History)

	var lastErr error
	for _, p := range s.ordered(req.Language) {
		reply, err := s.attempt(ctx, p, messages, maxTokens, req.WantJSON)
		if err == nil {
			return reply, nil
		}
		log.Printf("provider %s failed: %v", p.name, err)
		lastErr = err
	}

	if req.Language != language.English && s.chain.Len() > 0 {
		if reply, err := s.generateViaEnglish(ctx, req, maxTokens); err == nil {
			return reply, nil
		} else {
			log.Printf("english pipeline failed: %v", err)
		}
	}

	if lastErr == nil {
		lastErr = ErrNoProviders
	}
	return "", fmt.Errorf("all providers failed: %w", lastErr)
}

// attempt runs one provider, retrying once with a larger token budget when a
// JSON reply comes back truncated. A reply that is still truncated after the
// retry is a failed attempt, so the caller moves on to the next provider.
func (s *Service) attempt(ctx context.Context, p provider, messages []*schema.Message, maxTokens int, wantJSON bool) (string, error) {
	reply, err := s.call(ctx, p, messages, maxTokens)
	if err != nil {
		return "", err
	}
	if !wantJSON || !truncatedJSON(reply) {
		return reply, nil
	}
	if maxTokens < retryMaxTokens {
		log.Printf("provider %s returned truncated output, retrying with larger budget", p.name)
		retry, retryErr := s.call(ctx, p, messages, retryMaxTokens)
		if retryErr == nil && !truncatedJSON(retry) {
			return retry, nil
		}
	}
	return "", errors.New("truncated output")
}

func (s *Service) call(ctx context.Context, p provider, messages []*schema.Message, maxTokens int) (string, error) {
	out, err := p.chat.Generate(ctx, messages,
		model.WithMaxTokens(maxTokens),
		model.WithTemperature(defaultTemperature),
		model.WithTopP(defaultTopP),
	)
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", errors.New("empty model output")
	}
	return out.Content, nil
}

// generateViaEnglish translates the user side of the conversation to English,
// generates with an English prompt, and translates the reply back.
func (s *Service) generateViaEnglish(ctx context.Context, req Request, maxTokens int) (string, error) {
	target := string(req.Language)

	history := make([]models.ConversationMessage, len(req.History))
	copy(history, req.History)
	for i, msg := range history {
		if msg.Role != models.RoleUser {
			continue
		}
		translated, err := s.chain.Translate(ctx, msg.Content, target, "en")
		if err != nil {
			return "", fmt.Errorf("translate prompt: %w", err)
		}
		history[i].Content = translated
	}

	system := req.EnglishSystem
	if system == "" {
		system = req.System
	}
	messages := buildMessages(system, history)

	var lastErr error
	for _, p := range s.ordered(language.English) {
		reply, err := s.attempt(ctx, p, messages, maxTokens, req.WantJSON)
		if err != nil {
			lastErr = err
			continue
		}
		return s.translateBack(ctx, reply, target, req.WantJSON)
	}
	if lastErr == nil {
		lastErr = ErrNoProviders
	}
	return "", lastErr
}

func (s *Service) translateBack(ctx context.Context, reply, target string, wantJSON bool) (string, error) {
	if wantJSON {
		if doc := extractJSON(reply); doc != "" {
			translated, err := s.chain.TranslateDocument(ctx, doc, "en", target, "urgency", "isComplete", "isFollowUp")
			if err == nil {
				return translated, nil
			}
			log.Printf("document translation failed: %v", err)
		}
	}
	return s.chain.Translate(ctx, reply, "en", target)
}

// ordered returns the provider chain for a language. Non-English requests
// move prefer_non_english providers to the front, preserving relative order.
func (s *Service) ordered(lang language.Language) []provider {
	if lang == language.English {
		return s.providers
	}
	out := make([]provider, 0, len(s.providers))
	for _, p := range s.providers {
		if p.preferNonEnglish {
			out = append(out, p)
		}
	}
	for _, p := range s.providers {
		if !p.preferNonEnglish {
			out = append(out, p)
		}
	}
	return out
}

func buildMessages(system string, history []models.ConversationMessage) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history)+1)
	if system != "" {
		messages = append(messages, schema.SystemMessage(system))
	}
	for _, msg := range history {
		switch msg.Role {
		case models.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(msg.Content, nil))
		case models.RoleSystem:
			messages = append(messages, schema.SystemMessage(msg.Content))
		default:
			messages = append(messages, schema.UserMessage(msg.Content))
		}
	}
	return messages
}

// truncatedJSON reports whether a reply that should carry a JSON document
// looks cut off mid-object.
func truncatedJSON(reply string) bool {
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" {
		return true
	}
	open := strings.Count(trimmed, "{")
	if open == 0 {
		return false
	}
	return open != strings.Count(trimmed, "}")
}
