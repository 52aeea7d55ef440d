package doctor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tilahungoito/healthydoc/internal/language"
	"github.com/tilahungoito/healthydoc/internal/models"
	"github.com/tilahungoito/healthydoc/internal/service/ai"
	"github.com/tilahungoito/healthydoc/internal/translate"
)

const defaultReceiptTimeout = 15 * time.Second

// Generator produces model output for a prompt. Satisfied by *ai.Service.
type Generator interface {
	Generate(ctx context.Context, req ai.Request) (string, error)
}

// Service orchestrates AI doctor consultations: transcript state, language
// resolution, reply normalization, and receipt generation.
type Service struct {
	gen             Generator
	sessions        SessionStore
	receipts        ReceiptStore
	chain           *translate.Chain
	jsonTranslator  translate.JSONTranslator
	ethiopicDefault language.Language
	receiptTimeout  time.Duration
}

// Options carries the optional collaborators for a Service.
type Options struct {
	Sessions       SessionStore
	Receipts       ReceiptStore
	Chain          *translate.Chain
	JSONTranslator translate.JSONTranslator
	// EthiopicDefault classifies unmarked Ethiopic text, "am" when empty.
	EthiopicDefault language.Language
	ReceiptTimeout  time.Duration
}

// NewService builds a consultation service. Stores default to in-memory
// implementations.
func NewService(gen Generator, opts Options) *Service {
	svc := &Service{
		gen:             gen,
		sessions:        opts.Sessions,
		receipts:        opts.Receipts,
		chain:           opts.Chain,
		jsonTranslator:  opts.JSONTranslator,
		ethiopicDefault: opts.EthiopicDefault,
		receiptTimeout:  opts.ReceiptTimeout,
	}
	if svc.sessions == nil {
		svc.sessions = NewMemorySessionStore()
	}
	if svc.receipts == nil {
		svc.receipts = NewMemoryReceiptStore()
	}
	if svc.chain == nil {
		svc.chain = translate.NewChain()
	}
	if !svc.ethiopicDefault.Valid() {
		svc.ethiopicDefault = language.Amharic
	}
	if svc.receiptTimeout <= 0 {
		svc.receiptTimeout = defaultReceiptTimeout
	}
	return svc
}

// StartResult is returned when a consultation opens.
type StartResult struct {
	SessionID      string    `json:"sessionId"`
	InitialMessage string    `json:"initialMessage"`
	Timestamp      time.Time `json:"timestamp"`
}

// Start opens a new consultation session.
func (s *Service) Start(ctx context.Context) (*StartResult, error) {
	sessionID, err := newSessionID()
	if err != nil {
		return nil, err
	}
	return &StartResult{
		SessionID:      sessionID,
		InitialMessage: initialGreeting,
		Timestamp:      time.Now().UTC(),
	}, nil
}

func newSessionID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return fmt.Sprintf("consultation_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(buf)), nil
}

// ChatRequest is one patient turn.
type ChatRequest struct {
	SessionID string
	Message   string
	// Language optionally forces the consultation language ("en", "am", "ti").
	Language string
}

// ChatResult is the reply for one turn, with the receipt attached when the
// consultation completed on this turn.
type ChatResult struct {
	Reply    *models.DoctorReply
	Receipt  *models.MedicalReceipt
	Language language.Language
}

// Chat runs one consultation turn.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	message := strings.TrimSpace(req.Message)
	if req.SessionID == "" || message == "" {
		return nil, fmt.Errorf("session id and message are required")
	}

	history, err := s.sessions.History(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	lang := language.Resolve(req.Language, message, history, s.ethiopicDefault)

	userMsg := models.ConversationMessage{
		Role:      models.RoleUser,
		Content:   message,
		Timestamp: time.Now().UTC(),
	}
	if err := s.sessions.Append(ctx, req.SessionID, userMsg); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	history = append(history, userMsg)

	isFirstMessage := len(history) == 1
	exchangeCount := len(history) / 2
	shouldAutoComplete := exchangeCount >= completionThreshold

	raw, genErr := s.gen.Generate(ctx, ai.Request{
		System:        consultationPrompt(lang, history, isFirstMessage, shouldAutoComplete, exchangeCount),
		EnglishSystem: consultationPrompt(language.English, history, isFirstMessage, shouldAutoComplete, exchangeCount),
		History:       []models.ConversationMessage{{Role: models.RoleUser, Content: "Patient's latest message: " + message + "\n\nProvide your response:"}},
		Language:      lang,
		WantJSON:      true,
	})
	if genErr != nil {
		log.Printf("generation failed for %s: %v", req.SessionID, genErr)
		raw = ""
	}

	reply := Normalize(raw, exchangeCount, lang)
	if shouldAutoComplete {
		reply.IsComplete = true
		reply.IsFollowUp = false
	}

	ensureLanguage(ctx, s.chain, s.jsonTranslator, reply, lang, s.ethiopicDefault)
	polishReply(reply, lang, isFirstMessage)
	if reply.Response == "" {
		reply.Response = fallbackResponse(lang)
		reply.IsFollowUp = true
		reply.IsComplete = false
	}

	assistantMsg := models.ConversationMessage{
		Role:      models.RoleAssistant,
		Content:   reply.Response,
		Timestamp: time.Now().UTC(),
	}
	if err := s.sessions.Append(ctx, req.SessionID, assistantMsg); err != nil {
		return nil, fmt.Errorf("store reply: %w", err)
	}
	history = append(history, assistantMsg)

	result := &ChatResult{Reply: reply, Language: lang}
	if reply.IsComplete {
		receipt := buildReceiptFromReply(req.SessionID, reply, history, lang)
		if err := s.receipts.Put(ctx, req.SessionID, receipt); err != nil {
			log.Printf("store receipt for %s: %v", req.SessionID, err)
		}
		result.Receipt = receipt
	}
	return result, nil
}

// End closes a consultation. The transcript is dropped; any generated
// receipt stays retrievable.
func (s *Service) End(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	return s.sessions.Clear(ctx, sessionID)
}

// Receipt returns the receipt for a session, generating one on demand. The
// posted transcript serves as a fallback when the server-side one is gone.
// A placeholder is stored and returned when no conversation is available at
// all, so this never errors for a well-formed request.
func (s *Service) Receipt(ctx context.Context, sessionID string, posted []models.ConversationMessage) (*models.MedicalReceipt, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	if receipt, err := s.receipts.Get(ctx, sessionID); err != nil {
		return nil, err
	} else if receipt != nil {
		return receipt, nil
	}

	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		history = posted
	}

	var receipt *models.MedicalReceipt
	if len(history) == 0 {
		receipt = placeholderReceipt(sessionID)
	} else {
		lang := language.FromHistory(history, s.ethiopicDefault)
		receipt = s.generateReceipt(ctx, sessionID, history, lang)
	}

	if err := s.receipts.Put(ctx, sessionID, receipt); err != nil {
		log.Printf("store receipt for %s: %v", sessionID, err)
	}
	return receipt, nil
}

// Forget drops both the transcript and the receipt for a session.
func (s *Service) Forget(ctx context.Context, sessionID string) error {
	if err := s.sessions.Clear(ctx, sessionID); err != nil {
		return err
	}
	return s.receipts.Delete(ctx, sessionID)
}
