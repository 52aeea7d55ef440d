package doctor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tilahungoito/healthydoc/internal/language"
	"github.com/tilahungoito/healthydoc/internal/models"
	"github.com/tilahungoito/healthydoc/internal/service/ai"
)

type fakeGenerator struct {
	replies []string
	err     error
	delay   time.Duration
	calls   int
	lastReq ai.Request
}

func (f *fakeGenerator) Generate(ctx context.Context, req ai.Request) (string, error) {
	f.calls++
	f.lastReq = req
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

func newTestService(gen Generator) *Service {
	return NewService(gen, Options{ReceiptTimeout: 200 * time.Millisecond})
}

func TestStart(t *testing.T) {
	svc := newTestService(&fakeGenerator{})
	result, err := svc.Start(context.Background())
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if !strings.HasPrefix(result.SessionID, "consultation_") {
		t.Fatalf("session id: %q", result.SessionID)
	}
	if result.InitialMessage != initialGreeting {
		t.Fatalf("greeting: %q", result.InitialMessage)
	}

	other, _ := svc.Start(context.Background())
	if other.SessionID == result.SessionID {
		t.Fatalf("session ids must be unique")
	}
}

func TestChatFollowUpTurn(t *testing.T) {
	gen := &fakeGenerator{replies: []string{`{"response": "How long have you had it?", "isFollowUp": true, "isComplete": false, "urgency": "low"}`}}
	svc := newTestService(gen)

	result, err := svc.Chat(context.Background(), ChatRequest{SessionID: "s1", Message: "I have a headache"})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if result.Reply.Response != "How long have you had it?" {
		t.Fatalf("response: %q", result.Reply.Response)
	}
	if result.Receipt != nil {
		t.Fatalf("follow-up should not carry a receipt")
	}
	if result.Language != language.English {
		t.Fatalf("language: %s", result.Language)
	}
	if !gen.lastReq.WantJSON {
		t.Fatalf("chat turns must request JSON")
	}

	history, _ := svc.sessions.History(context.Background(), "s1")
	if len(history) != 2 || history[0].Role != models.RoleUser || history[1].Role != models.RoleAssistant {
		t.Fatalf("transcript: %+v", history)
	}
}

func TestChatValidation(t *testing.T) {
	svc := newTestService(&fakeGenerator{})
	if _, err := svc.Chat(context.Background(), ChatRequest{Message: "hi"}); err == nil {
		t.Fatalf("missing session id should error")
	}
	if _, err := svc.Chat(context.Background(), ChatRequest{SessionID: "s", Message: "  "}); err == nil {
		t.Fatalf("blank message should error")
	}
}

func TestChatCompleteTurnStoresReceipt(t *testing.T) {
	gen := &fakeGenerator{replies: []string{`{
		"response": "Summary: you likely have a tension headache.",
		"isFollowUp": false,
		"isComplete": true,
		"summary": "Tension headache from stress.",
		"recommendations": ["rest", "hydrate"],
		"prescriptions": ["paracetamol 500mg"],
		"urgency": "low"
	}`}}
	svc := newTestService(gen)

	result, err := svc.Chat(context.Background(), ChatRequest{SessionID: "s2", Message: "still hurts"})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if result.Receipt == nil {
		t.Fatalf("complete turn must carry a receipt")
	}
	if len(result.Receipt.Recommendations) != 3 {
		t.Fatalf("recommendations should include prescriptions: %v", result.Receipt.Recommendations)
	}

	stored, err := svc.Receipt(context.Background(), "s2", nil)
	if err != nil {
		t.Fatalf("Receipt error: %v", err)
	}
	if stored.Summary != result.Receipt.Summary {
		t.Fatalf("stored receipt differs")
	}
	if gen.calls != 1 {
		t.Fatalf("cached receipt should not regenerate, calls=%d", gen.calls)
	}
}

func TestChatAutoCompletesAtThreshold(t *testing.T) {
	gen := &fakeGenerator{replies: []string{`{"response": "ok", "isFollowUp": true, "isComplete": false, "urgency": "low"}`}}
	svc := newTestService(gen)
	ctx := context.Background()

	// Preload 15 messages so this turn is the 16th (8th exchange).
	for i := 0; i < 15; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		svc.sessions.Append(ctx, "s3", models.ConversationMessage{Role: role, Content: "turn"})
	}

	result, err := svc.Chat(ctx, ChatRequest{SessionID: "s3", Message: "anything else?"})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if !result.Reply.IsComplete || result.Reply.IsFollowUp {
		t.Fatalf("threshold must force completion: %+v", result.Reply)
	}
	if result.Receipt == nil {
		t.Fatalf("forced completion must produce a receipt")
	}
}

func TestChatGeneratorFailureFallsBack(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("all providers down")}
	svc := newTestService(gen)

	result, err := svc.Chat(context.Background(), ChatRequest{SessionID: "s4", Message: "ራስ ምታት አለ"})
	if err != nil {
		t.Fatalf("Chat should degrade, not fail: %v", err)
	}
	if result.Reply.Response != fallbackResponse(language.Amharic) {
		t.Fatalf("expected amharic fallback, got %q", result.Reply.Response)
	}
	if !result.Reply.IsFollowUp || result.Reply.IsComplete {
		t.Fatalf("fallback flags: %+v", result.Reply)
	}
}

func TestChatDegenerateOutputFallsBack(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"{"}}
	svc := newTestService(gen)

	result, err := svc.Chat(context.Background(), ChatRequest{SessionID: "s11", Message: "I feel dizzy"})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if result.Reply.Response != fallbackResponse(language.English) {
		t.Fatalf("bare brace must degrade to the fallback, got %q", result.Reply.Response)
	}
	if strings.Contains(result.Reply.Response, "{") {
		t.Fatalf("model fragment leaked: %q", result.Reply.Response)
	}
	if !result.Reply.IsFollowUp || result.Reply.IsComplete {
		t.Fatalf("fallback flags: %+v", result.Reply)
	}
}

func TestChatFirstMessagePrefix(t *testing.T) {
	gen := &fakeGenerator{replies: []string{`{"response": "Hello, tell me about the pain.", "isFollowUp": true, "isComplete": false, "urgency": "low"}`}}
	svc := newTestService(gen)

	result, err := svc.Chat(context.Background(), ChatRequest{SessionID: "s5", Message: "my stomach hurts"})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if !strings.HasPrefix(result.Reply.Response, "To help you better, ") {
		t.Fatalf("greeting should be stripped and prefix added: %q", result.Reply.Response)
	}
	if strings.Contains(result.Reply.Response, "Hello") {
		t.Fatalf("greeting survived: %q", result.Reply.Response)
	}
}

func TestChatExplicitLanguage(t *testing.T) {
	gen := &fakeGenerator{replies: []string{`{"response": " censored", "isFollowUp": true, "urgency": "low"}`}}
	svc := newTestService(gen)

	result, err := svc.Chat(context.Background(), ChatRequest{SessionID: "s6", Message: "hello", Language: "ti"})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if result.Language != language.Tigrinya {
		t.Fatalf("explicit language ignored: %s", result.Language)
	}
	if !strings.Contains(gen.lastReq.System, "Tigrinya (ትግርኛ)") {
		t.Fatalf("prompt not localized")
	}
}

func TestEndKeepsReceipt(t *testing.T) {
	gen := &fakeGenerator{replies: []string{`{
		"response": "done", "isComplete": true, "summary": "s", "urgency": "low"
	}`}}
	svc := newTestService(gen)
	ctx := context.Background()

	if _, err := svc.Chat(ctx, ChatRequest{SessionID: "s7", Message: "hi"}); err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if err := svc.End(ctx, "s7"); err != nil {
		t.Fatalf("End error: %v", err)
	}

	history, _ := svc.sessions.History(ctx, "s7")
	if len(history) != 0 {
		t.Fatalf("transcript should be cleared")
	}
	receipt, err := svc.Receipt(ctx, "s7", nil)
	if err != nil || receipt == nil {
		t.Fatalf("receipt must survive End: %v", err)
	}
	if receipt.Summary == placeholderSummary {
		t.Fatalf("stored receipt expected, got placeholder")
	}
}

func TestReceiptGeneratesFromTranscript(t *testing.T) {
	gen := &fakeGenerator{replies: []string{
		`{"response": "follow up", "isFollowUp": true, "urgency": "low"}`,
		`{"summary": "Patient reported headaches.", "diagnosis": "Tension headache.", "recommendations": "Rest and hydrate.", "prescriptions": [], "urgency": "low"}`,
	}}
	svc := newTestService(gen)
	ctx := context.Background()

	if _, err := svc.Chat(ctx, ChatRequest{SessionID: "s8", Message: "headache"}); err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	receipt, err := svc.Receipt(ctx, "s8", nil)
	if err != nil {
		t.Fatalf("Receipt error: %v", err)
	}
	if !strings.Contains(receipt.Summary, "Patient reported headaches.") ||
		!strings.Contains(receipt.Summary, "Diagnosis: Tension headache.") ||
		!strings.Contains(receipt.Summary, "Recommendations: Rest and hydrate.") {
		t.Fatalf("combined summary: %q", receipt.Summary)
	}
	if len(receipt.Recommendations) != 1 || receipt.Recommendations[0] != "Rest and hydrate." {
		t.Fatalf("paragraph recommendations should become a single entry: %v", receipt.Recommendations)
	}
	if receipt.Urgency != models.UrgencyLow {
		t.Fatalf("urgency: %s", receipt.Urgency)
	}
}

func TestReceiptFromPostedConversation(t *testing.T) {
	gen := &fakeGenerator{replies: []string{`{"summary": "Posted summary.", "urgency": "medium"}`}}
	svc := newTestService(gen)

	posted := []models.ConversationMessage{
		{Role: models.RoleUser, Content: "I feel dizzy"},
		{Role: models.RoleAssistant, Content: "Since when?"},
	}
	receipt, err := svc.Receipt(context.Background(), "s9", posted)
	if err != nil {
		t.Fatalf("Receipt error: %v", err)
	}
	if !strings.Contains(receipt.Summary, "Posted summary.") {
		t.Fatalf("summary: %q", receipt.Summary)
	}
}

func TestReceiptPlaceholderWithoutConversation(t *testing.T) {
	gen := &fakeGenerator{}
	svc := newTestService(gen)

	receipt, err := svc.Receipt(context.Background(), "missing", nil)
	if err != nil {
		t.Fatalf("Receipt error: %v", err)
	}
	if receipt.Summary != placeholderSummary {
		t.Fatalf("expected placeholder, got %q", receipt.Summary)
	}
	if gen.calls != 0 {
		t.Fatalf("placeholder must not call the model")
	}

	// The placeholder is stored so later requests are stable.
	again, err := svc.Receipt(context.Background(), "missing", nil)
	if err != nil || again.Summary != placeholderSummary {
		t.Fatalf("placeholder not persisted: %v", err)
	}
}

func TestReceiptTimeoutFallback(t *testing.T) {
	gen := &fakeGenerator{
		replies: []string{`{"summary": "too late"}`},
		delay:   400 * time.Millisecond,
	}
	svc := newTestService(gen)

	posted := []models.ConversationMessage{{Role: models.RoleUser, Content: "severe chest pain"}}
	start := time.Now()
	receipt, err := svc.Receipt(context.Background(), "slow", posted)
	if err != nil {
		t.Fatalf("Receipt error: %v", err)
	}
	if time.Since(start) > 350*time.Millisecond {
		t.Fatalf("timeout did not bound the wait")
	}
	if !strings.Contains(receipt.Summary, "severe chest pain") {
		t.Fatalf("timeout summary should quote the patient: %q", receipt.Summary)
	}
	if len(receipt.Recommendations) != 1 || receipt.Recommendations[0] != receiptTimeoutRecommendation(language.English) {
		t.Fatalf("recommendations: %v", receipt.Recommendations)
	}
}

func TestReceiptParseFailureFallback(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"I could not produce a structured summary, sorry."}}
	svc := newTestService(gen)

	posted := []models.ConversationMessage{{Role: models.RoleUser, Content: "ራስ ምታት አለ"}}
	receipt, err := svc.Receipt(context.Background(), "badjson", posted)
	if err != nil {
		t.Fatalf("Receipt error: %v", err)
	}
	if !strings.Contains(receipt.Summary, "ራስ ምታት አለ") {
		t.Fatalf("summary should quote the patient: %q", receipt.Summary)
	}
	if receipt.Diagnosis != receiptParseFailDiagnosis(language.Amharic) {
		t.Fatalf("diagnosis: %q", receipt.Diagnosis)
	}
}

func TestForget(t *testing.T) {
	gen := &fakeGenerator{replies: []string{`{"response": "done", "isComplete": true, "summary": "s", "urgency": "low"}`}}
	svc := newTestService(gen)
	ctx := context.Background()

	if _, err := svc.Chat(ctx, ChatRequest{SessionID: "s10", Message: "hi"}); err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if err := svc.Forget(ctx, "s10"); err != nil {
		t.Fatalf("Forget error: %v", err)
	}
	receipt, err := svc.Receipt(ctx, "s10", nil)
	if err != nil {
		t.Fatalf("Receipt error: %v", err)
	}
	if receipt.Summary != placeholderSummary {
		t.Fatalf("forgotten session should yield a placeholder")
	}
}
