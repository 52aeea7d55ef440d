package doctor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tilahungoito/healthydoc/internal/language"
	"github.com/tilahungoito/healthydoc/internal/models"
	"github.com/tilahungoito/healthydoc/internal/service/ai"
)

// buildReceiptFromReply assembles a receipt from a completed consultation
// turn. Prescriptions are folded into both the summary and the
// recommendation list.
func buildReceiptFromReply(sessionID string, reply *models.DoctorReply, history []models.ConversationMessage, lang language.Language) *models.MedicalReceipt {
	prescriptions := reply.Prescriptions

	summary := reply.Summary
	if summary == "" {
		summary = reply.Response
	}
	if len(prescriptions) > 0 && !strings.Contains(summary, strings.Join(prescriptions, "")) {
		var block strings.Builder
		block.WriteString(prescriptionsLabel(lang))
		for i, p := range prescriptions {
			if i > 0 {
				block.WriteString("\n")
			}
			fmt.Fprintf(&block, "%d. %s", i+1, p)
		}
		summary += block.String()
	}
	if summary == "" {
		summary = truncate(userSide(history), 500)
	}

	recommendations := dedupe(append(append([]string{}, reply.Recommendations...), prescriptions...))
	if len(recommendations) == 0 {
		recommendations = []string{fallbackRecommendation(lang)}
	}

	return &models.MedicalReceipt{
		SessionID:           sessionID,
		Date:                time.Now().UTC(),
		Summary:             summary,
		Recommendations:     recommendations,
		Prescriptions:       prescriptions,
		Urgency:             models.NormalizeUrgency(string(reply.Urgency)),
		Language:            string(lang),
		ConversationHistory: history,
	}
}

// dedupe drops repeated entries keeping first occurrences.
func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

// placeholderReceipt is served when neither a receipt nor a transcript exists.
func placeholderReceipt(sessionID string) *models.MedicalReceipt {
	return &models.MedicalReceipt{
		SessionID:       sessionID,
		Date:            time.Now().UTC(),
		Summary:         placeholderSummary,
		Recommendations: append([]string{}, placeholderRecommendations...),
		Prescriptions:   []string{},
		Urgency:         models.UrgencyMedium,
	}
}

// receiptDoc matches the structure the model is asked to produce. The
// recommendations field arrives as either a paragraph or a list.
type receiptDoc struct {
	Summary         string          `json:"summary"`
	Diagnosis       string          `json:"diagnosis"`
	Recommendations json.RawMessage `json:"recommendations"`
	Prescriptions   []string        `json:"prescriptions"`
	Urgency         string          `json:"urgency"`
}

func (d *receiptDoc) recommendationList() []string {
	if len(d.Recommendations) == 0 {
		return nil
	}
	var asString string
	if err := json.Unmarshal(d.Recommendations, &asString); err == nil {
		if asString == "" {
			return nil
		}
		return []string{asString}
	}
	var asList []string
	if err := json.Unmarshal(d.Recommendations, &asList); err == nil {
		return asList
	}
	return nil
}

func (d *receiptDoc) recommendationParagraph() string {
	var asString string
	if err := json.Unmarshal(d.Recommendations, &asString); err == nil {
		return asString
	}
	return ""
}

// generateReceipt asks the model for a full-consultation summary, waiting at
// most receiptTimeout. On timeout the generation is abandoned, not
// cancelled, and a fallback receipt built from the patient's own words is
// returned instead.
func (s *Service) generateReceipt(ctx context.Context, sessionID string, history []models.ConversationMessage, lang language.Language) *models.MedicalReceipt {
	type genResult struct {
		raw string
		err error
	}
	resultCh := make(chan genResult, 1)
	go func() {
		raw, err := s.gen.Generate(ctx, ai.Request{
			System:   receiptPrompt(lang),
			History:  []models.ConversationMessage{{Role: models.RoleUser, Content: receiptRequest(lang, history)}},
			Language: lang,
			WantJSON: true,
		})
		resultCh <- genResult{raw: raw, err: err}
	}()

	var raw string
	select {
	case result := <-resultCh:
		if result.err != nil {
			log.Printf("receipt generation failed for %s: %v", sessionID, result.err)
		}
		raw = result.raw
	case <-time.After(s.receiptTimeout):
		log.Printf("receipt generation timed out for %s", sessionID)
	}

	if len(strings.TrimSpace(raw)) < 3 {
		return timeoutReceipt(sessionID, history, lang)
	}

	doc := extractJSON(raw)
	var parsed receiptDoc
	if doc == "" || len(doc) <= 2 || json.Unmarshal([]byte(doc), &parsed) != nil || parsed.Summary == "" {
		return parseFailReceipt(sessionID, history, lang)
	}

	parts := []string{parsed.Summary}
	if parsed.Diagnosis != "" {
		parts = append(parts, "\n\nDiagnosis: "+parsed.Diagnosis)
	}
	if paragraph := parsed.recommendationParagraph(); paragraph != "" {
		parts = append(parts, "\n\nRecommendations: "+paragraph)
	}

	prescriptions := parsed.Prescriptions
	if prescriptions == nil {
		prescriptions = []string{}
	}
	recommendations := parsed.recommendationList()
	if recommendations == nil {
		recommendations = []string{}
	}
	return &models.MedicalReceipt{
		SessionID:           sessionID,
		Date:                time.Now().UTC(),
		Summary:             strings.Join(parts, ""),
		Diagnosis:           parsed.Diagnosis,
		Recommendations:     recommendations,
		Prescriptions:       prescriptions,
		Urgency:             models.NormalizeUrgency(parsed.Urgency),
		Language:            string(lang),
		ConversationHistory: history,
	}
}

func timeoutReceipt(sessionID string, history []models.ConversationMessage, lang language.Language) *models.MedicalReceipt {
	return &models.MedicalReceipt{
		SessionID:           sessionID,
		Date:                time.Now().UTC(),
		Summary:             fmt.Sprintf(receiptTimeoutSummary, truncate(userSide(history), 300)),
		Recommendations:     []string{receiptTimeoutRecommendation(lang)},
		Prescriptions:       []string{},
		Urgency:             models.UrgencyMedium,
		Language:            string(lang),
		ConversationHistory: history,
	}
}

func parseFailReceipt(sessionID string, history []models.ConversationMessage, lang language.Language) *models.MedicalReceipt {
	return &models.MedicalReceipt{
		SessionID:           sessionID,
		Date:                time.Now().UTC(),
		Summary:             fmt.Sprintf(receiptParseFailSummary(lang), truncate(userSide(history), 300)),
		Diagnosis:           receiptParseFailDiagnosis(lang),
		Recommendations:     []string{receiptParseFailRecommendation(lang)},
		Prescriptions:       []string{},
		Urgency:             models.UrgencyMedium,
		Language:            string(lang),
		ConversationHistory: history,
	}
}
