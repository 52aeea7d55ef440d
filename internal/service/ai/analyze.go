package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tilahungoito/healthydoc/internal/language"
	"github.com/tilahungoito/healthydoc/internal/models"
)

const analyzeMaxTokens = 2500

const analyzePrompt = `You are a medical information assistant. Analyze the symptoms described below and respond with ONLY a JSON object, no prose before or after, in this exact shape:
{
  "possible_conditions": [
    {"name": "", "confidence": 0.0, "description": "", "common_symptoms": [""]}
  ],
  "recommended_actions": [""],
  "urgency_level": "low|medium|high|emergency",
  "general_advice": "",
  "medical_context": "",
  "home_care": "",
  "when_to_seek_care": "",
  "disclaimer": ""
}
Confidence is a number between 0 and 1. You are not a doctor and must not present this as a diagnosis. Always include a disclaimer advising the user to consult a healthcare professional.`

// AnalyzeSymptoms runs a one-shot structured symptom analysis.
func (s *Service) AnalyzeSymptoms(ctx context.Context, symptoms string, lang language.Language) (*models.HealthAnalysis, error) {
	system := analyzePrompt
	if lang != language.English {
		system += fmt.Sprintf("\nWrite all string values in %s. Keep the JSON keys and the confidence and urgency values in English.", lang.Name())
	}
	raw, err := s.Generate(ctx, Request{
		System: system,
		History: []models.ConversationMessage{
			{Role: models.RoleUser, Content: symptoms},
		},
		Language:  lang,
		WantJSON:  true,
		MaxTokens: analyzeMaxTokens,
	})
	if err != nil {
		return nil, err
	}

	doc := extractJSON(raw)
	if doc == "" {
		return nil, fmt.Errorf("analysis output is not JSON")
	}
	var analysis models.HealthAnalysis
	if err := json.Unmarshal([]byte(doc), &analysis); err != nil {
		return nil, fmt.Errorf("parse analysis: %w", err)
	}
	if analysis.Disclaimer == "" {
		analysis.Disclaimer = "This is not a medical diagnosis. Please consult a qualified healthcare professional."
	}
	switch analysis.UrgencyLevel {
	case "low", "medium", "high", "emergency":
	default:
		analysis.UrgencyLevel = "medium"
	}
	return &analysis, nil
}

var fencedJSONRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

// extractJSON pulls a JSON object out of free-form model output: a fenced
// block first, then the outermost brace span.
func extractJSON(raw string) string {
	if m := fencedJSONRe.FindStringSubmatch(raw); m != nil {
		candidate := strings.TrimSpace(m[1])
		if strings.HasPrefix(candidate, "{") {
			return candidate
		}
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
