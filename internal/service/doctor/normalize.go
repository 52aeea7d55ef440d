package doctor

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tilahungoito/healthydoc/internal/language"
	"github.com/tilahungoito/healthydoc/internal/models"
)

// completionThreshold is the exchange count at which a consultation is
// wrapped up whether or not the model decided to.
const completionThreshold = 8

// completionKeywords hint that free-form output is a closing statement.
var completionKeywords = []string{"summary", "recommendation", "conclusion", "final", "diagnosis"}

var fencedJSONRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

// extractJSON pulls a JSON object out of raw model output: a fenced code
// block first, then the outermost brace span. Returns "" when nothing object
// shaped is found.
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

// Normalize turns raw model output into a structured reply. Output that
// cannot be parsed as the expected JSON document is wrapped whole as the
// response text, with completion inferred from the exchange count and
// closing keywords.
func Normalize(raw string, exchangeCount int, lang language.Language) *models.DoctorReply {
	trimmed := strings.TrimSpace(raw)
	if utf8.RuneCountInString(trimmed) < 3 {
		// Too short to be a real reply; "{" and similar fragments land here.
		return &models.DoctorReply{
			Response:   fallbackResponse(lang),
			IsFollowUp: true,
			Urgency:    models.UrgencyMedium,
		}
	}

	if jsonText := extractJSON(trimmed); len(jsonText) > 2 {
		var reply models.DoctorReply
		if err := json.Unmarshal([]byte(jsonText), &reply); err == nil && strings.TrimSpace(reply.Response) != "" {
			reply.Urgency = models.NormalizeUrgency(string(reply.Urgency))
			if reply.IsComplete && len(reply.Recommendations) == 0 {
				reply.Recommendations = []string{fallbackRecommendation(lang)}
			}
			return &reply
		}
	}

	seemsComplete := exchangeCount >= completionThreshold
	if !seemsComplete {
		lowered := strings.ToLower(trimmed)
		for _, keyword := range completionKeywords {
			if strings.Contains(lowered, keyword) {
				seemsComplete = true
				break
			}
		}
	}

	reply := &models.DoctorReply{
		Response:   trimmed,
		IsFollowUp: !seemsComplete,
		IsComplete: seemsComplete,
		Urgency:    models.UrgencyMedium,
	}
	if seemsComplete {
		reply.Summary = trimmed
		reply.Recommendations = []string{fallbackRecommendation(lang)}
	}
	return reply
}
