package doctor

import (
	"context"
	"log"
	"regexp"
	"strings"

	"github.com/tilahungoito/healthydoc/internal/language"
	"github.com/tilahungoito/healthydoc/internal/models"
	"github.com/tilahungoito/healthydoc/internal/translate"
)

// greetingPatterns strip salutations from the head of a reply in any of the
// supported languages.
var greetingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(hello|hi|hey|greetings|good (morning|afternoon|evening))[,\s]*`),
	regexp.MustCompile(`^(ሰላም|እንዴት ነህ|እንዴት ነሽ|እንዴት ነው)[,\s]*`),
	regexp.MustCompile(`^(ሰላም|ከመይ ኢኻ|ከመይ ኢኺ|ከመይ ኢኹም|ከመይ)[,\s]*`),
}

// introPatterns strip self-introductions, stopping before any question.
var introPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(I'm|I am|my name is|this is)[^?]*[,\s]*`),
	regexp.MustCompile(`^(እኔ ነኝ|እኔ|የኔ ስም|ይህ)[^?]*[,\s]*`),
	regexp.MustCompile(`^(ኣነ|እየ)[^?]*[,\s]*`),
	regexp.MustCompile(`(?i)^(how can I help|how may I assist|what can I do for you)[,\s]*`),
}

var questionMarkRe = regexp.MustCompile(`[?؟]`)

// removeGreetings drops salutations and introductions so replies lead with
// the medical content.
func removeGreetings(text string) string {
	cleaned := strings.TrimSpace(text)
	for _, pattern := range greetingPatterns {
		cleaned = pattern.ReplaceAllString(cleaned, "")
	}
	for _, pattern := range introPatterns {
		cleaned = pattern.ReplaceAllString(cleaned, "")
	}
	return strings.TrimSpace(cleaned)
}

// ensureLanguage verifies an Amharic or Tigrinya reply actually came back in
// the requested script. Responses in the other Ethiopic language are
// translated over; English responses are left for the generation layer's own
// fallback to handle.
func ensureLanguage(ctx context.Context, chain *translate.Chain, jt translate.JSONTranslator, reply *models.DoctorReply, target language.Language, ethiopicDefault language.Language) {
	if target != language.Amharic && target != language.Tigrinya {
		return
	}
	detected := language.Detect(reply.Response, ethiopicDefault)
	if detected == target || detected == language.English {
		return
	}
	log.Printf("language mismatch: expected %s, got %s", target, detected)
	translate.TranslateReply(ctx, chain, jt, reply, string(detected), string(target))
}

// polishReply cleans a reply's opening and, on the first exchange, makes sure
// it asks the patient something.
func polishReply(reply *models.DoctorReply, lang language.Language, isFirstMessage bool) {
	reply.Response = removeGreetings(reply.Response)
	if isFirstMessage && !questionMarkRe.MatchString(reply.Response) {
		reply.Response = firstQuestionPrefix(lang) + reply.Response
	}
}
