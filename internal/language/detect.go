package language

import (
	"strings"

	"github.com/tilahungoito/healthydoc/internal/models"
)

// Language identifies a consultation language.
type Language string

const (
	English  Language = "en"
	Amharic  Language = "am"
	Tigrinya Language = "ti"
)

// Valid reports whether l is one of the supported languages.
func (l Language) Valid() bool {
	switch l {
	case English, Amharic, Tigrinya:
		return true
	}
	return false
}

// Name returns the display name used when addressing the model.
func (l Language) Name() string {
	switch l {
	case Amharic:
		return "Amharic (አማርኛ)"
	case Tigrinya:
		return "Tigrinya (ትግርኛ)"
	default:
		return "English"
	}
}

// Marker words checked by substring. Tigrinya wins over Amharic because
// the scripts overlap and several Amharic markers appear inside Tigrinya text.
var tigrinyaMarkers = []string{
	"ኣሎ", "እዩ", "ይኸውን", "ኣብ", "ን", "ኣብዚ", "ከመይ", "እንታይ",
	"ርእሰይ", "የሕመኒ", "ኢኻ", "ኢኺ", "ኢኹም", "እየ", "ኣነ", "ንሕና",
	"ንኻ", "ንኺ", "ንኹም",
}

var amharicMarkers = []string{
	"አለ", "ነው", "ነበረ", "ይሆናል", "አሁን", "እንዴት", "ምን", "ነህ", "ነሽ", "ናቸው",
}

func hasEthiopic(text string) bool {
	for _, r := range text {
		if r >= 0x1200 && r <= 0x137F {
			return true
		}
	}
	return false
}

// Detect classifies text as English, Amharic, or Tigrinya. Ethiopic-script
// text matching no marker set falls back to ethiopicDefault.
func Detect(text string, ethiopicDefault Language) Language {
	if !hasEthiopic(text) {
		return English
	}
	for _, marker := range tigrinyaMarkers {
		if strings.Contains(text, marker) {
			return Tigrinya
		}
	}
	for _, marker := range amharicMarkers {
		if strings.Contains(text, marker) {
			return Amharic
		}
	}
	if ethiopicDefault.Valid() && ethiopicDefault != English {
		return ethiopicDefault
	}
	return Amharic
}

// FromHistory scans the last three user messages in order and returns the
// first non-English detection.
func FromHistory(history []models.ConversationMessage, ethiopicDefault Language) Language {
	userMessages := make([]string, 0, 3)
	for _, msg := range history {
		if msg.Role == models.RoleUser {
			userMessages = append(userMessages, msg.Content)
		}
	}
	if len(userMessages) > 3 {
		userMessages = userMessages[len(userMessages)-3:]
	}
	for _, content := range userMessages {
		if detected := Detect(content, ethiopicDefault); detected != English {
			return detected
		}
	}
	return English
}

// Resolve picks the consultation language for a turn. Precedence:
// a valid explicit request, then detection on the new message, then the
// recent history, then English.
func Resolve(explicit string, message string, history []models.ConversationMessage, ethiopicDefault Language) Language {
	if requested := Language(explicit); requested.Valid() {
		return requested
	}
	if detected := Detect(message, ethiopicDefault); detected != English {
		return detected
	}
	if fromHistory := FromHistory(history, ethiopicDefault); fromHistory != English {
		return fromHistory
	}
	return English
}
