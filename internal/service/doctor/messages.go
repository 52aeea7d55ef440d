package doctor

import "github.com/tilahungoito/healthydoc/internal/language"

// initialGreeting opens every consultation.
const initialGreeting = "Hello! I'm your AI doctor. How can I help you today? Please describe your symptoms or health concerns in detail."

// ChatErrorResponse is returned alongside a 500 when a turn cannot be processed.
const ChatErrorResponse = "I apologize, but I encountered an error. Could you please repeat your message?"

// fallbackResponse covers turns where the model produced nothing usable.
func fallbackResponse(lang language.Language) string {
	switch lang {
	case language.Amharic:
		return "አስተዋወቀሁ። የበለጠ ለመርዳት፣ እነዚህን ምልክቶች ለምን ያህል ጊዜ እንደተገኙ እና ከ1 እስከ 10 ያለው ልክ ምን ያህል ከባድ እንደሆኑ ሊነግሩኝ ይችላሉ?"
	case language.Tigrinya:
		return "ተረዲኤይ። ንሕና ንምሕጋዝ፣ ነዚ ምልክታት ንኽንደይ እዋን ከም ዝርከቡን ከምኡ'ውን ካብ 1 ክሳዕ 10 ክንደይ ከቢድ ምዃኖም ክትነግሩና ትኽእሉ።"
	default:
		return "I understand. To help you better, could you tell me how long you've been experiencing these symptoms and how severe they are on a scale of 1 to 10?"
	}
}

// fallbackRecommendation accompanies an unparseable completed reply.
func fallbackRecommendation(lang language.Language) string {
	switch lang {
	case language.Amharic:
		return "ከጤና አገልጋይ ጋር ተገናኝ"
	case language.Tigrinya:
		return "ንጥረ ጥዕና ምኽንያት ርኣይ"
	default:
		return "Follow up with healthcare provider if symptoms persist"
	}
}

// firstQuestionPrefix is prepended to a first reply that carries no question.
func firstQuestionPrefix(lang language.Language) string {
	switch lang {
	case language.Amharic:
		return "የበለጠ ለመርዳት፣ "
	case language.Tigrinya:
		return "ንምሕጋዝ፣ "
	default:
		return "To help you better, "
	}
}

// prescriptionsLabel heads the prescription block appended to a summary.
func prescriptionsLabel(lang language.Language) string {
	switch lang {
	case language.Amharic:
		return "\n\nመድሃኒቶች/መጠባበቂያዎች:\n"
	case language.Tigrinya:
		return "\n\nመድሃኒት/ኣገዳሲ ሓበሬታ:\n"
	default:
		return "\n\nPRESCRIPTIONS/CRITICAL INFORMATION:\n"
	}
}

// receiptTimeoutRecommendation is used when receipt generation times out.
func receiptTimeoutRecommendation(lang language.Language) string {
	switch lang {
	case language.Amharic:
		return "እባክዎ በአግባቡ የሚመርመርዎ የጤና ባለሙያን ያግኙ።"
	case language.Tigrinya:
		return "እባክዎ ዝተመረመረ ባለሙያ ጥዕና ሓላፊ ርኣይ።"
	default:
		return "Please see a qualified healthcare professional for a full assessment."
	}
}

// receiptTimeoutSummary frames the raw patient report when receipt
// generation timed out. The %s slot takes the user side of the transcript.
const receiptTimeoutSummary = "Based on the consultation, the patient reported: %s. Please consult with a healthcare professional for a complete assessment and diagnosis."

// receiptParseFailSummary frames the raw patient report when the model's
// receipt cannot be parsed. The %s slot takes the user side of the transcript.
func receiptParseFailSummary(lang language.Language) string {
	switch lang {
	case language.Amharic:
		return "በዚህ የጤና ምክክር ላይ የታመመው ሰው የሚከተሉትን ምልክቶች አስታውቋል: %s. ለሙሉ የጤና ግምገማ እባክዎ በአግባቡ የሚመርመርዎ የጤና ባለሙያን ያግኙ።"
	case language.Tigrinya:
		return "ኣብዚ ምክክር ጥዕና፣ እቲ ሕሙም ነዚ ምልክታት ኣረኣኢዩ: %s. ንምሉእ ግምገማ ጥዕና፣ እባክዎ ዝተመረመረ ባለሙያ ጥዕና ሓላፊ ርኣይ።"
	default:
		return "Based on this consultation, the patient reported the following symptoms: %s. Please consult with a qualified healthcare professional for a complete assessment and proper diagnosis."
	}
}

func receiptParseFailDiagnosis(lang language.Language) string {
	switch lang {
	case language.Amharic:
		return "ለትክክለኛ የጤና ምርመራ እና ምርመራ እባክዎ የጤና ባለሙያን ያግኙ።"
	case language.Tigrinya:
		return "ንቕኑዕ ምርመራ ጥዕና፣ እባክዎ ዝተመረመረ ባለሙያ ጥዕና ሓላፊ ርኣይ።"
	default:
		return "Please see a qualified healthcare professional for proper diagnosis."
	}
}

func receiptParseFailRecommendation(lang language.Language) string {
	switch lang {
	case language.Amharic:
		return "እባክዎ ምልክቶችዎን በጥንቃቄ ይከታተሉ። ምልክቶች ከባድ ከሆኑ ወይም ካልተቋረጡ ወዲያውኑ የጤና እርዳታ ይፈልጉ።"
	case language.Tigrinya:
		return "እባክዎ ነዚ ምልክታት ብጥንቃቐ ርኣዩ። እንተ ከቢድ ወይ እንተ ዘይወጸኡ፣ ብኡሕ ንጥረ ጥዕና ምኽንያት ርኣይ።"
	default:
		return "Please monitor your symptoms closely. If symptoms worsen or persist, seek immediate medical attention."
	}
}

// placeholder receipt content served while generation is still pending.
const (
	placeholderSummary = "Consultation summary is being generated. Please try again in a moment, or contact support if this issue persists."
)

var placeholderRecommendations = []string{
	"Please consult with a qualified healthcare professional for a complete assessment.",
	"If you have urgent symptoms, seek immediate medical attention.",
}
