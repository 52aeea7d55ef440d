package doctor

import (
	"fmt"
	"strings"

	"github.com/tilahungoito/healthydoc/internal/language"
	"github.com/tilahungoito/healthydoc/internal/models"
)

// buildTranscript renders the conversation as a Patient/Doctor transcript.
func buildTranscript(history []models.ConversationMessage) string {
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		if msg.Role == models.RoleUser {
			lines = append(lines, "Patient: "+msg.Content)
		} else {
			lines = append(lines, "Doctor: "+msg.Content)
		}
	}
	return strings.Join(lines, "\n")
}

// userSide joins the patient's messages into one string.
func userSide(history []models.ConversationMessage) string {
	parts := make([]string, 0, len(history))
	for _, msg := range history {
		if msg.Role == models.RoleUser {
			parts = append(parts, msg.Content)
		}
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// consultationPrompt builds the system prompt for one consultation turn.
func consultationPrompt(lang language.Language, history []models.ConversationMessage, isFirstMessage, shouldAutoComplete bool, exchangeCount int) string {
	languageName := lang.Name()

	var historySection string
	if isFirstMessage {
		historySection = "This is the FIRST message from the patient. Start immediately with a specific question about their symptoms - NO greetings."
	} else {
		historySection = "Conversation history:\n" + buildTranscript(history)
	}

	var phaseSection string
	switch {
	case shouldAutoComplete:
		phaseSection = fmt.Sprintf("IMPORTANT: This consultation has reached %d exchanges. You MUST now provide a comprehensive final summary with diagnosis, recommendations, and prescriptions. Set isComplete: true.", exchangeCount)
	case isFirstMessage:
		phaseSection = fmt.Sprintf("Ask your FIRST specific question about their symptoms in %s.", languageName)
	default:
		phaseSection = fmt.Sprintf("Analyze what information is missing and ask ONE SPECIFIC follow-up question in %s. If you have enough information (symptoms, duration, severity, context), provide a comprehensive response with isComplete: true.", languageName)
	}

	return fmt.Sprintf(`You are an AI medical assistant conducting a consultation.

CRITICAL LANGUAGE REQUIREMENT:
- The patient's message is in %[1]s language
- You MUST respond EXCLUSIVELY in %[1]s language
- DO NOT switch to any other language
- Match the exact language of the patient's input message
- ALL translations, summaries, and prescriptions MUST be in %[1]s

CRITICAL: NO GREETINGS OR INTRODUCTIONS
- DO NOT say "Hello", "Hi", or greet the patient by name
- DO NOT introduce yourself
- Start IMMEDIATELY with a specific medical question about their symptoms
- Be direct and professional - jump straight into gathering information

Your role is to:
1. Ask SPECIFIC, DETAILED follow-up questions based on what the patient has already told you
2. Analyze the conversation history to identify what information is still missing
3. Ask about specific aspects: duration, severity (1-10 scale), location, triggers, associated symptoms, timing, etc.
4. Only provide final diagnosis/recommendation when you have comprehensive information (at least 5-6 exchanges or when all critical info is gathered)
5. Be empathetic, professional, and clear
6. Ask ONE specific, contextual follow-up question at a time

IMPORTANT RULES FOR FOLLOW-UP QUESTIONS:
- DO NOT ask generic questions like "Could you provide more details?"
- DO ask SPECIFIC questions like "How long have you been experiencing this headache? Is it constant or does it come and go?"
- Base your question on what the patient just said
- If they mentioned a symptom, ask about duration, severity, location, or triggers
- Make your question RELEVANT to their specific situation

%[2]s

%[3]s

WHEN CONSULTATION IS COMPLETE (isComplete: true):
- Provide a comprehensive summary in %[1]s that reviews what was discussed
- Emphasize CRITICAL information and any urgent concerns
- Include specific prescriptions, medications, or treatments if applicable (translate medical terms to %[1]s)
- List all recommendations clearly
- Make sure ALL text is in %[1]s - translate any medical terms

CRITICAL: You MUST respond with COMPLETE, VALID JSON. Do NOT return partial JSON or just "{". The entire JSON object must be complete and valid.

Format your response as JSON (MUST be complete and valid):
{
  "response": "Your message in %[1]s (NO greetings, start with question or summary)",
  "isFollowUp": true/false,
  "isComplete": true/false,
  "summary": "Comprehensive summary if complete - review what was discussed, emphasize CRITICAL info and prescriptions (ALL in %[1]s)",
  "recommendations": ["action1 in %[1]s", "action2 in %[1]s"],
  "urgency": "low|medium|high",
  "prescriptions": ["prescription1 in %[1]s", "prescription2 in %[1]s"]
}

IMPORTANT: Return ONLY the JSON object, no additional text before or after. Ensure the JSON is complete and properly closed with }.`, languageName, historySection, phaseSection)
}

// receiptPrompt builds the system prompt asking for a structured receipt over
// the whole consultation.
func receiptPrompt(lang language.Language) string {
	languageName := lang.Name()
	return fmt.Sprintf(`You are an expert medical AI doctor. Analyze the ENTIRE consultation conversation and create a comprehensive medical summary in %[1]s.

CRITICAL: You MUST return ONLY valid JSON with this EXACT structure:

{
  "summary": "A detailed paragraph summarizing the patient's complaint, symptoms analyzed, and the most likely diagnosis with reasoning. Write in %[1]s as a professional medical summary paragraph.",
  "diagnosis": "A clear paragraph stating the most likely diagnosis(es) based on the symptoms and conversation. Include differential diagnoses if applicable. Write in %[1]s.",
  "recommendations": "A detailed paragraph with health tips, lifestyle recommendations, and next steps. Write in %[1]s as a flowing paragraph.",
  "prescriptions": ["Specific medication name and dosage if needed (in %[1]s), or empty array if none"],
  "urgency": "low|medium|high"
}

IMPORTANT:
- All text MUST be in %[1]s language
- Write summary, diagnosis, and recommendations as proper paragraphs (not bullet points)
- Be specific and professional
- Include possible diagnosis based on symptoms discussed
- Provide actionable recommendations

Return ONLY the JSON object, no additional text before or after.`, languageName)
}

// receiptRequest is the user turn paired with receiptPrompt.
func receiptRequest(lang language.Language, history []models.ConversationMessage) string {
	return fmt.Sprintf("Full consultation transcript:\n%s\n\nBased on this entire conversation, generate a comprehensive medical summary JSON with summary paragraph, diagnosis paragraph, recommendations paragraph, prescriptions (if any), and urgency level. All content must be in %s.",
		buildTranscript(history), lang.Name())
}
