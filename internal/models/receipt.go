package models

import "time"

// MedicalReceipt is the terminal summary produced when a consultation
// completes. It outlives the conversation transcript so the patient can
// still download it after ending the session. ConversationHistory is kept
// server side only and never serialized to clients.
type MedicalReceipt struct {
	SessionID           string                `json:"sessionId"`
	Date                time.Time             `json:"date"`
	Summary             string                `json:"summary"`
	Diagnosis           string                `json:"diagnosis,omitempty"`
	Recommendations     []string              `json:"recommendations"`
	Prescriptions       []string              `json:"prescriptions"`
	Urgency             Urgency               `json:"urgency"`
	Language            string                `json:"language,omitempty"`
	ConversationHistory []ConversationMessage `json:"-"`
}
