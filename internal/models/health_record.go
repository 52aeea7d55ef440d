package models

import "time"

// Health record kinds.
const (
	RecordConsultation = "consultation"
	RecordAnalysis     = "analysis"
	RecordScan         = "scan"
)

// HealthRecord is a persisted entry in a user's health history: a finished
// consultation receipt, a symptom analysis, or an image scan result. Payload
// holds the structured result as JSON.
type HealthRecord struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}
