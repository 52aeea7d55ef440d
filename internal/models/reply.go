package models

// Urgency grades how quickly the patient should seek care.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// NormalizeUrgency coerces arbitrary model output into a valid urgency,
// defaulting to medium.
func NormalizeUrgency(v string) Urgency {
	switch Urgency(v) {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return Urgency(v)
	default:
		return UrgencyMedium
	}
}

// DoctorReply is the structured consultation turn the model is asked to
// produce. All text fields are in the consultation language; the booleans
// and urgency are language independent.
type DoctorReply struct {
	Response        string   `json:"response"`
	IsFollowUp      bool     `json:"isFollowUp"`
	IsComplete      bool     `json:"isComplete"`
	Summary         string   `json:"summary,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	Prescriptions   []string `json:"prescriptions,omitempty"`
	Urgency         Urgency  `json:"urgency"`
}
