package models

// Condition is one differential diagnosis candidate from a symptom analysis.
type Condition struct {
	Name           string   `json:"name"`
	Confidence     float64  `json:"confidence"`
	Description    string   `json:"description"`
	CommonSymptoms []string `json:"common_symptoms,omitempty"`
}

// HealthAnalysis is the structured result of a preliminary symptom
// assessment.
type HealthAnalysis struct {
	PossibleConditions []Condition `json:"possible_conditions"`
	RecommendedActions []string    `json:"recommended_actions"`
	UrgencyLevel       string      `json:"urgency_level"`
	GeneralAdvice      string      `json:"general_advice"`
	MedicalContext     string      `json:"medical_context,omitempty"`
	HomeCare           string      `json:"home_care,omitempty"`
	WhenToSeekCare     string      `json:"when_to_seek_care,omitempty"`
	Disclaimer         string      `json:"disclaimer,omitempty"`
}

// ScanResult is the classifier verdict for an uploaded medical image.
type ScanResult struct {
	Prediction      string   `json:"prediction"`
	Confidence      float64  `json:"confidence"`
	Message         string   `json:"message,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}
