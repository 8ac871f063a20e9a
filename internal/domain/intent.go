package domain

// LowConfidenceThreshold marks classifications the caller should treat as a guess.
const LowConfidenceThreshold = 0.5

// Entity is a span of the query recognised as a date, location, service type
// or department. StartPos and EndPos are optional character offsets.
type Entity struct {
	Type     EntityType `json:"type"`
	Value    string     `json:"value"`
	StartPos *int       `json:"start_pos,omitempty"`
	EndPos   *int       `json:"end_pos,omitempty"`
}

// IntentClassification is the output of intent classification. It is
// created once per request and read-only afterwards.
type IntentClassification struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Entities   []Entity `json:"entities"`
}

// IsLowConfidence reports whether Confidence is below LowConfidenceThreshold.
func (ic IntentClassification) IsLowConfidence() bool {
	return ic.Confidence < LowConfidenceThreshold
}

// DefaultClassification is used whenever a real classification is unavailable:
// general category, zero confidence, no entities.
func DefaultClassification() IntentClassification {
	return IntentClassification{
		Category:   CategoryGeneral,
		Confidence: 0,
		Entities:   []Entity{},
	}
}
