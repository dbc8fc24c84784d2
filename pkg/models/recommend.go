package models

// RecommendRequest is forwarded to the ranking backend.
type RecommendRequest struct {
	Namespace string        `json:"namespace" validate:"required,max=128"`
	UserID    string        `json:"user_id" validate:"required,max=256"`
	K         int           `json:"k" validate:"min=1,max=100"`
	Surface   string        `json:"surface,omitempty"`
	Blend     *BlendTriplet `json:"blend,omitempty"`
	Explain   bool          `json:"include_reasons"`
	RequestID string        `json:"request_id,omitempty"`
}

type RecommendResponse struct {
	ModelVersion string       `json:"model_version,omitempty"`
	Items        []ScoredItem `json:"items"`
	RequestID    string       `json:"request_id,omitempty"`
}

// RecommendExplainResponse pairs backend recommendations with their
// attributions.
type RecommendExplainResponse struct {
	RequestID    string            `json:"request_id"`
	ModelVersion string            `json:"model_version,omitempty"`
	Blend        BlendTriplet      `json:"blend"`
	Items        []ItemAttribution `json:"items"`
}
