package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DecisionTrace captures a single recommendation decision for audit.
type DecisionTrace struct {
	DecisionID uuid.UUID        `json:"decision_id"`
	OrgID      string           `json:"org_id,omitempty"`
	Timestamp  time.Time        `json:"ts"`
	Namespace  string           `json:"namespace"`
	Surface    string           `json:"surface,omitempty"`
	RequestID  string           `json:"request_id,omitempty"`
	UserHash   string           `json:"user_hash,omitempty"`
	K          int              `json:"k,omitempty"`
	Config     json.RawMessage  `json:"effective_config,omitempty"`
	Bandit     json.RawMessage  `json:"bandit,omitempty"`
	FinalItems []TraceFinalItem `json:"final_items"`
	Extras     map[string]any   `json:"extras,omitempty"`
}

type TraceFinalItem struct {
	ItemID  string   `json:"item_id"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons,omitempty"`
}

// DecisionSummary is the list-view projection of a DecisionTrace.
type DecisionSummary struct {
	DecisionID uuid.UUID `json:"decision_id"`
	Timestamp  time.Time `json:"ts"`
	Namespace  string    `json:"namespace"`
	Surface    string    `json:"surface,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	UserHash   string    `json:"user_hash,omitempty"`
	K          int       `json:"k,omitempty"`
	ItemCount  int       `json:"item_count"`
}

type DecisionFilter struct {
	From      *time.Time
	To        *time.Time
	UserHash  string
	RequestID string
	Limit     int
}

type DecisionListResponse struct {
	Namespace string            `json:"namespace"`
	Decisions []DecisionSummary `json:"decisions"`
}

type LocateDecisionRequest struct {
	Namespace string `json:"namespace" validate:"required,max=128"`
	RequestID string `json:"request_id" validate:"required,max=256"`
}

type LocateDecisionResponse struct {
	DecisionID uuid.UUID `json:"decision_id"`
	Attempts   int       `json:"attempts"`
	Fallback   bool      `json:"fallback"`
}
