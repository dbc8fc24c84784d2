package models

import "time"

// ExplainEvent is published after an explain request has been served.
type ExplainEvent struct {
	EventID   string       `json:"event_id"`
	RequestID string       `json:"request_id,omitempty"`
	Namespace string       `json:"namespace,omitempty"`
	Blend     BlendTriplet `json:"blend"`
	ItemIDs   []string     `json:"item_ids"`
	MemoHits  int          `json:"memo_hits"`
	CacheHits int          `json:"cache_hits"`
	Anchors   int          `json:"anchors"`
	Timestamp time.Time    `json:"timestamp"`
}
