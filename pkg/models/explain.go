package models

// BlendTriplet holds one value per signal family: popularity, co-visitation
// and embedding similarity. Used both for operator blend weights and for
// derived contributions/shares.
type BlendTriplet struct {
	Pop  float64 `json:"pop"`
	Cooc float64 `json:"cooc"`
	Als  float64 `json:"als"`
}

// Sum returns pop + cooc + als.
func (b BlendTriplet) Sum() float64 {
	return b.Pop + b.Cooc + b.Als
}

// IsZero reports whether all three components are zero.
func (b BlendTriplet) IsZero() bool {
	return b.Pop == 0 && b.Cooc == 0 && b.Als == 0
}

// ScoredItem is a ranked item as returned by the ranking backend.
type ScoredItem struct {
	ItemID  string        `json:"item_id"`
	Score   float64       `json:"score"`
	Reasons []string      `json:"reasons,omitempty"`
	Explain *ExplainBlock `json:"explain,omitempty"`
}

// SignalTriplet is the backend's pop/cooc/emb triple. Pointers keep
// "absent" distinct from zero.
type SignalTriplet struct {
	Pop  *float64 `json:"pop,omitempty"`
	Cooc *float64 `json:"cooc,omitempty"`
	Emb  *float64 `json:"emb,omitempty"`
}

type ExplainBlend struct {
	Alpha    *float64       `json:"alpha,omitempty"`
	Beta     *float64       `json:"beta,omitempty"`
	Gamma    *float64       `json:"gamma,omitempty"`
	PopNorm  *float64       `json:"pop_norm,omitempty"`
	CoocNorm *float64       `json:"cooc_norm,omitempty"`
	EmbNorm  *float64       `json:"emb_norm,omitempty"`
	Contrib  *SignalTriplet `json:"contrib,omitempty"`
	Raw      *SignalTriplet `json:"raw,omitempty"`
}

type ExplainPersonalization struct {
	Overlap         *float64 `json:"overlap,omitempty"`
	BoostMultiplier *float64 `json:"boost_multiplier,omitempty"`
	Raw             *struct {
		ProfileBoost *float64 `json:"profile_boost,omitempty"`
	} `json:"raw,omitempty"`
}

type ExplainMMR struct {
	Lambda    *float64 `json:"lambda,omitempty"`
	MaxSim    *float64 `json:"max_sim,omitempty"`
	Penalty   *float64 `json:"penalty,omitempty"`
	Relevance *float64 `json:"relevance,omitempty"`
	Rank      *int     `json:"rank,omitempty"`
}

type ExplainCapUsage struct {
	Applied bool    `json:"applied"`
	Limit   *int    `json:"limit,omitempty"`
	Count   *int    `json:"count,omitempty"`
	Value   *string `json:"value,omitempty"`
}

type ExplainCaps struct {
	Brand    *ExplainCapUsage `json:"brand,omitempty"`
	Category *ExplainCapUsage `json:"category,omitempty"`
}

// ExplainBlock is the optional structured explanation attached to a
// ScoredItem by backends that support it.
type ExplainBlock struct {
	Blend           *ExplainBlend           `json:"blend,omitempty"`
	Personalization *ExplainPersonalization `json:"personalization,omitempty"`
	MMR             *ExplainMMR             `json:"mmr,omitempty"`
	Caps            *ExplainCaps            `json:"caps,omitempty"`
	Anchors         []string                `json:"anchors,omitempty"`
}

// ReasonBadge is a reason tag prepared for display.
type ReasonBadge struct {
	Tag   string `json:"tag"`
	Label string `json:"label"`
	Help  string `json:"help,omitempty"`
	Known bool   `json:"known"`
}

// AnchorInfo describes an anchor item referenced by a reason.
type AnchorInfo struct {
	ItemID     string   `json:"item_id"`
	Title      string   `json:"title,omitempty"`
	Categories []string `json:"categories,omitempty"`
	CoVisits   int64    `json:"co_visits,omitempty"`
	Resolved   bool     `json:"resolved"`
}

// ItemAttribution is the display-ready attribution of one scored item.
type ItemAttribution struct {
	ItemID             string         `json:"item_id"`
	Score              float64        `json:"score"`
	Shares             BlendTriplet   `json:"shares"`
	Contributions      BlendTriplet   `json:"contributions"`
	BlendWeights       BlendTriplet   `json:"blend_weights"`
	BlendNorms         BlendTriplet   `json:"blend_norms"`
	RawSignals         *SignalTriplet `json:"raw_signals,omitempty"`
	HasExtracted       bool           `json:"has_extracted"`
	UsingExplainShares bool           `json:"using_explain_shares"`
	Anchors            []string       `json:"anchors"`
	AnchorDetails      []AnchorInfo   `json:"anchor_details,omitempty"`
	Notes              []string       `json:"notes"`
	NotesDuplicate     bool           `json:"notes_duplicate"`
	Reasons            []string       `json:"reasons"`
	Badges             []ReasonBadge  `json:"badges"`
	CapSummaries       []string       `json:"cap_summaries,omitempty"`
	BoostPercent       string         `json:"boost_percent,omitempty"`
	Summary            string         `json:"summary"`
}

type ExplainRequest struct {
	Namespace string        `json:"namespace" validate:"omitempty,max=128"`
	Blend     *BlendTriplet `json:"blend,omitempty"`
	Items     []ScoredItem  `json:"items" validate:"required,min=1,max=200,dive"`
}

type ExplainResponse struct {
	Namespace string            `json:"namespace,omitempty"`
	Blend     BlendTriplet      `json:"blend"`
	Items     []ItemAttribution `json:"items"`
	MemoHits  int               `json:"memo_hits"`
	CacheHits int               `json:"cache_hits"`
}

type SummaryRequest struct {
	Contributions BlendTriplet `json:"contributions"`
}

type SummaryResponse struct {
	Summary string `json:"summary"`
}
