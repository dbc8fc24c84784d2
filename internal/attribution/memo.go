package attribution

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/temcen/pirex-admin/pkg/models"
)

const DefaultMemoSize = 4096

// Memo caches Derive results keyed by the full input tuple. Derive is pure,
// so a hit is always equal to a fresh computation.
type Memo struct {
	cache *lru.Cache[string, models.ItemAttribution]
}

func NewMemo(size int) (*Memo, error) {
	if size <= 0 {
		size = DefaultMemoSize
	}
	cache, err := lru.New[string, models.ItemAttribution](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create attribution memo: %w", err)
	}
	return &Memo{cache: cache}, nil
}

type memoKey struct {
	ItemID  string               `json:"i"`
	Score   float64              `json:"s"`
	Reasons []string             `json:"r"`
	Explain *models.ExplainBlock `json:"e,omitempty"`
	Blend   models.BlendTriplet  `json:"b"`
}

// Key returns a stable hex digest of the Derive inputs. Non-finite numbers
// are keyed as 0, which is how Derive reads them.
func Key(item models.ScoredItem, blend models.BlendTriplet) string {
	// every float is finite here, so Marshal cannot fail
	data, _ := json.Marshal(memoKey{
		ItemID:  item.ItemID,
		Score:   finite(item.Score),
		Reasons: item.Reasons,
		Explain: finiteExplain(item.Explain),
		Blend:   sanitizeBlend(blend),
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// finiteExplain returns a copy of e with NaN and Inf replaced by 0.
func finiteExplain(e *models.ExplainBlock) *models.ExplainBlock {
	if e == nil {
		return nil
	}
	out := *e
	if b := e.Blend; b != nil {
		out.Blend = &models.ExplainBlend{
			Alpha:    finitePtr(b.Alpha),
			Beta:     finitePtr(b.Beta),
			Gamma:    finitePtr(b.Gamma),
			PopNorm:  finitePtr(b.PopNorm),
			CoocNorm: finitePtr(b.CoocNorm),
			EmbNorm:  finitePtr(b.EmbNorm),
			Contrib:  finiteSignals(b.Contrib),
			Raw:      finiteSignals(b.Raw),
		}
	}
	if p := e.Personalization; p != nil {
		pers := models.ExplainPersonalization{
			Overlap:         finitePtr(p.Overlap),
			BoostMultiplier: finitePtr(p.BoostMultiplier),
		}
		if p.Raw != nil {
			pers.Raw = &struct {
				ProfileBoost *float64 `json:"profile_boost,omitempty"`
			}{ProfileBoost: finitePtr(p.Raw.ProfileBoost)}
		}
		out.Personalization = &pers
	}
	if m := e.MMR; m != nil {
		out.MMR = &models.ExplainMMR{
			Lambda:    finitePtr(m.Lambda),
			MaxSim:    finitePtr(m.MaxSim),
			Penalty:   finitePtr(m.Penalty),
			Relevance: finitePtr(m.Relevance),
			Rank:      m.Rank,
		}
	}
	return &out
}

func finiteSignals(t *models.SignalTriplet) *models.SignalTriplet {
	if t == nil {
		return nil
	}
	return &models.SignalTriplet{Pop: finitePtr(t.Pop), Cooc: finitePtr(t.Cooc), Emb: finitePtr(t.Emb)}
}

func finitePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := finite(*v)
	return &f
}

func (m *Memo) Get(key string) (models.ItemAttribution, bool) {
	return m.cache.Get(key)
}

func (m *Memo) Add(key string, attr models.ItemAttribution) {
	m.cache.Add(key, attr)
}

// Derive returns the memoized attribution for item, computing it on a miss.
// The second result reports a hit.
func (m *Memo) Derive(item models.ScoredItem, blend models.BlendTriplet) (models.ItemAttribution, bool) {
	key := Key(item, blend)
	if attr, ok := m.cache.Get(key); ok {
		return attr, true
	}
	attr := Derive(item, blend)
	m.cache.Add(key, attr)
	return attr, false
}

func (m *Memo) Len() int {
	return m.cache.Len()
}
