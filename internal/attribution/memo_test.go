package attribution

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/pirex-admin/pkg/models"
)

func TestMemo_Derive(t *testing.T) {
	memo, err := NewMemo(8)
	require.NoError(t, err)

	item := models.ScoredItem{ItemID: "item-1", Reasons: []string{"pop:0.4", "cooc:0.4"}}
	blend := models.BlendTriplet{Pop: 1, Cooc: 1, Als: 1}

	first, hit := memo.Derive(item, blend)
	assert.False(t, hit)

	second, hit := memo.Derive(item, blend)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Equal(t, Derive(item, blend), second)

	_, hit = memo.Derive(item, models.BlendTriplet{Pop: 1})
	assert.False(t, hit)
	assert.Equal(t, 2, memo.Len())
}

func TestMemo_Eviction(t *testing.T) {
	memo, err := NewMemo(1)
	require.NoError(t, err)

	a := models.ScoredItem{ItemID: "a"}
	b := models.ScoredItem{ItemID: "b"}
	blend := models.BlendTriplet{Pop: 1}

	memo.Derive(a, blend)
	memo.Derive(b, blend)

	_, ok := memo.Get(Key(a, blend))
	assert.False(t, ok)
	assert.Equal(t, 1, memo.Len())
}

func TestKey(t *testing.T) {
	item := models.ScoredItem{ItemID: "x", Reasons: []string{"a", "b"}}
	blend := models.BlendTriplet{Pop: 1, Cooc: 2, Als: 3}

	assert.Equal(t, Key(item, blend), Key(item, blend))
	assert.Len(t, Key(item, blend), 64)

	reordered := models.ScoredItem{ItemID: "x", Reasons: []string{"b", "a"}}
	assert.NotEqual(t, Key(item, blend), Key(reordered, blend))
}

func TestNewMemo_DefaultSize(t *testing.T) {
	memo, err := NewMemo(0)
	require.NoError(t, err)
	assert.NotNil(t, memo)
}

func TestKey_NonFiniteExplainValues(t *testing.T) {
	build := func() models.ScoredItem {
		return models.ScoredItem{
			ItemID: "item-1",
			Explain: &models.ExplainBlock{
				Blend: &models.ExplainBlend{
					Alpha:   f64(math.NaN()),
					PopNorm: f64(math.Inf(1)),
					Contrib: &models.SignalTriplet{Pop: f64(math.Inf(-1))},
				},
				Personalization: &models.ExplainPersonalization{BoostMultiplier: f64(math.NaN())},
				MMR:             &models.ExplainMMR{Lambda: f64(math.NaN())},
			},
		}
	}
	blend := models.BlendTriplet{Pop: 1}

	// separately allocated but equal inputs share a key
	assert.Equal(t, Key(build(), blend), Key(build(), blend))

	zeroed := build()
	zeroed.Explain.Blend.Alpha = f64(0)
	zeroed.Explain.Blend.PopNorm = f64(0)
	zeroed.Explain.Blend.Contrib.Pop = f64(0)
	zeroed.Explain.Personalization.BoostMultiplier = f64(0)
	zeroed.Explain.MMR.Lambda = f64(0)
	assert.Equal(t, Key(zeroed, blend), Key(build(), blend))

	memo, err := NewMemo(4)
	require.NoError(t, err)
	_, hit := memo.Derive(build(), blend)
	assert.False(t, hit)
	_, hit = memo.Derive(build(), blend)
	assert.True(t, hit)
}

func TestKey_DoesNotMutateItem(t *testing.T) {
	item := models.ScoredItem{
		ItemID:  "item-1",
		Explain: &models.ExplainBlock{Blend: &models.ExplainBlend{Alpha: f64(math.NaN())}},
	}
	Key(item, models.BlendTriplet{})
	assert.True(t, math.IsNaN(*item.Explain.Blend.Alpha))
}
