package attribution

import (
	"fmt"
	"math"
	"strings"

	"github.com/temcen/pirex-admin/pkg/models"
)

// Derive builds the full display attribution for a scored item. A structured
// explain block, when the backend supplies one, takes precedence over the
// reason strings:
//
//  1. explain contributions, if any is nonzero
//  2. blend weights multiplied by the explain norms, if nonzero
//  3. Normalize over the reason strings with the effective blend weights
func Derive(item models.ScoredItem, fallback models.BlendTriplet) models.ItemAttribution {
	explain := item.Explain
	var blend *models.ExplainBlend
	if explain != nil {
		blend = explain.Blend
	}

	weights := sanitizeBlend(fallback)
	var norms, explainContrib models.BlendTriplet
	var raw *models.SignalTriplet
	if blend != nil {
		weights = sanitizeBlend(models.BlendTriplet{
			Pop:  orDefault(blend.Alpha, weights.Pop),
			Cooc: orDefault(blend.Beta, weights.Cooc),
			Als:  orDefault(blend.Gamma, weights.Als),
		})
		norms = models.BlendTriplet{
			Pop:  orDefault(blend.PopNorm, 0),
			Cooc: orDefault(blend.CoocNorm, 0),
			Als:  orDefault(blend.EmbNorm, 0),
		}
		if blend.Contrib != nil {
			explainContrib = models.BlendTriplet{
				Pop:  orDefault(blend.Contrib.Pop, 0),
				Cooc: orDefault(blend.Contrib.Cooc, 0),
				Als:  orDefault(blend.Contrib.Emb, 0),
			}
		}
		raw = blend.Raw
	}

	normalized := Normalize(item.Reasons, weights)

	out := models.ItemAttribution{
		ItemID:       item.ItemID,
		Score:        item.Score,
		BlendWeights: weights,
		BlendNorms:   norms,
		RawSignals:   raw,
		HasExtracted: normalized.HasExtracted,
		Notes:        normalized.Notes,
		Reasons:      nonNil(item.Reasons),
		Badges:       Badges(item.Reasons),
	}

	normBased := models.BlendTriplet{
		Pop:  weights.Pop * norms.Pop,
		Cooc: weights.Cooc * norms.Cooc,
		Als:  weights.Als * norms.Als,
	}
	switch {
	case explainContrib.Sum() > 0:
		out.Contributions = explainContrib
		out.Shares = Shares(explainContrib)
		out.UsingExplainShares = true
	case normBased.Sum() > 0:
		out.Contributions = normBased
		out.Shares = Shares(normBased)
		out.UsingExplainShares = true
	default:
		out.Contributions = normalized.Contributions
		out.Shares = normalized.Shares
	}

	if explain != nil && explain.Anchors != nil {
		out.Anchors = dedupe(explain.Anchors)
	} else {
		out.Anchors = dedupe(normalized.Anchors)
	}
	out.NotesDuplicate = NotesDuplicate(out.Notes, out.Reasons)
	out.Summary = Summarize(out.Contributions)

	if explain != nil {
		if explain.Caps != nil {
			for _, s := range []string{
				DescribeCap("Brand", explain.Caps.Brand),
				DescribeCap("Category", explain.Caps.Category),
			} {
				if s != "" {
					out.CapSummaries = append(out.CapSummaries, s)
				}
			}
		}
		if explain.Personalization != nil {
			out.BoostPercent = BoostPercent(explain.Personalization.BoostMultiplier)
		}
	}

	return out
}

// DescribeCap renders a cap usage line such as
// "Brand: applied, 2/3, acme". It returns "" for a nil cap.
func DescribeCap(label string, usage *models.ExplainCapUsage) string {
	if usage == nil {
		return ""
	}
	parts := []string{"not applied"}
	if usage.Applied {
		parts[0] = "applied"
	}
	switch {
	case usage.Count != nil && usage.Limit != nil:
		parts = append(parts, fmt.Sprintf("%d/%d", *usage.Count, *usage.Limit))
	case usage.Limit != nil:
		parts = append(parts, fmt.Sprintf("limit %d", *usage.Limit))
	}
	if usage.Value != nil && *usage.Value != "" {
		parts = append(parts, *usage.Value)
	}
	return label + ": " + strings.Join(parts, ", ")
}

// BoostPercent renders a personalization multiplier as " (+12.0%)".
// Multipliers within 0.01% of 1 and nil render as "".
func BoostPercent(multiplier *float64) string {
	m := 1.0
	if multiplier != nil {
		m = finite(*multiplier)
	}
	delta := (m - 1) * 100
	if math.Abs(delta) <= 0.01 {
		return ""
	}
	sign := ""
	if delta >= 0 {
		sign = "+"
	}
	return fmt.Sprintf(" (%s%.1f%%)", sign, delta)
}

func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return finite(*v)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
