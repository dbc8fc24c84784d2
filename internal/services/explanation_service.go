package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/pirex-admin/internal/attribution"
	"github.com/temcen/pirex-admin/internal/backend"
	"github.com/temcen/pirex-admin/internal/config"
	"github.com/temcen/pirex-admin/pkg/models"
)

// Attribution sources reported to metrics.
const (
	sourceMemo    = "memo"
	sourceCache   = "cache"
	sourceDerived = "derived"
)

// EventPublisher publishes explain events. Publishing is best effort.
type EventPublisher interface {
	PublishExplainEvent(ctx context.Context, event models.ExplainEvent) error
}

// Recommender fetches ranked items from the ranking backend.
type Recommender interface {
	Recommend(ctx context.Context, req *models.RecommendRequest) (*models.RecommendResponse, error)
}

// ExplanationService turns backend reasons and explain blocks into
// display-ready attributions.
type ExplanationService struct {
	memo         *attribution.Memo
	cache        AttributionCache
	anchors      AnchorResolver
	events       EventPublisher
	recommender  Recommender
	defaultBlend models.BlendTriplet
	maxItems     int
	metrics      *ExplainMetrics
	logger       *logrus.Logger
}

// NewExplanationService creates a new explanation service. cache, anchors,
// events and recommender may be nil.
func NewExplanationService(
	cfg *config.AttributionConfig,
	memo *attribution.Memo,
	cache AttributionCache,
	anchors AnchorResolver,
	events EventPublisher,
	recommender Recommender,
	metrics *ExplainMetrics,
	logger *logrus.Logger,
) *ExplanationService {
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = 200
	}

	return &ExplanationService{
		memo:    memo,
		cache:   cache,
		anchors: anchors,
		events:  events,
		defaultBlend: models.BlendTriplet{
			Pop:  cfg.DefaultBlend.Pop,
			Cooc: cfg.DefaultBlend.Cooc,
			Als:  cfg.DefaultBlend.Als,
		},
		recommender: recommender,
		maxItems:    maxItems,
		metrics:     metrics,
		logger:      logger,
	}
}

// DefaultBlend is the blend applied when a request carries none.
func (s *ExplanationService) DefaultBlend() models.BlendTriplet {
	return s.defaultBlend
}

// Explain derives an attribution for every item, in request order.
func (s *ExplanationService) Explain(ctx context.Context, req *models.ExplainRequest) (*models.ExplainResponse, error) {
	start := time.Now()

	if len(req.Items) > s.maxItems {
		return nil, fmt.Errorf("%w: %d items, at most %d allowed", ErrTooManyItems, len(req.Items), s.maxItems)
	}

	blend := s.defaultBlend
	if req.Blend != nil {
		blend = *req.Blend
	}

	resp := &models.ExplainResponse{
		Namespace: req.Namespace,
		Blend:     blend,
		Items:     make([]models.ItemAttribution, len(req.Items)),
	}

	for i, item := range req.Items {
		attr, source := s.attribute(ctx, item, blend)
		switch source {
		case sourceMemo:
			resp.MemoHits++
		case sourceCache:
			resp.CacheHits++
		}
		s.metrics.RecordAttribution(source)
		resp.Items[i] = attr
	}

	anchorCount := s.resolveAnchors(ctx, resp.Items)

	s.metrics.RecordExplain(len(req.Items), time.Since(start))
	s.publish(ctx, req.Namespace, blend, resp, anchorCount)

	s.logger.WithFields(logrus.Fields{
		"namespace":  req.Namespace,
		"items":      len(resp.Items),
		"memo_hits":  resp.MemoHits,
		"cache_hits": resp.CacheHits,
		"duration":   time.Since(start),
	}).Debug("Explained items")

	return resp, nil
}

// attribute looks the item up in the memo, then the shared cache, and
// derives it on a miss.
func (s *ExplanationService) attribute(ctx context.Context, item models.ScoredItem, blend models.BlendTriplet) (models.ItemAttribution, string) {
	key := attribution.Key(item, blend)

	if attr, ok := s.memo.Get(key); ok {
		return attr, sourceMemo
	}

	if s.cache != nil {
		attr, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.WithError(err).Warn("Attribution cache read failed")
		} else if ok {
			s.memo.Add(key, attr)
			return attr, sourceCache
		}
	}

	attr := attribution.Derive(item, blend)
	s.memo.Add(key, attr)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, attr); err != nil {
			s.logger.WithError(err).Warn("Attribution cache write failed")
		}
	}

	return attr, sourceDerived
}

// resolveAnchors fills AnchorDetails for every item that references
// anchors and returns the number of distinct anchors. Failures leave the
// details unresolved.
func (s *ExplanationService) resolveAnchors(ctx context.Context, items []models.ItemAttribution) int {
	seen := make(map[string]struct{})
	var ids []string
	for _, item := range items {
		for _, id := range item.Anchors {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return 0
	}

	var resolved map[string]models.AnchorInfo
	if s.anchors != nil {
		var err error
		resolved, err = s.anchors.ResolveAnchors(ctx, ids)
		if err != nil {
			s.logger.WithError(err).WithField("anchors", len(ids)).Warn("Anchor resolution failed")
			s.metrics.RecordAnchorResolution("error", len(ids))
			resolved = nil
		} else {
			s.metrics.RecordAnchorResolution("resolved", len(resolved))
			s.metrics.RecordAnchorResolution("unknown", len(ids)-len(resolved))
		}
	}

	for i := range items {
		if len(items[i].Anchors) == 0 {
			continue
		}
		details := make([]models.AnchorInfo, 0, len(items[i].Anchors))
		for _, id := range items[i].Anchors {
			if info, ok := resolved[id]; ok {
				details = append(details, info)
			} else {
				details = append(details, models.AnchorInfo{ItemID: id})
			}
		}
		items[i].AnchorDetails = details
	}

	return len(ids)
}

func (s *ExplanationService) publish(ctx context.Context, namespace string, blend models.BlendTriplet, resp *models.ExplainResponse, anchors int) {
	if s.events == nil {
		return
	}

	itemIDs := make([]string, len(resp.Items))
	for i, item := range resp.Items {
		itemIDs[i] = item.ItemID
	}

	event := models.ExplainEvent{
		EventID:   uuid.NewString(),
		RequestID: backend.RequestIDFromContext(ctx),
		Namespace: namespace,
		Blend:     blend,
		ItemIDs:   itemIDs,
		MemoHits:  resp.MemoHits,
		CacheHits: resp.CacheHits,
		Anchors:   anchors,
		Timestamp: time.Now().UTC(),
	}

	if err := s.events.PublishExplainEvent(ctx, event); err != nil {
		s.logger.WithError(err).Warn("Failed to publish explain event")
	}
}

// Summarize renders contributions as "pop 0.62 · co 0.28 · emb 0.00".
func (s *ExplanationService) Summarize(contributions models.BlendTriplet) string {
	return attribution.Summarize(contributions)
}

// RecommendAndExplain asks the backend for recommendations with reasons and
// explains the returned items with the request's blend.
func (s *ExplanationService) RecommendAndExplain(ctx context.Context, req *models.RecommendRequest) (*models.RecommendExplainResponse, error) {
	if s.recommender == nil {
		return nil, fmt.Errorf("ranking backend not configured")
	}

	forwarded := *req
	forwarded.Explain = true
	if forwarded.Blend == nil {
		blend := s.defaultBlend
		forwarded.Blend = &blend
	}

	recs, err := s.recommender.Recommend(ctx, &forwarded)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recommendations: %w", err)
	}

	items := recs.Items
	if len(items) > s.maxItems {
		items = items[:s.maxItems]
	}

	explained, err := s.Explain(backend.WithRequestID(ctx, recs.RequestID), &models.ExplainRequest{
		Namespace: req.Namespace,
		Blend:     forwarded.Blend,
		Items:     items,
	})
	if err != nil {
		return nil, err
	}

	return &models.RecommendExplainResponse{
		RequestID:    recs.RequestID,
		ModelVersion: recs.ModelVersion,
		Blend:        explained.Blend,
		Items:        explained.Items,
	}, nil
}
