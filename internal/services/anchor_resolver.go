package services

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/temcen/pirex-admin/pkg/models"
)

// AnchorResolver looks up display metadata for anchor item ids. Ids that
// are unknown are simply absent from the result.
type AnchorResolver interface {
	ResolveAnchors(ctx context.Context, itemIDs []string) (map[string]models.AnchorInfo, error)
}

// Neo4jAnchorResolver reads anchor items and their co-visitation degree from
// the item graph.
type Neo4jAnchorResolver struct {
	driver neo4j.DriverWithContext
	logger *logrus.Logger
}

func NewNeo4jAnchorResolver(driver neo4j.DriverWithContext, logger *logrus.Logger) *Neo4jAnchorResolver {
	return &Neo4jAnchorResolver{
		driver: driver,
		logger: logger,
	}
}

const anchorQuery = `
	MATCH (c:Content)
	WHERE c.content_id IN $ids
	OPTIONAL MATCH (c)-[cv:CO_VISITED]-(:Content)
	RETURN c.content_id AS item_id,
		coalesce(c.title, '') AS title,
		coalesce(c.categories, []) AS categories,
		coalesce(sum(cv.count), 0) AS co_visits`

func (r *Neo4jAnchorResolver) ResolveAnchors(ctx context.Context, itemIDs []string) (map[string]models.AnchorInfo, error) {
	resolved := make(map[string]models.AnchorInfo, len(itemIDs))
	if len(itemIDs) == 0 {
		return resolved, nil
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, anchorQuery, map[string]interface{}{
		"ids": itemIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query anchors: %w", err)
	}

	for result.Next(ctx) {
		info, err := anchorFromRecord(result.Record())
		if err != nil {
			r.logger.WithError(err).Warn("Skipping malformed anchor record")
			continue
		}
		resolved[info.ItemID] = info
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read anchors: %w", err)
	}

	return resolved, nil
}

func anchorFromRecord(record *neo4j.Record) (models.AnchorInfo, error) {
	id, _, err := neo4j.GetRecordValue[string](record, "item_id")
	if err != nil {
		return models.AnchorInfo{}, err
	}
	title, _, err := neo4j.GetRecordValue[string](record, "title")
	if err != nil {
		return models.AnchorInfo{}, err
	}
	coVisits, _, err := neo4j.GetRecordValue[int64](record, "co_visits")
	if err != nil {
		return models.AnchorInfo{}, err
	}

	info := models.AnchorInfo{
		ItemID:   id,
		Title:    title,
		CoVisits: coVisits,
		Resolved: true,
	}

	if raw, ok := record.Get("categories"); ok {
		if list, ok := raw.([]interface{}); ok {
			for _, c := range list {
				if s, ok := c.(string); ok {
					info.Categories = append(info.Categories, s)
				}
			}
		}
	}

	return info, nil
}
