package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/temcen/pirex-admin/pkg/models"
)

const (
	defaultDecisionLimit = 50
	maxDecisionLimit     = 500
)

// DatabaseQuerier interface for database operations
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// DecisionStore persists and reads decision traces.
type DecisionStore interface {
	InsertDecisionTrace(ctx context.Context, trace *models.DecisionTrace) error
	ListDecisionTraces(ctx context.Context, namespace string, filter models.DecisionFilter) ([]models.DecisionSummary, error)
	GetDecisionTrace(ctx context.Context, decisionID uuid.UUID) (*models.DecisionTrace, error)
}

// PostgresDecisionStore reads and writes the rec_decisions table.
type PostgresDecisionStore struct {
	db     DatabaseQuerier
	logger *logrus.Logger
}

func NewPostgresDecisionStore(db DatabaseQuerier, logger *logrus.Logger) *PostgresDecisionStore {
	return &PostgresDecisionStore{
		db:     db,
		logger: logger,
	}
}

const insertDecisionSQL = `
	INSERT INTO rec_decisions (
		decision_id, org_id, ts, namespace, surface, request_id, user_hash, k,
		effective_config, bandit, final_items, extras
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (decision_id) DO NOTHING`

// InsertDecisionTrace stores a trace. Redelivered traces with a known
// decision id are ignored.
func (s *PostgresDecisionStore) InsertDecisionTrace(ctx context.Context, trace *models.DecisionTrace) error {
	if trace == nil {
		return fmt.Errorf("decision trace is nil")
	}
	if trace.Namespace == "" {
		return fmt.Errorf("decision trace %s has no namespace", trace.DecisionID)
	}
	if trace.DecisionID == uuid.Nil {
		trace.DecisionID = uuid.New()
	}
	ts := trace.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	finalItems := trace.FinalItems
	if finalItems == nil {
		finalItems = []models.TraceFinalItem{}
	}
	finalJSON, err := json.Marshal(finalItems)
	if err != nil {
		return fmt.Errorf("failed to marshal final items: %w", err)
	}

	var extrasJSON []byte
	if len(trace.Extras) > 0 {
		if extrasJSON, err = json.Marshal(trace.Extras); err != nil {
			return fmt.Errorf("failed to marshal extras: %w", err)
		}
	}

	_, err = s.db.Exec(ctx, insertDecisionSQL,
		trace.DecisionID,
		trace.OrgID,
		ts,
		trace.Namespace,
		nullableString(trace.Surface),
		nullableString(trace.RequestID),
		nullableString(trace.UserHash),
		nullableInt(trace.K),
		nullableJSON(trace.Config),
		nullableJSON(trace.Bandit),
		finalJSON,
		nullableJSON(extrasJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision trace: %w", err)
	}

	return nil
}

const listDecisionsSQL = `
	SELECT decision_id, ts, namespace,
		COALESCE(surface, ''), COALESCE(request_id, ''), COALESCE(user_hash, ''), COALESCE(k, 0),
		jsonb_array_length(final_items)
	FROM rec_decisions
	WHERE namespace = $1
		AND ($2::timestamptz IS NULL OR ts >= $2)
		AND ($3::timestamptz IS NULL OR ts <= $3)
		AND ($4::text IS NULL OR user_hash = $4)
		AND ($5::text IS NULL OR request_id = $5)
	ORDER BY ts DESC
	LIMIT $6`

// ListDecisionTraces returns the newest traces in a namespace matching the
// filter. A limit outside 1..500 falls back to 50.
func (s *PostgresDecisionStore) ListDecisionTraces(
	ctx context.Context,
	namespace string,
	filter models.DecisionFilter,
) ([]models.DecisionSummary, error) {
	limit := filter.Limit
	if limit <= 0 || limit > maxDecisionLimit {
		limit = defaultDecisionLimit
	}

	rows, err := s.db.Query(ctx, listDecisionsSQL,
		namespace,
		nullableTime(filter.From),
		nullableTime(filter.To),
		nullableString(filter.UserHash),
		nullableString(filter.RequestID),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list decision traces: %w", err)
	}
	defer rows.Close()

	decisions := make([]models.DecisionSummary, 0, limit)
	for rows.Next() {
		var d models.DecisionSummary
		if err := rows.Scan(
			&d.DecisionID,
			&d.Timestamp,
			&d.Namespace,
			&d.Surface,
			&d.RequestID,
			&d.UserHash,
			&d.K,
			&d.ItemCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan decision trace: %w", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate decision traces: %w", err)
	}

	return decisions, nil
}

const getDecisionSQL = `
	SELECT decision_id, org_id, ts, namespace,
		COALESCE(surface, ''), COALESCE(request_id, ''), COALESCE(user_hash, ''), COALESCE(k, 0),
		effective_config, bandit, final_items, extras
	FROM rec_decisions
	WHERE decision_id = $1`

// GetDecisionTrace returns ErrDecisionNotFound for unknown ids.
func (s *PostgresDecisionStore) GetDecisionTrace(ctx context.Context, decisionID uuid.UUID) (*models.DecisionTrace, error) {
	var (
		trace      models.DecisionTrace
		configJSON []byte
		banditJSON []byte
		finalJSON  []byte
		extrasJSON []byte
	)

	err := s.db.QueryRow(ctx, getDecisionSQL, decisionID).Scan(
		&trace.DecisionID,
		&trace.OrgID,
		&trace.Timestamp,
		&trace.Namespace,
		&trace.Surface,
		&trace.RequestID,
		&trace.UserHash,
		&trace.K,
		&configJSON,
		&banditJSON,
		&finalJSON,
		&extrasJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDecisionNotFound
		}
		return nil, fmt.Errorf("failed to get decision trace: %w", err)
	}

	if len(configJSON) > 0 {
		trace.Config = json.RawMessage(configJSON)
	}
	if len(banditJSON) > 0 {
		trace.Bandit = json.RawMessage(banditJSON)
	}
	if len(finalJSON) > 0 {
		if err := json.Unmarshal(finalJSON, &trace.FinalItems); err != nil {
			return nil, fmt.Errorf("failed to decode final items: %w", err)
		}
	}
	if len(extrasJSON) > 0 {
		if err := json.Unmarshal(extrasJSON, &trace.Extras); err != nil {
			s.logger.WithError(err).WithField("decision_id", decisionID).Warn("Ignoring malformed decision extras")
		}
	}

	return &trace, nil
}

func nullableJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return data
}

func nullableTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}
