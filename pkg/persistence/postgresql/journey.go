package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jornada-io/jornada/pkg/models"
	"github.com/jornada-io/jornada/pkg/persistence"
)

// JourneyRepository handles journey-related database operations. Nodes and
// edges are stored as JSONB blobs; a journey is always read and written
// whole.
type JourneyRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *JourneyRepository) Journeys(ctx context.Context) ([]*models.Journey, error) {
	query := `
		SELECT
			id
		  , name
		  , status
		  , nodes
		  , edges
		  , metadata
		  , owner
		  , created_at
		  , updated_at
		FROM journeys
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query journeys: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	journeys := make([]*models.Journey, 0)

	for rows.Next() {
		journey, err := r.scanJourney(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journey: %w", err)
		}

		journeys = append(journeys, journey)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journeys: %w", err)
	}

	return journeys, nil
}

func (r *JourneyRepository) JourneyByID(ctx context.Context, id string) (*models.Journey, error) {
	query := `
		SELECT
			id
		  , name
		  , status
		  , nodes
		  , edges
		  , metadata
		  , owner
		  , created_at
		  , updated_at
		FROM journeys
		WHERE id = $1
	`

	journey, err := r.scanJourney(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrJourneyNotFound
		}

		return nil, fmt.Errorf("failed to scan journey: %w", err)
	}

	return journey, nil
}

func (r *JourneyRepository) SaveJourney(ctx context.Context, journey *models.Journey) error {
	nodesJSON, err := json.Marshal(journey.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	edgesJSON, err := json.Marshal(journey.Edges)
	if err != nil {
		return fmt.Errorf("failed to marshal edges: %w", err)
	}

	var metadataJSON []byte
	if journey.Metadata != nil {
		metadataJSON, err = json.Marshal(journey.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO journeys (id, name, status, nodes, edges, metadata, owner, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			metadata = EXCLUDED.metadata,
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		journey.ID, journey.Name, journey.Status, nodesJSON, edgesJSON,
		metadataJSON, nullString(journey.Owner), journey.CreatedAt, journey.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save journey %s: %w", journey.ID, err)
	}

	return nil
}

func (r *JourneyRepository) DeleteJourney(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM journeys WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete journey %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}

	if affected == 0 {
		return persistence.ErrJourneyNotFound
	}

	return nil
}

func (r *JourneyRepository) scanJourney(row rowScanner) (*models.Journey, error) {
	var (
		journey      models.Journey
		nodesJSON    []byte
		edgesJSON    []byte
		metadataJSON []byte
		owner        sql.NullString
	)

	err := row.Scan(&journey.ID, &journey.Name, &journey.Status, &nodesJSON,
		&edgesJSON, &metadataJSON, &owner, &journey.CreatedAt, &journey.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(nodesJSON, &journey.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	if err := json.Unmarshal(edgesJSON, &journey.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &journey.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	journey.Owner = owner.String

	return &journey, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
