package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/modelforge/star-engine/pkg/apperrors"
	"github.com/modelforge/star-engine/pkg/database"
	"github.com/modelforge/star-engine/pkg/models"
)

// SessionRepository persists modeling session snapshots. Candidate rows
// carry an explicit position because the resolver's insertion-order
// tie-break must survive a save/resume round-trip.
type SessionRepository interface {
	Save(ctx context.Context, snap *models.SessionSnapshot) error
	Get(ctx context.Context, id uuid.UUID) (*models.SessionSnapshot, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type sessionRepository struct {
	db *database.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *database.DB) SessionRepository {
	return &sessionRepository{db: db}
}

var _ SessionRepository = (*sessionRepository)(nil)

func (r *sessionRepository) Save(ctx context.Context, snap *models.SessionSnapshot) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now()
	createdAt := snap.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO engine_sessions (
			id, fact_logical_name, fact_display_name,
			fact_primary_id_attribute, fact_primary_name_attribute,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			fact_logical_name = EXCLUDED.fact_logical_name,
			fact_display_name = EXCLUDED.fact_display_name,
			fact_primary_id_attribute = EXCLUDED.fact_primary_id_attribute,
			fact_primary_name_attribute = EXCLUDED.fact_primary_name_attribute,
			updated_at = EXCLUDED.updated_at`,
		snap.ID, snap.Fact.LogicalName, snap.Fact.DisplayName,
		snap.Fact.PrimaryIDAttribute, snap.Fact.PrimaryNameAttribute,
		createdAt, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	// Child rows are replaced wholesale; a snapshot is the full state.
	for _, table := range []string{"engine_session_tables", "engine_session_candidates", "engine_session_attributes"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE session_id = $1", snap.ID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, t := range snap.Tables {
		_, err := tx.Exec(ctx, `
			INSERT INTO engine_session_tables (
				session_id, logical_name, display_name,
				primary_id_attribute, primary_name_attribute
			) VALUES ($1, $2, $3, $4, $5)`,
			snap.ID, t.LogicalName, t.DisplayName, t.PrimaryIDAttribute, t.PrimaryNameAttribute,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session table %s: %w", t.LogicalName, err)
		}
	}

	for position, c := range snap.Candidates {
		_, err := tx.Exec(ctx, `
			INSERT INTO engine_session_candidates (
				session_id, position, source_table, source_attribute, target_table,
				display_name, kind, is_active, is_included, assume_referential_integrity
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			snap.ID, position, c.SourceTable, c.SourceAttribute, c.TargetTable,
			c.DisplayName, c.Kind, c.IsActive, c.IsIncluded, c.AssumeReferentialIntegrity,
		)
		if err != nil {
			return fmt.Errorf("failed to insert candidate %s: %w", c.Ref().Key(), err)
		}
	}

	tables := make([]string, 0, len(snap.SelectedAttributes))
	for table := range snap.SelectedAttributes {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		for position, attribute := range snap.SelectedAttributes[table] {
			_, err := tx.Exec(ctx, `
				INSERT INTO engine_session_attributes (session_id, table_name, position, attribute)
				VALUES ($1, $2, $3, $4)`,
				snap.ID, table, position, attribute,
			)
			if err != nil {
				return fmt.Errorf("failed to insert attribute selection for %s: %w", table, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit session save: %w", err)
	}
	return nil
}

func (r *sessionRepository) Get(ctx context.Context, id uuid.UUID) (*models.SessionSnapshot, error) {
	snap := &models.SessionSnapshot{
		ID:                 id,
		SelectedAttributes: make(map[string][]string),
	}

	err := r.db.QueryRow(ctx, `
		SELECT fact_logical_name, fact_display_name,
		       fact_primary_id_attribute, fact_primary_name_attribute,
		       created_at, updated_at
		FROM engine_sessions
		WHERE id = $1`, id,
	).Scan(
		&snap.Fact.LogicalName, &snap.Fact.DisplayName,
		&snap.Fact.PrimaryIDAttribute, &snap.Fact.PrimaryNameAttribute,
		&snap.CreatedAt, &snap.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT logical_name, display_name, primary_id_attribute, primary_name_attribute
		FROM engine_session_tables
		WHERE session_id = $1
		ORDER BY logical_name`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query session tables: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t models.Table
		if err := rows.Scan(&t.LogicalName, &t.DisplayName, &t.PrimaryIDAttribute, &t.PrimaryNameAttribute); err != nil {
			return nil, fmt.Errorf("failed to scan session table: %w", err)
		}
		snap.Tables = append(snap.Tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session tables: %w", err)
	}

	candidateRows, err := r.db.Query(ctx, `
		SELECT source_table, source_attribute, target_table,
		       display_name, kind, is_active, is_included, assume_referential_integrity
		FROM engine_session_candidates
		WHERE session_id = $1
		ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query session candidates: %w", err)
	}
	defer candidateRows.Close()
	for candidateRows.Next() {
		var c models.RelationshipCandidate
		if err := candidateRows.Scan(
			&c.SourceTable, &c.SourceAttribute, &c.TargetTable,
			&c.DisplayName, &c.Kind, &c.IsActive, &c.IsIncluded, &c.AssumeReferentialIntegrity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session candidate: %w", err)
		}
		snap.Candidates = append(snap.Candidates, c)
	}
	if err := candidateRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session candidates: %w", err)
	}

	attrRows, err := r.db.Query(ctx, `
		SELECT table_name, attribute
		FROM engine_session_attributes
		WHERE session_id = $1
		ORDER BY table_name, position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query attribute selections: %w", err)
	}
	defer attrRows.Close()
	for attrRows.Next() {
		var table, attribute string
		if err := attrRows.Scan(&table, &attribute); err != nil {
			return nil, fmt.Errorf("failed to scan attribute selection: %w", err)
		}
		snap.SelectedAttributes[table] = append(snap.SelectedAttributes[table], attribute)
	}
	if err := attrRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attribute selections: %w", err)
	}

	return snap, nil
}

func (r *sessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM engine_sessions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrSessionNotFound
	}
	return nil
}
