package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modelforge/star-engine/pkg/apperrors"
	"github.com/modelforge/star-engine/pkg/engine"
	"github.com/modelforge/star-engine/pkg/models"
	"github.com/modelforge/star-engine/pkg/repositories"
)

// RevalidationReport summarizes what a metadata refresh changed: candidates
// dropped because their lookup column disappeared, state flips from group
// re-resolution, and the repaired per-table attribute selections.
type RevalidationReport struct {
	Removed            []models.CandidateRef `json:"removed"`
	Changes            models.ChangeSet      `json:"changes"`
	SelectedAttributes map[string][]string   `json:"selected_attributes"`
}

// SessionService owns the in-progress modeling sessions. Each session holds
// one fact-table configuration: its own candidate set, known table metadata,
// and attribute selections. Sessions never share state; a host that edits
// several models concurrently simply holds several sessions.
type SessionService interface {
	// Create starts a session for a fact table with the candidates the
	// metadata provider discovered, in discovery order.
	Create(fact models.Table, tables []models.Table, discovered []models.RelationshipCandidate) (uuid.UUID, error)
	// Get returns a point-in-time snapshot of the session.
	Get(id uuid.UUID) (*models.SessionSnapshot, error)
	// Delete abandons a session. Nothing is persisted until Save, so there
	// is no partial state to roll back.
	Delete(id uuid.UUID) error

	// SetIncluded routes a check/uncheck gesture through the activity
	// resolver and reports every candidate whose state flipped.
	SetIncluded(id uuid.UUID, ref models.CandidateRef, included bool) (models.ChangeSet, error)
	// ToggleActive routes an explicit make-active gesture (double-click)
	// through the resolver.
	ToggleActive(id uuid.UUID, ref models.CandidateRef) (models.ChangeSet, error)
	// GroupStatus returns the conflict-highlight state of one
	// (source, target) relationship group.
	GroupStatus(id uuid.UUID, sourceTable, targetTable string) (engine.GroupStatus, error)

	// ExpandSnowflake computes and registers the parent candidates available
	// for a dimension that is already part of the model.
	ExpandSnowflake(id uuid.UUID, dimension models.Table, lookups []models.LookupAttribute) ([]models.RelationshipCandidate, error)

	// SelectAttributes records the attribute selection for one table.
	SelectAttributes(id uuid.UUID, table string, attributes []string) error

	// BuildSelection finalizes the session into the relationship list and
	// table closure, refusing on unresolved conflicts.
	BuildSelection(id uuid.UUID) (*models.SelectionResult, error)

	// Revalidate reconciles the session against freshly fetched metadata.
	Revalidate(id uuid.UUID, current []models.TableMetadata) (*RevalidationReport, error)

	// Save persists the session; Resume restores a persisted session into
	// memory. The caller is expected to Revalidate after Resume.
	Save(ctx context.Context, id uuid.UUID) error
	Resume(ctx context.Context, id uuid.UUID) (*models.SessionSnapshot, error)
}

type session struct {
	id            uuid.UUID
	fact          models.Table
	tables        map[string]models.Table
	candidates    *engine.CandidateSet
	selectedAttrs map[string][]string
	createdAt     time.Time
	updatedAt     time.Time

	// One workflow drives a session at a time; the mutex only guards
	// against a host calling from multiple goroutines by accident.
	mu sync.Mutex
}

type sessionService struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*session
	repo     repositories.SessionRepository
	logger   *zap.Logger
}

// NewSessionService creates a SessionService. repo may be nil when
// persistence is disabled; Save and Resume then fail.
func NewSessionService(repo repositories.SessionRepository, logger *zap.Logger) SessionService {
	return &sessionService{
		sessions: make(map[uuid.UUID]*session),
		repo:     repo,
		logger:   logger,
	}
}

var _ SessionService = (*sessionService)(nil)

func (s *sessionService) Create(fact models.Table, tables []models.Table, discovered []models.RelationshipCandidate) (uuid.UUID, error) {
	if fact.LogicalName == "" {
		return uuid.Nil, fmt.Errorf("fact table logical name is required")
	}
	for _, c := range discovered {
		if !models.IsValidRelationshipKind(c.Kind) {
			return uuid.Nil, fmt.Errorf("candidate %s: invalid relationship kind %q", c.Ref().Key(), c.Kind)
		}
	}

	sess := &session{
		id:            uuid.New(),
		fact:          fact,
		tables:        map[string]models.Table{models.NormalizeTableName(fact.LogicalName): fact},
		candidates:    engine.NewCandidateSet(),
		selectedAttrs: make(map[string][]string),
		createdAt:     time.Now(),
		updatedAt:     time.Now(),
	}
	for _, t := range tables {
		sess.tables[models.NormalizeTableName(t.LogicalName)] = t
	}
	for i := range discovered {
		c := discovered[i]
		sess.candidates.Add(&c)
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.Info("Created modeling session",
		zap.String("session_id", sess.id.String()),
		zap.String("fact_table", fact.LogicalName),
		zap.Int("candidate_count", sess.candidates.Len()))

	return sess.id, nil
}

func (s *sessionService) Get(id uuid.UUID) (*models.SessionSnapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshot(), nil
}

func (s *sessionService) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return apperrors.ErrSessionNotFound
	}
	delete(s.sessions, id)
	s.logger.Info("Abandoned modeling session", zap.String("session_id", id.String()))
	return nil
}

func (s *sessionService) SetIncluded(id uuid.UUID, ref models.CandidateRef, included bool) (models.ChangeSet, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	changes, err := engine.Include(sess.candidates, ref, included)
	if err != nil {
		return nil, fmt.Errorf("set included on %s: %w", ref.Key(), err)
	}
	sess.updatedAt = time.Now()
	return changes, nil
}

func (s *sessionService) ToggleActive(id uuid.UUID, ref models.CandidateRef) (models.ChangeSet, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	changes, err := engine.ToggleActive(sess.candidates, ref)
	if err != nil {
		return nil, fmt.Errorf("toggle active on %s: %w", ref.Key(), err)
	}
	sess.updatedAt = time.Now()
	return changes, nil
}

func (s *sessionService) GroupStatus(id uuid.UUID, sourceTable, targetTable string) (engine.GroupStatus, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return engine.GroupStatus{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return engine.Status(sess.candidates, sourceTable, targetTable), nil
}

func (s *sessionService) ExpandSnowflake(id uuid.UUID, dimension models.Table, lookups []models.LookupAttribute) ([]models.RelationshipCandidate, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if !sess.reachable(dimension.LogicalName) {
		return nil, fmt.Errorf("expand snowflake for %q: %w", dimension.LogicalName, apperrors.ErrNotInModel)
	}

	// Parents already added for this dimension, included or not.
	var existing []string
	for _, c := range sess.candidates.All() {
		if c.Kind == models.KindSnowflake &&
			models.NormalizeTableName(c.SourceTable) == models.NormalizeTableName(dimension.LogicalName) {
			existing = append(existing, c.TargetTable)
		}
	}

	parents := engine.AvailableParents(dimension, lookups, sess.fact.LogicalName, existing)
	added := make([]models.RelationshipCandidate, 0, len(parents))
	for _, p := range parents {
		if sess.candidates.Add(p) {
			added = append(added, *p)
		}
	}
	sess.tables[models.NormalizeTableName(dimension.LogicalName)] = dimension
	sess.updatedAt = time.Now()

	s.logger.Info("Expanded snowflake dimension",
		zap.String("session_id", id.String()),
		zap.String("dimension", dimension.LogicalName),
		zap.Int("available_parents", len(added)))

	return added, nil
}

func (s *sessionService) SelectAttributes(id uuid.UUID, table string, attributes []string) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	selected := make([]string, len(attributes))
	copy(selected, attributes)
	sess.selectedAttrs[models.NormalizeTableName(table)] = selected
	sess.updatedAt = time.Now()
	return nil
}

func (s *sessionService) BuildSelection(id uuid.UUID) (*models.SelectionResult, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	result, err := engine.BuildSelection(sess.fact, sess.candidates.All(), sess.tables)
	if err != nil {
		s.logger.Warn("Selection build refused",
			zap.String("session_id", id.String()),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Built selection",
		zap.String("session_id", id.String()),
		zap.Int("relationship_count", len(result.Relationships)),
		zap.Int("table_count", len(result.Tables)))
	return result, nil
}

func (s *sessionService) Revalidate(id uuid.UUID, current []models.TableMetadata) (*RevalidationReport, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	currentLookups := make(map[string][]string, len(current))
	for _, meta := range current {
		key := models.NormalizeTableName(meta.Table.LogicalName)
		sess.tables[key] = meta.Table
		names := make([]string, len(meta.Lookups))
		for i, lookup := range meta.Lookups {
			names[i] = lookup.LogicalName
		}
		currentLookups[key] = names
	}

	relResult := engine.RevalidateRelationships(sess.candidates, currentLookups)

	for _, meta := range current {
		key := models.NormalizeTableName(meta.Table.LogicalName)
		selected, tracked := sess.selectedAttrs[key]
		if !tracked {
			continue
		}
		sess.selectedAttrs[key] = engine.RevalidateAttributes(selected, meta.Attributes, sess.requiredAttributes(meta.Table))
	}

	sess.updatedAt = time.Now()
	report := &RevalidationReport{
		Removed:            relResult.Removed,
		Changes:            relResult.Changes,
		SelectedAttributes: sess.copySelectedAttrs(),
	}

	s.logger.Info("Revalidated session against refreshed metadata",
		zap.String("session_id", id.String()),
		zap.Int("refreshed_tables", len(current)),
		zap.Int("removed_candidates", len(report.Removed)))
	return report, nil
}

func (s *sessionService) Save(ctx context.Context, id uuid.UUID) error {
	if s.repo == nil {
		return fmt.Errorf("session persistence is not configured")
	}
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	snap := sess.snapshot()
	sess.mu.Unlock()

	if err := s.repo.Save(ctx, snap); err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	s.logger.Info("Saved modeling session",
		zap.String("session_id", id.String()),
		zap.Int("candidate_count", len(snap.Candidates)))
	return nil
}

func (s *sessionService) Resume(ctx context.Context, id uuid.UUID) (*models.SessionSnapshot, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("session persistence is not configured")
	}
	snap, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resume session %s: %w", id, err)
	}

	sess := &session{
		id:            snap.ID,
		fact:          snap.Fact,
		tables:        make(map[string]models.Table, len(snap.Tables)),
		candidates:    engine.NewCandidateSet(),
		selectedAttrs: make(map[string][]string, len(snap.SelectedAttributes)),
		createdAt:     snap.CreatedAt,
		updatedAt:     snap.UpdatedAt,
	}
	for _, t := range snap.Tables {
		sess.tables[models.NormalizeTableName(t.LogicalName)] = t
	}
	for i := range snap.Candidates {
		c := snap.Candidates[i]
		sess.candidates.Add(&c)
	}
	for table, attrs := range snap.SelectedAttributes {
		selected := make([]string, len(attrs))
		copy(selected, attrs)
		sess.selectedAttrs[models.NormalizeTableName(table)] = selected
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.Info("Resumed modeling session",
		zap.String("session_id", sess.id.String()),
		zap.String("fact_table", sess.fact.LogicalName),
		zap.Int("candidate_count", sess.candidates.Len()))
	return snap, nil
}

func (s *sessionService) lookup(id uuid.UUID) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return sess, nil
}

// reachable reports whether a table participates in the model: it is the
// fact table, a target of an included Direct/Snowflake candidate, or the
// source of an included OneToMany candidate.
func (sess *session) reachable(table string) bool {
	name := models.NormalizeTableName(table)
	if name == models.NormalizeTableName(sess.fact.LogicalName) {
		return true
	}
	for _, c := range sess.candidates.All() {
		if !c.IsIncluded {
			continue
		}
		switch c.Kind {
		case models.KindDirect, models.KindSnowflake:
			if models.NormalizeTableName(c.TargetTable) == name {
				return true
			}
		case models.KindOneToMany:
			if models.NormalizeTableName(c.SourceTable) == name {
				return true
			}
		}
	}
	return false
}

// requiredAttributes are the columns a table cannot lose: primary id and
// name, plus every lookup column still referenced by an included candidate
// sourced at this table.
func (sess *session) requiredAttributes(table models.Table) []string {
	var required []string
	if table.PrimaryIDAttribute != "" {
		required = append(required, table.PrimaryIDAttribute)
	}
	if table.PrimaryNameAttribute != "" {
		required = append(required, table.PrimaryNameAttribute)
	}
	name := models.NormalizeTableName(table.LogicalName)
	for _, c := range sess.candidates.All() {
		if c.IsIncluded && models.NormalizeTableName(c.SourceTable) == name {
			required = append(required, c.SourceAttribute)
		}
	}
	return required
}

// snapshot builds a point-in-time copy. Candidate order is the set's
// insertion order; tables are sorted by logical name for determinism.
func (sess *session) snapshot() *models.SessionSnapshot {
	snap := &models.SessionSnapshot{
		ID:                 sess.id,
		Fact:               sess.fact,
		SelectedAttributes: sess.copySelectedAttrs(),
		CreatedAt:          sess.createdAt,
		UpdatedAt:          sess.updatedAt,
	}
	for _, t := range sess.tables {
		snap.Tables = append(snap.Tables, t)
	}
	sort.Slice(snap.Tables, func(i, j int) bool {
		return snap.Tables[i].LogicalName < snap.Tables[j].LogicalName
	})
	for _, c := range sess.candidates.All() {
		snap.Candidates = append(snap.Candidates, *c)
	}
	return snap
}

func (sess *session) copySelectedAttrs() map[string][]string {
	out := make(map[string][]string, len(sess.selectedAttrs))
	for table, attrs := range sess.selectedAttrs {
		selected := make([]string, len(attrs))
		copy(selected, attrs)
		out[table] = selected
	}
	return out
}
