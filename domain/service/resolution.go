package service

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub017/config"
	"github.com/steiner385/MachShop-sub017/domain/entity"
	"github.com/steiner385/MachShop-sub017/domain/repository"
)

// ResolveOptions carries strategy-specific inputs for conflict resolution.
type ResolveOptions struct {
	// CustomValue is used verbatim by the custom strategy; the caller is fully
	// responsible for its correctness.
	CustomValue interface{}
	ResolvedBy  string
	Notes       string
}

// ConflictResolutionEngine creates conflicts from disagreeing fields, applies
// resolution strategies or standing rules, and tracks the approve/reject
// workflow. The rule registry is the only mutable shared structure it owns
// and is guarded by a single mutex.
type ConflictResolutionEngine struct {
	cfg      config.DetectionConfig
	store    repository.ConflictStore
	clock    repository.Clock
	notifier repository.Notifier
	logger   *zap.Logger

	mu        sync.RWMutex
	conflicts map[string]*entity.Conflict
	rules     map[string]*entity.ResolutionRule

	criticalFields map[entity.EntityType]map[string]bool
}

// NewConflictResolutionEngine creates an engine. The notifier may be nil.
func NewConflictResolutionEngine(
	cfg config.DetectionConfig,
	store repository.ConflictStore,
	clock repository.Clock,
	notifier repository.Notifier,
	logger *zap.Logger,
) *ConflictResolutionEngine {
	critical := make(map[entity.EntityType]map[string]bool, len(cfg.CriticalFields))
	for entityType, fields := range cfg.CriticalFields {
		set := make(map[string]bool, len(fields))
		for _, f := range fields {
			set[f] = true
		}
		critical[entity.EntityType(entityType)] = set
	}
	return &ConflictResolutionEngine{
		cfg:            cfg,
		store:          store,
		clock:          clock,
		notifier:       notifier,
		logger:         logger,
		conflicts:      make(map[string]*entity.Conflict),
		rules:          make(map[string]*entity.ResolutionRule),
		criticalFields: critical,
	}
}

// CreateConflict records a disagreeing field for structured resolution.
// Severity mirrors the detector's critical-field table, escalated to critical
// because a conflict has already been selected for resolution.
func (e *ConflictResolutionEngine) CreateConflict(ctx context.Context, c entity.Conflict) (*entity.Conflict, error) {
	if c.EntityType == "" || c.FieldName == "" {
		return nil, NewValidationError("entity type and field name are required")
	}

	now := e.clock.Now()
	conflict := c
	conflict.ID = entity.NewID("conflict")
	conflict.Severity = e.classifySeverity(c.EntityType, c.FieldName)
	conflict.Status = entity.ConflictStatusUnresolved
	conflict.CreatedAt = now
	conflict.UpdatedAt = now

	e.mu.Lock()
	e.conflicts[conflict.ID] = &conflict
	snapshot := conflict
	e.mu.Unlock()

	if err := e.store.SaveConflict(ctx, &snapshot); err != nil {
		return nil, errors.Wrap(err, "failed to persist conflict")
	}
	return &snapshot, nil
}

// ResolveConflict applies a strategy and records the winning value. Resolving
// the same conflict twice with the same strategy yields the same resolved
// value.
func (e *ConflictResolutionEngine) ResolveConflict(ctx context.Context, id string, strategy entity.ResolutionStrategy, opts ResolveOptions) (*entity.Conflict, error) {
	if !strategy.Valid() {
		return nil, NewValidationError("unknown resolution strategy %q", strategy)
	}

	e.mu.Lock()
	conflict, ok := e.conflicts[id]
	if !ok {
		e.mu.Unlock()
		return nil, &NotFoundError{Kind: "conflict", ID: id}
	}
	if conflict.Status == entity.ConflictStatusApproved || conflict.Status == entity.ConflictStatusRejected {
		e.mu.Unlock()
		return nil, NewValidationError("conflict %s has already been %s", id, conflict.Status)
	}

	resolution, resolvedValue := e.applyStrategy(conflict, strategy, opts)
	now := e.clock.Now()
	conflict.Strategy = strategy
	conflict.Resolution = resolution
	conflict.ResolvedValue = resolvedValue
	conflict.Status = entity.ConflictStatusResolved
	conflict.ResolvedAt = &now
	conflict.UpdatedAt = now
	if opts.ResolvedBy != "" {
		conflict.ResolvedBy = opts.ResolvedBy
	}
	if opts.Notes != "" {
		conflict.Notes = opts.Notes
	}
	snapshot := *conflict
	e.mu.Unlock()

	if err := e.store.SaveConflict(ctx, &snapshot); err != nil {
		return nil, errors.Wrap(err, "failed to persist conflict resolution")
	}
	e.notify(ctx, repository.EventConflictResolved, &snapshot)

	e.logger.Info("Conflict resolved",
		zap.String("conflict_id", id),
		zap.String("strategy", string(strategy)),
		zap.String("resolution", string(resolution)),
	)
	return &snapshot, nil
}

// ResolveWithRules resolves a conflict using the highest-priority matching
// rule. It returns a validation error when no rule applies, so callers must
// then supply an explicit strategy.
func (e *ConflictResolutionEngine) ResolveWithRules(ctx context.Context, id string) (*entity.Conflict, error) {
	e.mu.RLock()
	conflict, ok := e.conflicts[id]
	if !ok {
		e.mu.RUnlock()
		return nil, &NotFoundError{Kind: "conflict", ID: id}
	}
	entityType, fieldName := conflict.EntityType, conflict.FieldName
	e.mu.RUnlock()

	rule := e.FindApplicableRule(entityType, fieldName)
	if rule == nil {
		return nil, NewValidationError("no resolution rule matches %s.%s", entityType, fieldName)
	}
	return e.ResolveConflict(ctx, id, rule.Strategy, ResolveOptions{ResolvedBy: "rule:" + rule.ID})
}

// ApproveResolution marks a resolved value as authoritative.
func (e *ConflictResolutionEngine) ApproveResolution(ctx context.Context, id, approverID string) (*entity.Conflict, error) {
	return e.finishWorkflow(ctx, id, approverID, "", entity.ConflictStatusApproved, repository.EventConflictApproved)
}

// RejectResolution rejects a resolved value with a mandatory reason.
func (e *ConflictResolutionEngine) RejectResolution(ctx context.Context, id, approverID, notes string) (*entity.Conflict, error) {
	if notes == "" {
		return nil, NewValidationError("a rejection reason is required")
	}
	return e.finishWorkflow(ctx, id, approverID, notes, entity.ConflictStatusRejected, repository.EventConflictRejected)
}

// GetConflict returns a snapshot of a conflict, or nil when unknown.
func (e *ConflictResolutionEngine) GetConflict(id string) *entity.Conflict {
	e.mu.RLock()
	defer e.mu.RUnlock()
	conflict, ok := e.conflicts[id]
	if !ok {
		return nil
	}
	snapshot := *conflict
	return &snapshot
}

// HasUnresolvedConflict reports whether an unresolved conflict exists for the
// given entity and field. Force-applied syncs are blocked while one exists.
func (e *ConflictResolutionEngine) HasUnresolvedConflict(entityType entity.EntityType, entityID, fieldName string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, conflict := range e.conflicts {
		if conflict.Status == entity.ConflictStatusUnresolved &&
			conflict.EntityType == entityType &&
			conflict.EntityID == entityID &&
			conflict.FieldName == fieldName {
			return true
		}
	}
	return false
}

// RegisterResolutionRule adds or updates a standing policy.
func (e *ConflictResolutionEngine) RegisterResolutionRule(rule entity.ResolutionRule) (*entity.ResolutionRule, error) {
	if rule.EntityType == "" || rule.FieldName == "" {
		return nil, NewValidationError("rule entity type and field name are required")
	}
	if !rule.Strategy.Valid() {
		return nil, NewValidationError("unknown resolution strategy %q", rule.Strategy)
	}

	now := e.clock.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if rule.ID == "" {
		rule.ID = entity.NewID("rule")
		rule.CreatedAt = now
	} else if existing, ok := e.rules[rule.ID]; ok {
		rule.CreatedAt = existing.CreatedAt
	} else {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	stored := rule
	e.rules[rule.ID] = &stored
	return &rule, nil
}

// FindApplicableRule returns the highest-priority enabled rule matching the
// entity type and field, or nil when none matches.
func (e *ConflictResolutionEngine) FindApplicableRule(entityType entity.EntityType, fieldName string) *entity.ResolutionRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var matches []*entity.ResolutionRule
	for _, rule := range e.rules {
		if rule.Enabled && rule.EntityType == entityType && rule.FieldName == fieldName {
			matches = append(matches, rule)
		}
	}
	if len(matches) == 0 {
		return nil
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Priority != matches[j].Priority {
			return matches[i].Priority > matches[j].Priority
		}
		return matches[i].ID < matches[j].ID
	})
	snapshot := *matches[0]
	return &snapshot
}

func (e *ConflictResolutionEngine) applyStrategy(conflict *entity.Conflict, strategy entity.ResolutionStrategy, opts ResolveOptions) (entity.Resolution, interface{}) {
	switch strategy {
	case entity.StrategyLastWriteWins:
		if conflict.TargetTimestamp.After(conflict.SourceTimestamp) {
			return entity.ResolutionTarget, conflict.TargetValue
		}
		return entity.ResolutionSource, conflict.SourceValue
	case entity.StrategySourcePriority:
		return entity.ResolutionSource, conflict.SourceValue
	case entity.StrategyTargetPriority:
		return entity.ResolutionTarget, conflict.TargetValue
	default:
		return entity.ResolutionCustom, opts.CustomValue
	}
}

func (e *ConflictResolutionEngine) finishWorkflow(ctx context.Context, id, approverID, notes string, status entity.ConflictStatus, eventType string) (*entity.Conflict, error) {
	if approverID == "" {
		return nil, NewValidationError("approver id is required")
	}

	e.mu.Lock()
	conflict, ok := e.conflicts[id]
	if !ok {
		e.mu.Unlock()
		return nil, &NotFoundError{Kind: "conflict", ID: id}
	}
	if conflict.Status != entity.ConflictStatusResolved {
		e.mu.Unlock()
		return nil, NewValidationError("conflict %s is %s, expected resolved", id, conflict.Status)
	}

	conflict.Status = status
	conflict.ResolvedBy = approverID
	if notes != "" {
		conflict.Notes = notes
	}
	conflict.UpdatedAt = e.clock.Now()
	snapshot := *conflict
	e.mu.Unlock()

	if err := e.store.SaveConflict(ctx, &snapshot); err != nil {
		return nil, errors.Wrap(err, "failed to persist conflict workflow state")
	}
	e.notify(ctx, eventType, &snapshot)
	return &snapshot, nil
}

func (e *ConflictResolutionEngine) classifySeverity(entityType entity.EntityType, fieldName string) entity.Severity {
	if e.criticalFields[entityType][fieldName] {
		return entity.SeverityCritical
	}
	return entity.SeverityMedium
}

func (e *ConflictResolutionEngine) notify(ctx context.Context, eventType string, conflict *entity.Conflict) {
	if e.notifier == nil {
		return
	}
	event := repository.IntegrationEvent{
		ID:         entity.NewID("evt"),
		Type:       eventType,
		EntityType: conflict.EntityType,
		SubjectID:  conflict.ID,
		Payload: map[string]interface{}{
			"field":      conflict.FieldName,
			"status":     string(conflict.Status),
			"resolution": string(conflict.Resolution),
		},
		OccurredAt: e.clock.Now(),
	}
	if err := e.notifier.Notify(ctx, event); err != nil {
		e.logger.Warn("Notification sink failed", zap.String("conflict_id", conflict.ID), zap.Error(err))
	}
}
