// Package domain provides the collaborators and helpers shared by the
// document services.
package domain

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/numerator"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/posting"
	"stockledger/internal/domain/workflow"
)

// Deps are the collaborators every document service uses.
type Deps struct {
	Engine     *posting.Engine
	Normalizer *ledger.Normalizer
	Policies   ledger.PolicyResolver
	Previewer  *ledger.Previewer
	Numerator  numerator.Generator
	TxManager  tx.ReadOnlyManager
	Workflow   workflow.Collaborator
	Audit      audit.Recorder

	// PriceScale rounds derived unit prices (transfer cost per unit).
	PriceScale int32
}

// WithDefaults fills optional collaborators.
func (d Deps) WithDefaults() Deps {
	if d.Workflow == nil {
		d.Workflow = workflow.Nop{}
	}
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	if d.PriceScale <= 0 {
		d.PriceScale = types.DefaultPriceScale
	}
	return d
}

// Ledger returns the ledger store the engine writes to.
func (d Deps) Ledger() ledger.Store {
	return d.Engine.Store()
}

// AssignNumber sets the document number if it is still empty. Numbers follow
// the year of the transaction date.
func (d Deps) AssignNumber(ctx context.Context, t *entity.Transaction, prefix string, strategy numerator.Strategy) error {
	if t.Number != "" {
		return nil
	}
	period := t.TransactionDate
	if period.IsZero() {
		period = time.Now().UTC()
	}
	number, err := d.Numerator.GetNextNumber(ctx, numerator.DefaultConfig(prefix), &numerator.Options{Strategy: strategy}, period)
	if err != nil {
		return fmt.Errorf("generate number: %w", err)
	}
	t.Number = number
	return nil
}

// EnsureModifiable fails with a locked-transaction error when the document is
// locked by its own flag or by the workflow engine.
func (d Deps) EnsureModifiable(ctx context.Context, entityName string, t *entity.Transaction) error {
	if err := t.CanModify(entityName); err != nil {
		return err
	}
	locked, err := d.Workflow.IsLocked(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("workflow lock check: %w", err)
	}
	if locked {
		return apperror.NewLockedTransaction(entityName, t.ID.String())
	}
	return nil
}

// EnsureSameVersion fails when a document changed between the read that
// chose the allocation locks and the read inside the posting transaction.
func EnsureSameVersion(entityName string, before, current *entity.Transaction) error {
	if before.Version != current.Version {
		return apperror.NewConcurrentModification(entityName, current.ID.String())
	}
	return nil
}

// Finalize writes the audit record and the workflow notification of a
// posted document. It runs inside the posting transaction.
func (d Deps) Finalize(ctx context.Context, entityType string, t *entity.Transaction, action audit.Action, eventType string, changes map[string]any) error {
	if err := d.Audit.Record(ctx, audit.Record{
		EntityType: entityType,
		EntityID:   t.ID,
		Action:     action,
		Changes:    changes,
	}); err != nil {
		return fmt.Errorf("audit %s: %w", action, err)
	}
	if eventType == "" {
		return nil
	}
	event := workflow.Event{
		Type:          eventType,
		TransactionID: t.ID,
		Number:        t.Number,
		WarehouseID:   t.WarehouseID,
		OccurredAt:    time.Now().UTC(),
		Data:          changes,
	}
	if err := d.Workflow.OnPosted(ctx, event); err != nil {
		return fmt.Errorf("workflow notify: %w", err)
	}
	return nil
}

// NormalizeValidationErr keeps structured errors and wraps plain ones.
func NormalizeValidationErr(err error) error {
	if err == nil || apperror.IsAppError(err) {
		return err
	}
	return apperror.NewValidation(err.Error())
}
