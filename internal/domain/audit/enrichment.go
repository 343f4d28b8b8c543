// Package audit provides the audit trail contract and audit field enrichment
// for documents.
package audit

import (
	"context"

	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// Action is what happened to an audited document.
type Action string

const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionPost     Action = "post"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
)

// Record is one audit trail entry. Changes is marshalled to JSON.
type Record struct {
	EntityType string
	EntityID   id.ID
	Action     Action
	Changes    map[string]any
}

// Recorder persists audit records. Record is called inside the transaction
// that made the change.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// Nop discards records.
type Nop struct{}

func (Nop) Record(context.Context, Record) error { return nil }

// EnrichCreatedBy sets CreatedBy and UpdatedBy from the request actor.
// If no actor is in context, this is a no-op.
func EnrichCreatedBy(ctx context.Context, base *entity.BaseEntity) {
	actorID := appctx.GetActorID(ctx)
	if actorID == "" || base == nil {
		return
	}
	base.CreatedBy = actorID
	base.UpdatedBy = actorID
}

// EnrichUpdatedBy sets only UpdatedBy.
func EnrichUpdatedBy(ctx context.Context, base *entity.BaseEntity) {
	actorID := appctx.GetActorID(ctx)
	if actorID == "" || base == nil {
		return
	}
	base.UpdatedBy = actorID
}
