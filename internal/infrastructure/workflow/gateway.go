// Package workflow connects the ledger to the external approval engine.
// Posting notifications are written to an outbox in the posting
// transaction; finalized transactions are looked up in a lock registry the
// workflow engine maintains.
package workflow

import (
	"context"
	"fmt"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/workflow"
)

// EventWriter stores events in the current transaction.
type EventWriter interface {
	Publish(ctx context.Context, event workflow.Event) error
}

// LockRegistry answers whether the workflow finalized a transaction.
type LockRegistry interface {
	IsLocked(ctx context.Context, transactionID id.ID) (bool, error)
}

// Gateway implements workflow.Collaborator.
type Gateway struct {
	events EventWriter
	locks  LockRegistry
}

var _ workflow.Collaborator = (*Gateway)(nil)

// NewGateway creates a gateway. A nil registry never reports a lock.
func NewGateway(events EventWriter, locks LockRegistry) *Gateway {
	return &Gateway{events: events, locks: locks}
}

func (g *Gateway) IsLocked(ctx context.Context, transactionID id.ID) (bool, error) {
	if g.locks == nil {
		return false, nil
	}
	return g.locks.IsLocked(ctx, transactionID)
}

func (g *Gateway) OnPosted(ctx context.Context, event workflow.Event) error {
	if err := g.events.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}
