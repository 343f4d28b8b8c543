package memory

import (
	"context"
	"slices"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/workflow"
)

// Outbox keeps workflow events in the arena, so they commit or roll back
// with the posting that raised them.
type Outbox struct {
	store *Store
}

// NewOutbox creates an outbox on s.
func NewOutbox(s *Store) *Outbox { return &Outbox{store: s} }

// Publish appends event.
func (o *Outbox) Publish(ctx context.Context, event workflow.Event) error {
	return o.store.write(ctx, func(st *state) error {
		st.outbox = append(st.outbox, event)
		return nil
	})
}

// Events returns the committed events in publication order.
func (o *Outbox) Events(ctx context.Context) []workflow.Event {
	var out []workflow.Event
	_ = o.store.read(ctx, func(st *state) error {
		out = slices.Clone(st.outbox)
		return nil
	})
	return out
}

// AuditLog is the arena-backed audit.Recorder.
type AuditLog struct {
	store *Store
}

var _ audit.Recorder = (*AuditLog)(nil)

// NewAuditLog creates an audit log on s.
func NewAuditLog(s *Store) *AuditLog { return &AuditLog{store: s} }

func (a *AuditLog) Record(ctx context.Context, rec audit.Record) error {
	return a.store.write(ctx, func(st *state) error {
		st.audit = append(st.audit, rec)
		return nil
	})
}

// History returns the records of one entity, oldest first.
func (a *AuditLog) History(ctx context.Context, entityID id.ID) []audit.Record {
	var out []audit.Record
	_ = a.store.read(ctx, func(st *state) error {
		for _, rec := range st.audit {
			if rec.EntityID == entityID {
				out = append(out, rec)
			}
		}
		return nil
	})
	return out
}
