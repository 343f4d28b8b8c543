// Package inventory_count provides the stocktake document and its
// reconciliation against the batch ledger.
package inventory_count

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/enum"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
)

// Status is the lifecycle state of a count.
type Status uint8

const (
	StatusDraft      Status = 1
	StatusInProgress Status = 2
	StatusCompleted  Status = 3
	StatusCancelled  Status = 4
)

var statusTable = enum.NewTable("inventory count status",
	enum.Member[Status]{Value: StatusDraft, Name: "DRAFT"},
	enum.Member[Status]{Value: StatusInProgress, Name: "IN_PROGRESS"},
	enum.Member[Status]{Value: StatusCompleted, Name: "COMPLETED"},
	enum.Member[Status]{Value: StatusCancelled, Name: "CANCELLED"},
)

// ParseStatus converts an integer code.
func ParseStatus(code int) (Status, error) { return statusTable.FromCode(code) }

func (s Status) String() string { return statusTable.Name(s) }

func (s Status) Valid() bool { return statusTable.Valid(s) }

func (s Status) MarshalJSON() ([]byte, error) { return statusTable.Marshal(s) }

func (s *Status) UnmarshalJSON(data []byte) error { return statusTable.Unmarshal(data, s) }

// InventoryCount is a physical count of batches in one warehouse. The
// transaction date is the count date.
type InventoryCount struct {
	entity.Transaction

	Status      Status     `db:"status" json:"status"`
	StartedAt   *time.Time `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completedAt,omitempty"`

	// AdjustmentTransactionID is the adjustment reconciliation created, if
	// any counted quantity differed.
	AdjustmentTransactionID *id.ID `db:"adjustment_transaction_id" json:"adjustmentTransactionId,omitempty"`

	Lines []Line `db:"-" json:"lines"`
}

// Line is the counted quantity of one batch. ActualQuantity is in UnitID;
// system and difference quantities are in the material's base unit.
type Line struct {
	LineID         id.ID           `db:"line_id" json:"lineId"`
	LineNo         int             `db:"line_no" json:"lineNo"`
	LedgerEntryID  id.ID           `db:"ledger_entry_id" json:"inventoryLedgerId"`
	MaterialID     id.ID           `db:"material_id" json:"materialId"`
	UnitID         id.ID           `db:"unit_id" json:"unitId"`
	ActualQuantity decimal.Decimal `db:"actual_quantity" json:"actualQuantity"`
	Notes          string          `db:"notes" json:"notes,omitempty"`

	ActualBaseQuantity decimal.Decimal `db:"actual_base_quantity" json:"actualBaseQuantity"`
	SystemQuantity     decimal.Decimal `db:"system_quantity" json:"systemQuantity"`
	DifferenceQuantity decimal.Decimal `db:"difference_quantity" json:"differenceQuantity"`

	AdjustmentLineID *id.ID `db:"adjustment_line_id" json:"adjustmentLineId,omitempty"`
	ErrorCode        string `db:"error_code" json:"errorCode,omitempty"`
	ErrorMessage     string `db:"error_message" json:"errorMessage,omitempty"`
}

// New creates a draft count.
func New(warehouseID id.ID, countDate time.Time) *InventoryCount {
	return &InventoryCount{
		Transaction: entity.NewTransaction(warehouseID, countDate),
		Status:      StatusDraft,
		Lines:       make([]Line, 0),
	}
}

// AddLine appends a counted batch.
func (c *InventoryCount) AddLine(entryID, materialID, unitID id.ID, actual decimal.Decimal, notes string) {
	c.Lines = append(c.Lines, Line{
		LineID:         id.New(),
		LineNo:         len(c.Lines) + 1,
		LedgerEntryID:  entryID,
		MaterialID:     materialID,
		UnitID:         unitID,
		ActualQuantity: actual,
		Notes:          notes,
	})
}

// Renumber assigns line numbers and missing line ids.
func (c *InventoryCount) Renumber() {
	for i := range c.Lines {
		if id.IsNil(c.Lines[i].LineID) {
			c.Lines[i].LineID = id.New()
		}
		c.Lines[i].LineNo = i + 1
	}
}

// Pairs returns the ledger pairs of the counted batches.
func (c *InventoryCount) Pairs() []ledger.Pair {
	out := make([]ledger.Pair, 0, len(c.Lines))
	for _, l := range c.Lines {
		out = append(out, ledger.Pair{WarehouseID: c.WarehouseID, MaterialID: l.MaterialID})
	}
	return out
}

// Validate implements entity.Validatable.
func (c *InventoryCount) Validate(ctx context.Context) error {
	if err := c.Transaction.Validate(ctx); err != nil {
		return err
	}
	if len(c.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}

	seen := make(map[id.ID]int, len(c.Lines))
	for _, line := range c.Lines {
		if id.IsNil(line.LedgerEntryID) || id.IsNil(line.MaterialID) || id.IsNil(line.UnitID) {
			return apperror.NewValidation("batch, material and unit are required").
				WithDetail("field", "lines").
				WithDetail("lineNo", line.LineNo)
		}
		if line.ActualQuantity.IsNegative() {
			return apperror.NewInvalidArgument("actual quantity must not be negative").
				WithDetail("lineNo", line.LineNo).
				WithDetail("actualQuantity", line.ActualQuantity.String())
		}
		if first, dup := seen[line.LedgerEntryID]; dup {
			return apperror.NewInvalidArgument("batch is counted twice").
				WithDetail("lineNo", line.LineNo).
				WithDetail("firstLineNo", first).
				WithDetail("ledgerEntryId", line.LedgerEntryID.String())
		}
		seen[line.LedgerEntryID] = line.LineNo
	}
	return nil
}

// checkEditable fails once the count is completed or cancelled.
func (c *InventoryCount) checkEditable() error {
	if c.Status == StatusDraft || c.Status == StatusInProgress {
		return nil
	}
	return apperror.NewBusinessRule(apperror.CodeInvalidStatus, "inventory count is "+c.Status.String()+" and cannot be changed").
		WithDetail("entity", "inventory count").
		WithDetail("status", c.Status.String())
}

// transition moves the count to next if the current status allows it.
func (c *InventoryCount) transition(next Status) error {
	allowed := false
	switch next {
	case StatusInProgress:
		allowed = c.Status == StatusDraft
	case StatusCompleted:
		allowed = c.Status == StatusInProgress
	case StatusCancelled:
		allowed = c.Status == StatusDraft || c.Status == StatusInProgress
	}
	if !allowed {
		return apperror.NewInvalidStatus("inventory count", c.Status.String(), next.String())
	}

	now := time.Now().UTC()
	switch next {
	case StatusInProgress:
		c.StartedAt = &now
	case StatusCompleted:
		c.CompletedAt = &now
	}
	c.Status = next
	c.Touch()
	return nil
}
