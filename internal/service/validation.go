package service

import (
	"fmt"
	"strings"

	"github.com/pesio-ai/be-wh-repairs/internal/client"
	"github.com/pesio-ai/be-wh-repairs/internal/errors"
	"github.com/pesio-ai/be-wh-repairs/internal/repository"
)

// The validation engine: one pure function per intent, each returning a
// field-keyed validation error (nil when the payload is valid). Expected
// validation failures never panic and never touch storage.

// ApprovalDecision is the approver's choice.
type ApprovalDecision string

const (
	DecisionApproved ApprovalDecision = "approved"
	DecisionRejected ApprovalDecision = "rejected"
)

// ── Create ───────────────────────────────────────────────────────────────────

// CreateItemRequest is one item line in a create payload.
type CreateItemRequest struct {
	SourceItemID string  `json:"source_item_id"`
	Quantity     int     `json:"quantity"`
	IsRepairable bool    `json:"is_repairable"`
	Notes        *string `json:"notes,omitempty"`
}

// CreateRepairRequest is the CreateRepair intent payload.
type CreateRepairRequest struct {
	ReportedBy  string              `json:"reported_by"`
	ApproverID  string              `json:"approver_id"`
	Description string              `json:"description"`
	Items       []CreateItemRequest `json:"items"`
}

// ValidateCreate checks a create payload against the actor's available source
// items. At creation time every item is new, so an unresolvable source is a
// validation failure (unlike edit, where preexisting items may outlive their
// catalog entry).
func ValidateCreate(req *CreateRepairRequest, sources map[string]client.AssignableItem) *errors.Error {
	fields := make(map[string]string)

	if strings.TrimSpace(req.ApproverID) == "" {
		fields["approver_id"] = "approver is required"
	}
	if strings.TrimSpace(req.Description) == "" {
		fields["description"] = "description is required"
	}
	if len(req.Items) < 1 {
		fields["items"] = "at least one item is required"
	}

	for i, item := range req.Items {
		key := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(item.SourceItemID) == "" {
			fields[key+".source_item_id"] = "source item is required"
			continue
		}
		if item.Quantity <= 0 {
			fields[key+".quantity"] = "quantity must be positive"
			continue
		}
		source, ok := sources[item.SourceItemID]
		if !ok {
			fields[key+".source_item_id"] = "source item not found or not available"
			continue
		}
		if item.Quantity > source.Available {
			fields[key+".quantity"] = fmt.Sprintf(
				"quantity %d exceeds available %d", item.Quantity, source.Available)
		}
	}

	return errors.Validation(fields)
}

// ── Approval ─────────────────────────────────────────────────────────────────

// ApproveRepairRequest is the ApproveRepair intent payload.
type ApproveRepairRequest struct {
	RepairID        string           `json:"repair_id"`
	ActedBy         string           `json:"acted_by"`
	Decision        ApprovalDecision `json:"decision"`
	RejectionReason *string          `json:"rejection_reason,omitempty"`
	Notes           string           `json:"notes"`
}

// ValidateApproval checks an approval decision. Rejections require a reason
// from the closed enum; notes are required regardless of decision.
func ValidateApproval(req *ApproveRepairRequest) *errors.Error {
	fields := make(map[string]string)

	switch req.Decision {
	case DecisionApproved:
	case DecisionRejected:
		if req.RejectionReason == nil || *req.RejectionReason == "" {
			fields["rejection_reason"] = "rejection reason is required"
		} else if !repository.RejectionReason(*req.RejectionReason).Valid() {
			fields["rejection_reason"] = "unknown rejection reason"
		}
	default:
		fields["decision"] = "decision must be approved or rejected"
	}

	if strings.TrimSpace(req.Notes) == "" {
		fields["notes"] = "notes are required"
	}

	return errors.Validation(fields)
}

// ── Assignment ───────────────────────────────────────────────────────────────

// AssignmentSelection is one selected item with an optional per-item assignee.
// An empty Assignee falls back to the batch's default assignee.
type AssignmentSelection struct {
	ItemID   string  `json:"item_id"`
	Assignee *string `json:"assignee,omitempty"`
}

// AssignItemsRequest is the AssignItems intent payload.
type AssignItemsRequest struct {
	RepairID        string                `json:"repair_id"`
	ActedBy         string                `json:"acted_by"`
	DefaultAssignee *string               `json:"default_assignee,omitempty"`
	Selections      []AssignmentSelection `json:"selections"`
}

// ValidateAssignment checks an assignment batch: at least one item must be
// selected, and every selection must end up with an assignee (its own or the
// batch default).
func ValidateAssignment(req *AssignItemsRequest) *errors.Error {
	fields := make(map[string]string)

	if len(req.Selections) < 1 {
		fields["selections"] = "select at least one item"
	}

	hasDefault := req.DefaultAssignee != nil && strings.TrimSpace(*req.DefaultAssignee) != ""
	seen := make(map[string]struct{}, len(req.Selections))
	for i, sel := range req.Selections {
		key := fmt.Sprintf("selections[%d]", i)
		if strings.TrimSpace(sel.ItemID) == "" {
			fields[key+".item_id"] = "item is required"
			continue
		}
		if _, dup := seen[sel.ItemID]; dup {
			fields[key+".item_id"] = "item selected more than once"
			continue
		}
		seen[sel.ItemID] = struct{}{}

		hasOwn := sel.Assignee != nil && strings.TrimSpace(*sel.Assignee) != ""
		if !hasOwn && !hasDefault {
			fields[key+".assignee"] = "assignee is required"
		}
	}

	return errors.Validation(fields)
}

// ── Item status update ───────────────────────────────────────────────────────

// ItemStatusChangeRequest is one item status entry in an update batch.
type ItemStatusChangeRequest struct {
	ItemID      string                `json:"item_id"`
	Status      repository.ItemStatus `json:"status"`
	RepairNotes *string               `json:"repair_notes,omitempty"`
}

// UpdateItemStatusRequest is the UpdateItemStatus intent payload.
type UpdateItemStatusRequest struct {
	RepairID     string                    `json:"repair_id"`
	ActedBy      string                    `json:"acted_by"`
	Changes      []ItemStatusChangeRequest `json:"changes"`
	RepairStatus *repository.RepairStatus  `json:"repair_status,omitempty"`
}

// ValidateItemStatusUpdate checks an update batch against the current
// aggregate. A batch where every item status matches its current value and
// the overall status is unchanged is rejected as "no changes detected" — a
// silently accepted no-op would pollute the audit trail.
func ValidateItemStatusUpdate(req *UpdateItemStatusRequest, current *repository.Repair) *errors.Error {
	fields := make(map[string]string)

	changed := false
	for i, c := range req.Changes {
		key := fmt.Sprintf("changes[%d]", i)
		if !c.Status.Valid() {
			fields[key+".status"] = "unknown item status"
			continue
		}
		item := current.Item(c.ItemID)
		if item == nil {
			fields[key+".item_id"] = "item does not belong to this repair"
			continue
		}
		if item.Status != c.Status {
			changed = true
		}
	}

	if req.RepairStatus != nil {
		if !req.RepairStatus.Valid() {
			fields["repair_status"] = "unknown repair status"
		} else if *req.RepairStatus != current.Status {
			changed = true
		}
	}

	if len(fields) == 0 && !changed {
		fields["changes"] = "no changes detected"
	}

	return errors.Validation(fields)
}

// ── Edit ─────────────────────────────────────────────────────────────────────

// ItemEditRequest is one item row in an edit payload. A nil ID appends a new
// item; existing items absent from the payload are removed.
type ItemEditRequest struct {
	ID           *string `json:"id,omitempty"`
	SourceItemID string  `json:"source_item_id"`
	Quantity     int     `json:"quantity"`
	IsRepairable bool    `json:"is_repairable"`
	Notes        *string `json:"notes,omitempty"`
}

// EditRepairRequest is the EditRepair intent payload.
type EditRepairRequest struct {
	RepairID                string            `json:"repair_id"`
	ActedBy                 string            `json:"acted_by"`
	Description             string            `json:"description"`
	ApproverID              *string           `json:"approver_id,omitempty"`
	Priority                *string           `json:"priority,omitempty"`
	EstimatedCompletionDate *string           `json:"estimated_completion_date,omitempty"`
	Cost                    *int64            `json:"cost,omitempty"`
	RepairNotes             *string           `json:"repair_notes,omitempty"`
	Items                   []ItemEditRequest `json:"items"`
}

// ValidateEdit checks an edit payload against the current aggregate and the
// actor's available source items.
//
// New items (nil ID) are validated against current source availability.
// Existing items only need a positive quantity: their source was already
// consumed when the repair was reported, and the catalog entry may be gone
// entirely, so availability is deliberately not re-checked for them. An
// already-assigned item cannot lose its repairable flag, since only
// repairable items may hold an assignee.
func ValidateEdit(req *EditRepairRequest, current *repository.Repair, sources map[string]client.AssignableItem) *errors.Error {
	fields := make(map[string]string)

	if strings.TrimSpace(req.Description) == "" {
		fields["description"] = "description is required"
	}
	if len(req.Items) < 1 {
		fields["items"] = "a repair must keep at least one item"
	}

	if req.ApproverID != nil && current.ApprovalStatus != repository.ApprovalPending {
		fields["approver_id"] = "approver can no longer be changed after an approval decision"
	}

	if current.ApprovalStatus != repository.ApprovalApproved {
		if req.Priority != nil {
			fields["priority"] = "settable only after approval"
		}
		if req.EstimatedCompletionDate != nil {
			fields["estimated_completion_date"] = "settable only after approval"
		}
		if req.Cost != nil {
			fields["cost"] = "settable only after approval"
		}
		if req.RepairNotes != nil {
			fields["repair_notes"] = "settable only after approval"
		}
	}

	for i, item := range req.Items {
		key := fmt.Sprintf("items[%d]", i)
		if item.Quantity <= 0 {
			fields[key+".quantity"] = "quantity must be positive"
			continue
		}

		if item.ID != nil {
			existing := current.Item(*item.ID)
			if existing == nil {
				fields[key+".id"] = "item does not belong to this repair"
				continue
			}
			// An item may only hold an assignee while it is repairable.
			if !item.IsRepairable && existing.AssignedTo != nil {
				fields[key+".is_repairable"] = "item is assigned and cannot be marked non-repairable"
			}
			continue
		}

		// New item: must resolve against the current catalog.
		if strings.TrimSpace(item.SourceItemID) == "" {
			fields[key+".source_item_id"] = "source item is required"
			continue
		}
		source, ok := sources[item.SourceItemID]
		if !ok {
			fields[key+".source_item_id"] = "source item not found or not available"
			continue
		}
		if item.Quantity > source.Available {
			fields[key+".quantity"] = fmt.Sprintf(
				"quantity %d exceeds available %d", item.Quantity, source.Available)
		}
	}

	return errors.Validation(fields)
}
