package repository

import "time"

// ── Status enums ─────────────────────────────────────────────────────────────

// RepairStatus is the operational/progress axis of a repair.
type RepairStatus string

const (
	RepairStatusPending    RepairStatus = "pending"
	RepairStatusReported   RepairStatus = "reported"
	RepairStatusInProgress RepairStatus = "in_progress"
	RepairStatusCompleted  RepairStatus = "completed"
	RepairStatusFailed     RepairStatus = "failed"
	RepairStatusCancelled  RepairStatus = "cancelled"
	RepairStatusResolved   RepairStatus = "resolved"
)

// RepairStatuses lists every valid repair status.
var RepairStatuses = []RepairStatus{
	RepairStatusPending, RepairStatusReported, RepairStatusInProgress,
	RepairStatusCompleted, RepairStatusFailed, RepairStatusCancelled,
	RepairStatusResolved,
}

// Valid reports whether s is a known repair status.
func (s RepairStatus) Valid() bool {
	for _, v := range RepairStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ApprovalStatus is the authorization axis, orthogonal to RepairStatus.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ItemStatus tracks one repair item's progress.
type ItemStatus string

const (
	ItemStatusPending        ItemStatus = "pending"
	ItemStatusInProgress     ItemStatus = "in_progress"
	ItemStatusCompleted      ItemStatus = "completed"
	ItemStatusFailed         ItemStatus = "failed"
	ItemStatusCancelled      ItemStatus = "cancelled"
	ItemStatusAssignedRepair ItemStatus = "assigned_repair"
)

// ItemStatuses lists every valid item status.
var ItemStatuses = []ItemStatus{
	ItemStatusPending, ItemStatusInProgress, ItemStatusCompleted,
	ItemStatusFailed, ItemStatusCancelled, ItemStatusAssignedRepair,
}

// Valid reports whether s is a known item status.
func (s ItemStatus) Valid() bool {
	for _, v := range ItemStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// RejectionReason is the closed set of reasons an approver may pick.
type RejectionReason string

const (
	RejectionInsufficientInformation RejectionReason = "insufficient_information"
	RejectionNotRepairable           RejectionReason = "not_repairable"
	RejectionDuplicateRequest        RejectionReason = "duplicate_request"
	RejectionCostTooHigh             RejectionReason = "cost_too_high"
	RejectionPolicyViolation         RejectionReason = "policy_violation"
	RejectionMissingDocumentation    RejectionReason = "missing_documentation"
	RejectionOther                   RejectionReason = "other"
)

// RejectionReasons lists every valid rejection reason.
var RejectionReasons = []RejectionReason{
	RejectionInsufficientInformation, RejectionNotRepairable,
	RejectionDuplicateRequest, RejectionCostTooHigh,
	RejectionPolicyViolation, RejectionMissingDocumentation, RejectionOther,
}

// Valid reports whether r is a known rejection reason.
func (r RejectionReason) Valid() bool {
	for _, v := range RejectionReasons {
		if r == v {
			return true
		}
	}
	return false
}

// ── Entities ─────────────────────────────────────────────────────────────────

// UserRef is a weak reference to a directory user: the id plus an optional
// cached display snapshot taken at write time. It is never re-resolved on read.
type UserRef struct {
	ID          string  `json:"id"`
	DisplayName *string `json:"display_name,omitempty"`
}

// RepairItem is one product/variant quantity within a repair report.
type RepairItem struct {
	ID           string     `json:"id"`
	RepairID     string     `json:"repair_id"`
	SourceItemID string     `json:"source_item_id"`
	ProductID    string     `json:"product_id"`
	VariantID    *string    `json:"variant_id,omitempty"`
	Quantity     int        `json:"quantity"`
	IsRepairable bool       `json:"is_repairable"`
	Notes        *string    `json:"notes,omitempty"`
	Status       ItemStatus `json:"status"`
	AssignedTo   *UserRef   `json:"assigned_to,omitempty"`
	AssignedAt   *time.Time `json:"assigned_at,omitempty"`
	Repaired     bool       `json:"repaired"`
	RepairedBy   *UserRef   `json:"repaired_by,omitempty"`
	RepairedAt   *time.Time `json:"repaired_at,omitempty"`
	RepairNotes  *string    `json:"repair_notes,omitempty"`
	Position     int        `json:"position"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Assignable reports whether the item can still receive an assignee.
func (i *RepairItem) Assignable() bool {
	return i.IsRepairable && i.AssignedTo == nil
}

// Repair is the aggregate report of one or more damaged items. The repair and
// its items form the unit of consistency: every intent mutates them in one
// transaction.
type Repair struct {
	ID                      string          `json:"id"`
	RepairNumber            string          `json:"repair_number"`
	ReportedBy              UserRef         `json:"reported_by"`
	ApproverID              string          `json:"approver_id"`
	ApprovedBy              *UserRef        `json:"approved_by,omitempty"`
	ApprovedAt              *time.Time      `json:"approved_at,omitempty"`
	Description             string          `json:"description"`
	Status                  RepairStatus    `json:"status"`
	ApprovalStatus          ApprovalStatus  `json:"approval_status"`
	RejectionReason         *RejectionReason `json:"rejection_reason,omitempty"`
	ApprovalNotes           *string         `json:"approval_notes,omitempty"`
	Priority                *string         `json:"priority,omitempty"`
	EstimatedCompletionDate *string         `json:"estimated_completion_date,omitempty"`
	ActualCompletionDate    *string         `json:"actual_completion_date,omitempty"`
	Cost                    *int64          `json:"cost,omitempty"`
	RepairNotes             *string         `json:"repair_notes,omitempty"`
	Items                   []*RepairItem   `json:"items"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// Item returns the item with the given id, or nil.
func (r *Repair) Item(id string) *RepairItem {
	for _, it := range r.Items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

// ── Mutation payloads ────────────────────────────────────────────────────────

// ItemAssignment is one resolved "item gets assignee" instruction produced by
// the allocator and committed atomically by AssignItems.
type ItemAssignment struct {
	ItemID   string
	Assignee UserRef
}

// ItemStatusChange is one item status update within an UpdateItemStatuses
// batch. RepairNotes is only persisted for statuses that complete the item.
type ItemStatusChange struct {
	ItemID      string
	Status      ItemStatus
	RepairNotes *string
}

// RepairPatch carries the header-field changes applied by Update; item
// changes travel separately as an ItemDiff.
type RepairPatch struct {
	Description             string
	ApproverID              *string
	Priority                *string
	EstimatedCompletionDate *string
	Cost                    *int64
	RepairNotes             *string
}

// ListFilter narrows List results.
type ListFilter struct {
	Status         *RepairStatus
	ApprovalStatus *ApprovalStatus
	ReportedBy     *string
	AssignedTo     *string
	From           *time.Time
	To             *time.Time
	Limit          int
	Offset         int
}
