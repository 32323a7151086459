package service

import (
	"github.com/samber/lo"

	"github.com/pesio-ai/be-wh-repairs/internal/errors"
	"github.com/pesio-ai/be-wh-repairs/internal/repository"
)

// Transition guards. This is the single authoritative module for "may this
// action happen now" — every call site, including the HTTP surface, must go
// through these predicates, and the repository re-enforces the same
// conditions inside its conditional updates so guard check and commit stay
// atomic with respect to concurrent actors.

// CanEdit permits edits while the repair is reported or mid-repair. What may
// actually change narrows once approval has occurred; see ValidateEdit.
func CanEdit(r *repository.Repair) bool {
	return r.Status == repository.RepairStatusReported ||
		r.Status == repository.RepairStatusInProgress
}

// CanDelete permits deletion strictly pre-approval-processing: the progress
// axis must not have moved past reported and no approval decision may exist.
func CanDelete(r *repository.Repair) bool {
	if r.ApprovalStatus != repository.ApprovalPending {
		return false
	}
	return r.Status == repository.RepairStatusPending ||
		r.Status == repository.RepairStatusReported
}

// CanApprove permits an approval decision only while one is still pending.
// Approved and rejected are terminal on the approval axis.
func CanApprove(r *repository.Repair) bool {
	return r.ApprovalStatus == repository.ApprovalPending
}

// CanAssign permits assignment once approved, while at least one repairable
// item is still unassigned.
func CanAssign(r *repository.Repair) bool {
	if r.ApprovalStatus != repository.ApprovalApproved {
		return false
	}
	return lo.SomeBy(r.Items, func(i *repository.RepairItem) bool {
		return i.Assignable()
	})
}

// CanUpdateStatus permits bulk status updates once the repair is approved.
// This is deliberately the approval-axis-only predicate: requiring a
// particular progress status on top of it would block recording failures on
// repairs that already completed or were cancelled.
func CanUpdateStatus(r *repository.Repair) bool {
	return r.ApprovalStatus == repository.ApprovalApproved
}

// ── Require helpers ──────────────────────────────────────────────────────────

// RequireCanEdit returns a forbidden-transition error when editing is not allowed.
func RequireCanEdit(r *repository.Repair) error {
	if !CanEdit(r) {
		return errors.ForbiddenTransition("repair can no longer be edited")
	}
	return nil
}

// RequireCanDelete returns a forbidden-transition error when deletion is not allowed.
func RequireCanDelete(r *repository.Repair) error {
	if !CanDelete(r) {
		return errors.ForbiddenTransition("repair can no longer be deleted")
	}
	return nil
}

// RequireCanApprove returns a forbidden-transition error when no decision is pending.
func RequireCanApprove(r *repository.Repair) error {
	if !CanApprove(r) {
		return errors.ForbiddenTransition("repair is no longer awaiting an approval decision")
	}
	return nil
}

// RequireCanAssign returns a forbidden-transition error when assignment is not allowed.
func RequireCanAssign(r *repository.Repair) error {
	if r.ApprovalStatus != repository.ApprovalApproved {
		return errors.ForbiddenTransition("repair is not approved for assignment")
	}
	if !CanAssign(r) {
		return errors.ForbiddenTransition("no items are eligible for assignment")
	}
	return nil
}

// RequireCanUpdateStatus returns a forbidden-transition error when status
// updates are not allowed.
func RequireCanUpdateStatus(r *repository.Repair) error {
	if !CanUpdateStatus(r) {
		return errors.ForbiddenTransition("repair is not approved for status updates")
	}
	return nil
}
