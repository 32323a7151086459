package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-wh-repairs/internal/client"
	"github.com/pesio-ai/be-wh-repairs/internal/errors"
	"github.com/pesio-ai/be-wh-repairs/internal/logger"
	"github.com/pesio-ai/be-wh-repairs/internal/repository"
)

// RepairStore is the persistence gateway for the repair aggregate. Every
// mutation is a conditional read-modify-write keyed on the current state.
type RepairStore interface {
	Create(ctx context.Context, repair *repository.Repair) error
	GetByID(ctx context.Context, id string) (*repository.Repair, error)
	List(ctx context.Context, filter repository.ListFilter) ([]*repository.Repair, int64, error)
	Approve(ctx context.Context, id string, approvedBy repository.UserRef, notes string) error
	Reject(ctx context.Context, id string, rejectedBy repository.UserRef, reason repository.RejectionReason, notes string) error
	AssignItems(ctx context.Context, repairID string, assignments []repository.ItemAssignment) error
	UpdateItemStatuses(ctx context.Context, repairID string, changes []repository.ItemStatusChange, repairStatus *repository.RepairStatus, actor repository.UserRef) error
	Update(ctx context.Context, id string, patch repository.RepairPatch, diff repository.ItemDiff) error
	Delete(ctx context.Context, id string) error
}

// AuditStore appends and reads the per-repair audit trail.
type AuditStore interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
	GetByRepairID(ctx context.Context, repairID string) ([]*repository.AuditEntry, error)
}

// Notifier publishes workflow events. Implementations must be non-fatal.
type Notifier interface {
	PublishRepairEvent(ctx context.Context, eventType, repairID, actorID string, recipients []string, payload map[string]any)
}

// RepairService is the workflow orchestrator: the only component that mutates
// repair state. Every intent runs validation, then the transition guards,
// then a conditional commit, then the non-fatal side effects (audit append,
// notification publish).
type RepairService struct {
	repairs   RepairStore
	audit     AuditStore
	directory client.DirectoryClientInterface
	catalog   client.CatalogClientInterface
	notifier  Notifier
	log       *logger.Logger
}

// NewRepairService creates a new RepairService.
func NewRepairService(
	repairs RepairStore,
	audit AuditStore,
	directory client.DirectoryClientInterface,
	catalog client.CatalogClientInterface,
	notifier Notifier,
	log *logger.Logger,
) *RepairService {
	return &RepairService{
		repairs:   repairs,
		audit:     audit,
		directory: directory,
		catalog:   catalog,
		notifier:  notifier,
		log:       log,
	}
}

// ── CreateRepair ─────────────────────────────────────────────────────────────

// CreateRepair reports a new set of damaged items. The repair starts on
// status=reported, approval_status=pending; product identity is copied from
// the source items at creation time and never re-resolved.
func (s *RepairService) CreateRepair(ctx context.Context, req *CreateRepairRequest) (*repository.Repair, error) {
	reporter, err := s.resolveActiveUser(ctx, req.ReportedBy, "reported_by")
	if err != nil {
		return nil, err
	}
	approver, err := s.resolveActiveUser(ctx, req.ApproverID, "approver_id")
	if err != nil {
		return nil, err
	}

	sources, err := s.sourceIndex(ctx, req.ReportedBy)
	if err != nil {
		return nil, err
	}

	if verr := ValidateCreate(req, sources); verr != nil {
		return nil, verr
	}

	repair := &repository.Repair{
		RepairNumber:   newRepairNumber(),
		ReportedBy:     userRef(reporter),
		ApproverID:     approver.ID,
		Description:    strings.TrimSpace(req.Description),
		Status:         repository.RepairStatusReported,
		ApprovalStatus: repository.ApprovalPending,
		Items:          make([]*repository.RepairItem, 0, len(req.Items)),
	}

	for _, itemReq := range req.Items {
		source := sources[itemReq.SourceItemID]
		repair.Items = append(repair.Items, &repository.RepairItem{
			SourceItemID: source.SourceItemID,
			ProductID:    source.ProductID,
			VariantID:    source.VariantID,
			Quantity:     itemReq.Quantity,
			IsRepairable: itemReq.IsRepairable,
			Notes:        itemReq.Notes,
			Status:       repository.ItemStatusPending,
		})
	}

	if err := s.repairs.Create(ctx, repair); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("repair_id", repair.ID).
		Str("repair_number", repair.RepairNumber).
		Str("reported_by", reporter.ID).
		Int("item_count", len(repair.Items)).
		Msg("Repair reported")

	s.appendAudit(ctx, &repository.AuditEntry{
		RepairID:            repair.ID,
		Action:              "reported",
		PerformedBy:         reporter.ID,
		StatusAfter:         statusStr(repair.Status),
		ApprovalStatusAfter: approvalStr(repair.ApprovalStatus),
		Metadata: map[string]any{
			"repair_number": repair.RepairNumber,
			"item_count":    len(repair.Items),
		},
	})
	s.notifier.PublishRepairEvent(ctx, "repair_reported", repair.ID, reporter.ID,
		[]string{approver.ID},
		map[string]any{"repair_number": repair.RepairNumber})

	return repair, nil
}

// ── Reads ────────────────────────────────────────────────────────────────────

// GetRepair retrieves a repair aggregate by id.
func (s *RepairService) GetRepair(ctx context.Context, id string) (*repository.Repair, error) {
	return s.repairs.GetByID(ctx, id)
}

// ListRepairs lists repairs with filtering and pagination.
func (s *RepairService) ListRepairs(ctx context.Context, filter repository.ListFilter) ([]*repository.Repair, int64, error) {
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repairs.List(ctx, filter)
}

// GetAuditTrail returns the audit log for a repair, oldest first.
func (s *RepairService) GetAuditTrail(ctx context.Context, repairID string) ([]*repository.AuditEntry, error) {
	if _, err := s.repairs.GetByID(ctx, repairID); err != nil {
		return nil, err
	}
	return s.audit.GetByRepairID(ctx, repairID)
}

// ListAssignableItems returns the actor's normalized candidate source items.
func (s *RepairService) ListAssignableItems(ctx context.Context, actorID string) ([]client.AssignableItem, error) {
	return s.catalog.ListAvailableItems(ctx, actorID)
}

// ── ApproveRepair ────────────────────────────────────────────────────────────

// ApproveRepair records the approval decision. Both outcomes are terminal on
// the approval axis; the storage-level conditional update guarantees no two
// concurrent decisions can both succeed.
func (s *RepairService) ApproveRepair(ctx context.Context, req *ApproveRepairRequest) (*repository.Repair, error) {
	if verr := ValidateApproval(req); verr != nil {
		return nil, verr
	}

	actor, err := s.resolveActiveUser(ctx, req.ActedBy, "acted_by")
	if err != nil {
		return nil, err
	}

	repair, err := s.repairs.GetByID(ctx, req.RepairID)
	if err != nil {
		return nil, err
	}
	if err := RequireCanApprove(repair); err != nil {
		return nil, err
	}

	actorRef := userRef(actor)
	switch req.Decision {
	case DecisionApproved:
		err = s.repairs.Approve(ctx, req.RepairID, actorRef, req.Notes)
	case DecisionRejected:
		reason := repository.RejectionReason(*req.RejectionReason)
		err = s.repairs.Reject(ctx, req.RepairID, actorRef, reason, req.Notes)
	}
	if err != nil {
		return nil, err
	}

	updated, err := s.repairs.GetByID(ctx, req.RepairID)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("repair_id", repair.ID).
		Str("repair_number", repair.RepairNumber).
		Str("decision", string(req.Decision)).
		Str("acted_by", actor.ID).
		Msg("Approval decision recorded")

	metadata := map[string]any{"notes": req.Notes}
	if req.Decision == DecisionRejected {
		metadata["rejection_reason"] = *req.RejectionReason
	}
	s.appendAudit(ctx, &repository.AuditEntry{
		RepairID:             repair.ID,
		Action:               string(req.Decision),
		PerformedBy:          actor.ID,
		StatusBefore:         statusStr(repair.Status),
		StatusAfter:          statusStr(updated.Status),
		ApprovalStatusBefore: approvalStr(repair.ApprovalStatus),
		ApprovalStatusAfter:  approvalStr(updated.ApprovalStatus),
		Metadata:             metadata,
	})
	s.notifier.PublishRepairEvent(ctx, "repair_"+string(req.Decision), repair.ID, actor.ID,
		[]string{repair.ReportedBy.ID},
		map[string]any{"repair_number": repair.RepairNumber})

	return updated, nil
}

// ── AssignItems ──────────────────────────────────────────────────────────────

// AssignItems commits a resolved assignment batch atomically: every target
// item gets its assignee and moves to assigned_repair, or nothing does.
func (s *RepairService) AssignItems(ctx context.Context, req *AssignItemsRequest) (*repository.Repair, error) {
	repair, err := s.repairs.GetByID(ctx, req.RepairID)
	if err != nil {
		return nil, err
	}
	if err := RequireCanAssign(repair); err != nil {
		return nil, err
	}

	if verr := ValidateAssignment(req); verr != nil {
		return nil, verr
	}

	users := make(map[string]repository.UserRef)
	for _, id := range AssigneeIDs(req.Selections, req.DefaultAssignee) {
		user, err := s.resolveActiveUser(ctx, id, "assignee")
		if err != nil {
			return nil, err
		}
		users[id] = userRef(user)
	}

	assignments, err := ResolveAssignments(repair, req.Selections, req.DefaultAssignee, users)
	if err != nil {
		return nil, err
	}

	if err := s.repairs.AssignItems(ctx, req.RepairID, assignments); err != nil {
		return nil, err
	}

	updated, err := s.repairs.GetByID(ctx, req.RepairID)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("repair_id", repair.ID).
		Str("repair_number", repair.RepairNumber).
		Int("assigned_count", len(assignments)).
		Str("acted_by", req.ActedBy).
		Msg("Repair items assigned")

	assignees := make([]string, 0, len(assignments))
	for _, a := range assignments {
		assignees = append(assignees, a.Assignee.ID)
	}
	s.appendAudit(ctx, &repository.AuditEntry{
		RepairID:    repair.ID,
		Action:      "assigned",
		PerformedBy: req.ActedBy,
		Metadata: map[string]any{
			"item_count": len(assignments),
			"assignees":  assignees,
		},
	})
	s.notifier.PublishRepairEvent(ctx, "items_assigned", repair.ID, req.ActedBy,
		assignees,
		map[string]any{"repair_number": repair.RepairNumber, "item_count": len(assignments)})

	return updated, nil
}

// ── UpdateItemStatus ─────────────────────────────────────────────────────────

// UpdateItemStatus applies a batch of per-item status changes and, optionally,
// a new overall repair status. No-op batches are rejected by validation.
func (s *RepairService) UpdateItemStatus(ctx context.Context, req *UpdateItemStatusRequest) (*repository.Repair, error) {
	repair, err := s.repairs.GetByID(ctx, req.RepairID)
	if err != nil {
		return nil, err
	}
	if err := RequireCanUpdateStatus(repair); err != nil {
		return nil, err
	}

	if verr := ValidateItemStatusUpdate(req, repair); verr != nil {
		return nil, verr
	}

	actor, err := s.resolveActiveUser(ctx, req.ActedBy, "acted_by")
	if err != nil {
		return nil, err
	}

	changes := make([]repository.ItemStatusChange, 0, len(req.Changes))
	for _, c := range req.Changes {
		changes = append(changes, repository.ItemStatusChange{
			ItemID:      c.ItemID,
			Status:      c.Status,
			RepairNotes: c.RepairNotes,
		})
	}

	var repairStatus *repository.RepairStatus
	if req.RepairStatus != nil && *req.RepairStatus != repair.Status {
		repairStatus = req.RepairStatus
	}

	if err := s.repairs.UpdateItemStatuses(ctx, req.RepairID, changes, repairStatus, userRef(actor)); err != nil {
		return nil, err
	}

	updated, err := s.repairs.GetByID(ctx, req.RepairID)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("repair_id", repair.ID).
		Str("repair_number", repair.RepairNumber).
		Int("change_count", len(changes)).
		Str("acted_by", actor.ID).
		Msg("Repair item statuses updated")

	s.appendAudit(ctx, &repository.AuditEntry{
		RepairID:     repair.ID,
		Action:       "status_updated",
		PerformedBy:  actor.ID,
		StatusBefore: statusStr(repair.Status),
		StatusAfter:  statusStr(updated.Status),
		Metadata:     map[string]any{"change_count": len(changes)},
	})
	s.notifier.PublishRepairEvent(ctx, "status_updated", repair.ID, actor.ID,
		[]string{repair.ReportedBy.ID},
		map[string]any{"repair_number": repair.RepairNumber})

	return updated, nil
}

// ── EditRepair ───────────────────────────────────────────────────────────────

// EditRepair replaces the description and enrichment fields and applies the
// item list replace-by-diff: items with an id are updated in place, items
// without one are validated against current availability and appended, and
// items absent from the payload are removed.
func (s *RepairService) EditRepair(ctx context.Context, req *EditRepairRequest) (*repository.Repair, error) {
	repair, err := s.repairs.GetByID(ctx, req.RepairID)
	if err != nil {
		return nil, err
	}
	if err := RequireCanEdit(repair); err != nil {
		return nil, err
	}

	sources, err := s.editSources(ctx, req)
	if err != nil {
		return nil, err
	}

	if verr := ValidateEdit(req, repair, sources); verr != nil {
		return nil, verr
	}

	if req.ApproverID != nil {
		if _, err := s.resolveActiveUser(ctx, *req.ApproverID, "approver_id"); err != nil {
			return nil, err
		}
	}

	diff := s.buildItemDiff(req, repair, sources)

	patch := repository.RepairPatch{
		Description:             strings.TrimSpace(req.Description),
		ApproverID:              req.ApproverID,
		Priority:                req.Priority,
		EstimatedCompletionDate: req.EstimatedCompletionDate,
		Cost:                    req.Cost,
		RepairNotes:             req.RepairNotes,
	}

	if err := s.repairs.Update(ctx, req.RepairID, patch, diff); err != nil {
		return nil, err
	}

	updated, err := s.repairs.GetByID(ctx, req.RepairID)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("repair_id", repair.ID).
		Str("repair_number", repair.RepairNumber).
		Int("items_updated", len(diff.Update)).
		Int("items_added", len(diff.Insert)).
		Int("items_removed", len(diff.Delete)).
		Str("acted_by", req.ActedBy).
		Msg("Repair edited")

	s.appendAudit(ctx, &repository.AuditEntry{
		RepairID:    repair.ID,
		Action:      "edited",
		PerformedBy: req.ActedBy,
		Metadata: map[string]any{
			"items_updated": len(diff.Update),
			"items_added":   len(diff.Insert),
			"items_removed": len(diff.Delete),
		},
	})

	return updated, nil
}

// editSources fetches the actor's catalog only when the payload appends new
// items; pure in-place edits must not fail on catalog outages.
func (s *RepairService) editSources(ctx context.Context, req *EditRepairRequest) (map[string]client.AssignableItem, error) {
	hasNew := false
	for _, item := range req.Items {
		if item.ID == nil {
			hasNew = true
			break
		}
	}
	if !hasNew {
		return map[string]client.AssignableItem{}, nil
	}
	return s.sourceIndex(ctx, req.ActedBy)
}

// buildItemDiff computes the replace-by-diff item changes. Quantity edits on
// existing items are not re-bounded by source availability — the source was
// consumed when the repair was reported — but growth is logged for review.
func (s *RepairService) buildItemDiff(req *EditRepairRequest, repair *repository.Repair, sources map[string]client.AssignableItem) repository.ItemDiff {
	var diff repository.ItemDiff
	kept := make(map[string]struct{}, len(req.Items))

	for pos, itemReq := range req.Items {
		if itemReq.ID != nil {
			existing := repair.Item(*itemReq.ID)
			kept[*itemReq.ID] = struct{}{}

			if itemReq.Quantity > existing.Quantity {
				s.log.Warn().
					Str("repair_id", repair.ID).
					Str("item_id", existing.ID).
					Int("old_quantity", existing.Quantity).
					Int("new_quantity", itemReq.Quantity).
					Msg("Existing item quantity increased without availability check")
			}

			diff.Update = append(diff.Update, &repository.RepairItem{
				ID:           existing.ID,
				Quantity:     itemReq.Quantity,
				IsRepairable: itemReq.IsRepairable,
				Notes:        itemReq.Notes,
				Position:     pos,
			})
			continue
		}

		source := sources[itemReq.SourceItemID]
		diff.Insert = append(diff.Insert, &repository.RepairItem{
			SourceItemID: source.SourceItemID,
			ProductID:    source.ProductID,
			VariantID:    source.VariantID,
			Quantity:     itemReq.Quantity,
			IsRepairable: itemReq.IsRepairable,
			Notes:        itemReq.Notes,
			Status:       repository.ItemStatusPending,
			Position:     pos,
		})
	}

	for _, existing := range repair.Items {
		if _, ok := kept[existing.ID]; !ok {
			diff.Delete = append(diff.Delete, existing.ID)
		}
	}

	return diff
}

// ── DeleteRepair ─────────────────────────────────────────────────────────────

// DeleteRepairRequest is the DeleteRepair intent payload.
type DeleteRepairRequest struct {
	RepairID string `json:"repair_id"`
	ActedBy  string `json:"acted_by"`
}

// DeleteRepair hard-deletes a repair and its items. Allowed strictly
// pre-approval-processing; anything later is a hard fail to preserve audit
// integrity.
func (s *RepairService) DeleteRepair(ctx context.Context, req *DeleteRepairRequest) error {
	repair, err := s.repairs.GetByID(ctx, req.RepairID)
	if err != nil {
		return err
	}
	if err := RequireCanDelete(repair); err != nil {
		return err
	}

	if err := s.repairs.Delete(ctx, req.RepairID); err != nil {
		return err
	}

	s.log.Info().
		Str("repair_id", repair.ID).
		Str("repair_number", repair.RepairNumber).
		Str("acted_by", req.ActedBy).
		Msg("Repair deleted")

	s.appendAudit(ctx, &repository.AuditEntry{
		RepairID:             repair.ID,
		Action:               "deleted",
		PerformedBy:          req.ActedBy,
		StatusBefore:         statusStr(repair.Status),
		ApprovalStatusBefore: approvalStr(repair.ApprovalStatus),
		Metadata:             map[string]any{"repair_number": repair.RepairNumber},
	})
	s.notifier.PublishRepairEvent(ctx, "repair_deleted", repair.ID, req.ActedBy,
		[]string{repair.ApproverID},
		map[string]any{"repair_number": repair.RepairNumber})

	return nil
}

// ── Internal helpers ─────────────────────────────────────────────────────────

// resolveActiveUser resolves a directory user and requires it to be active.
// Directory misses surface as validation errors on the referencing field.
func (s *RepairService) resolveActiveUser(ctx context.Context, id, field string) (*client.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.InvalidInput(field, "user reference is required")
	}
	user, err := s.directory.ResolveUser(ctx, id)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return nil, errors.InvalidInput(field, "user not found: "+id)
		}
		return nil, err
	}
	if !user.Active {
		return nil, errors.InvalidInput(field, "user is not active: "+id)
	}
	return user, nil
}

// sourceIndex fetches and indexes the actor's available source items.
func (s *RepairService) sourceIndex(ctx context.Context, actorID string) (map[string]client.AssignableItem, error) {
	items, err := s.catalog.ListAvailableItems(ctx, actorID)
	if err != nil {
		return nil, err
	}
	index := make(map[string]client.AssignableItem, len(items))
	for _, item := range items {
		index[item.SourceItemID] = item
	}
	return index, nil
}

// appendAudit writes an audit entry, logging a warning on failure. Audit
// writes never fail the workflow action they describe.
func (s *RepairService) appendAudit(ctx context.Context, entry *repository.AuditEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("repair_id", entry.RepairID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}

// newRepairNumber generates a display identifier like REP-20260828-1A2B3C4D.
func newRepairNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return "REP-" + time.Now().UTC().Format("20060102") + "-" + suffix
}

func userRef(u *client.User) repository.UserRef {
	name := u.DisplayName
	ref := repository.UserRef{ID: u.ID}
	if name != "" {
		ref.DisplayName = &name
	}
	return ref
}

func statusStr(s repository.RepairStatus) *string {
	v := string(s)
	return &v
}

func approvalStr(s repository.ApprovalStatus) *string {
	v := string(s)
	return &v
}
