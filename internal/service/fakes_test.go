package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pesio-ai/be-wh-repairs/internal/client"
	"github.com/pesio-ai/be-wh-repairs/internal/errors"
	"github.com/pesio-ai/be-wh-repairs/internal/repository"
)

// In-memory store fakes. They mirror the conditional-update semantics of the
// Postgres repository: a mutation whose state guard fails surfaces as a
// forbidden transition, a missing row as not found.

type fakeRepairStore struct {
	repairs map[string]*repository.Repair
	nextID  int

	createErr error
	getErr    error
}

func newFakeRepairStore() *fakeRepairStore {
	return &fakeRepairStore{repairs: make(map[string]*repository.Repair)}
}

func (s *fakeRepairStore) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func (s *fakeRepairStore) Create(_ context.Context, repair *repository.Repair) error {
	if s.createErr != nil {
		return s.createErr
	}
	repair.ID = s.id("rep")
	repair.CreatedAt = time.Now()
	repair.UpdatedAt = repair.CreatedAt
	for pos, item := range repair.Items {
		item.ID = s.id("item")
		item.RepairID = repair.ID
		item.Position = pos
		item.CreatedAt = repair.CreatedAt
	}
	s.repairs[repair.ID] = repair
	return nil
}

func (s *fakeRepairStore) GetByID(_ context.Context, id string) (*repository.Repair, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	repair, ok := s.repairs[id]
	if !ok {
		return nil, errors.NotFound("repair", id)
	}
	return repair, nil
}

func (s *fakeRepairStore) List(_ context.Context, filter repository.ListFilter) ([]*repository.Repair, int64, error) {
	out := make([]*repository.Repair, 0, len(s.repairs))
	for _, r := range s.repairs {
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.ApprovalStatus != nil && r.ApprovalStatus != *filter.ApprovalStatus {
			continue
		}
		out = append(out, r)
	}
	return out, int64(len(out)), nil
}

func (s *fakeRepairStore) Approve(ctx context.Context, id string, approvedBy repository.UserRef, notes string) error {
	repair, ok := s.repairs[id]
	if !ok {
		return errors.NotFound("repair", id)
	}
	if repair.ApprovalStatus != repository.ApprovalPending {
		return errors.ForbiddenTransition("repair is no longer awaiting an approval decision")
	}
	now := time.Now()
	repair.ApprovalStatus = repository.ApprovalApproved
	repair.Status = repository.RepairStatusInProgress
	repair.ApprovedBy = &approvedBy
	repair.ApprovedAt = &now
	repair.ApprovalNotes = &notes
	return nil
}

func (s *fakeRepairStore) Reject(ctx context.Context, id string, rejectedBy repository.UserRef, reason repository.RejectionReason, notes string) error {
	repair, ok := s.repairs[id]
	if !ok {
		return errors.NotFound("repair", id)
	}
	if repair.ApprovalStatus != repository.ApprovalPending {
		return errors.ForbiddenTransition("repair is no longer awaiting an approval decision")
	}
	now := time.Now()
	repair.ApprovalStatus = repository.ApprovalRejected
	repair.ApprovedBy = &rejectedBy
	repair.ApprovedAt = &now
	repair.RejectionReason = &reason
	repair.ApprovalNotes = &notes
	return nil
}

func (s *fakeRepairStore) AssignItems(_ context.Context, repairID string, assignments []repository.ItemAssignment) error {
	repair, ok := s.repairs[repairID]
	if !ok {
		return errors.NotFound("repair", repairID)
	}
	if repair.ApprovalStatus != repository.ApprovalApproved {
		return errors.ForbiddenTransition("repair is not approved for assignment")
	}
	now := time.Now()
	for _, a := range assignments {
		item := repair.Item(a.ItemID)
		if item == nil {
			return errors.NotFound("repair_item", a.ItemID)
		}
		if !item.Assignable() {
			return errors.ForbiddenTransition("item is not eligible for assignment: " + a.ItemID)
		}
		assignee := a.Assignee
		item.AssignedTo = &assignee
		item.AssignedAt = &now
		item.Status = repository.ItemStatusAssignedRepair
	}
	return nil
}

func (s *fakeRepairStore) UpdateItemStatuses(_ context.Context, repairID string, changes []repository.ItemStatusChange, repairStatus *repository.RepairStatus, actor repository.UserRef) error {
	repair, ok := s.repairs[repairID]
	if !ok {
		return errors.NotFound("repair", repairID)
	}
	if repair.ApprovalStatus != repository.ApprovalApproved {
		return errors.ForbiddenTransition("repair is not approved for status updates")
	}
	now := time.Now()
	for _, c := range changes {
		item := repair.Item(c.ItemID)
		if item == nil {
			return errors.NotFound("repair_item", c.ItemID)
		}
		item.Status = c.Status
		if c.Status == repository.ItemStatusCompleted {
			item.Repaired = true
			actorRef := actor
			item.RepairedBy = &actorRef
			item.RepairedAt = &now
			item.RepairNotes = c.RepairNotes
		}
	}
	if repairStatus != nil {
		repair.Status = *repairStatus
		if *repairStatus == repository.RepairStatusCompleted {
			date := now.Format("2006-01-02")
			repair.ActualCompletionDate = &date
		}
	}
	return nil
}

func (s *fakeRepairStore) Update(_ context.Context, id string, patch repository.RepairPatch, diff repository.ItemDiff) error {
	repair, ok := s.repairs[id]
	if !ok {
		return errors.NotFound("repair", id)
	}
	if repair.Status != repository.RepairStatusReported && repair.Status != repository.RepairStatusInProgress {
		return errors.ForbiddenTransition("repair can no longer be edited")
	}

	repair.Description = patch.Description
	if patch.ApproverID != nil {
		repair.ApproverID = *patch.ApproverID
	}
	if patch.Priority != nil {
		repair.Priority = patch.Priority
	}
	if patch.EstimatedCompletionDate != nil {
		repair.EstimatedCompletionDate = patch.EstimatedCompletionDate
	}
	if patch.Cost != nil {
		repair.Cost = patch.Cost
	}
	if patch.RepairNotes != nil {
		repair.RepairNotes = patch.RepairNotes
	}

	for _, upd := range diff.Update {
		item := repair.Item(upd.ID)
		if item == nil {
			return errors.NotFound("repair_item", upd.ID)
		}
		item.Quantity = upd.Quantity
		item.IsRepairable = upd.IsRepairable
		item.Notes = upd.Notes
		item.Position = upd.Position
	}
	for _, ins := range diff.Insert {
		added := *ins
		added.ID = s.id("item")
		added.RepairID = repair.ID
		repair.Items = append(repair.Items, &added)
	}
	for _, del := range diff.Delete {
		kept := repair.Items[:0]
		for _, item := range repair.Items {
			if item.ID != del {
				kept = append(kept, item)
			}
		}
		repair.Items = kept
	}
	return nil
}

func (s *fakeRepairStore) Delete(_ context.Context, id string) error {
	repair, ok := s.repairs[id]
	if !ok {
		return errors.NotFound("repair", id)
	}
	if repair.ApprovalStatus != repository.ApprovalPending ||
		(repair.Status != repository.RepairStatusPending && repair.Status != repository.RepairStatusReported) {
		return errors.ForbiddenTransition("repair can no longer be deleted")
	}
	delete(s.repairs, id)
	return nil
}

// ── Audit fake ───────────────────────────────────────────────────────────────

type fakeAuditStore struct {
	entries   []*repository.AuditEntry
	appendErr error
}

func (s *fakeAuditStore) Append(_ context.Context, entry *repository.AuditEntry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *fakeAuditStore) GetByRepairID(_ context.Context, repairID string) ([]*repository.AuditEntry, error) {
	out := make([]*repository.AuditEntry, 0)
	for _, e := range s.entries {
		if e.RepairID == repairID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeAuditStore) lastAction() string {
	if len(s.entries) == 0 {
		return ""
	}
	return s.entries[len(s.entries)-1].Action
}

// ── Client fakes ─────────────────────────────────────────────────────────────

type fakeDirectory struct {
	users map[string]*client.User
	err   error
}

func (d *fakeDirectory) ResolveUser(_ context.Context, id string) (*client.User, error) {
	if d.err != nil {
		return nil, d.err
	}
	user, ok := d.users[id]
	if !ok {
		return nil, errors.NotFound("user", id)
	}
	return user, nil
}

type fakeCatalog struct {
	items []client.AssignableItem
	err   error
}

func (c *fakeCatalog) ListAvailableItems(_ context.Context, _ string) ([]client.AssignableItem, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.items, nil
}

type publishedEvent struct {
	EventType  string
	RepairID   string
	ActorID    string
	Recipients []string
	Payload    map[string]any
}

type fakeNotifier struct {
	events []publishedEvent
}

func (n *fakeNotifier) PublishRepairEvent(_ context.Context, eventType, repairID, actorID string, recipients []string, payload map[string]any) {
	n.events = append(n.events, publishedEvent{
		EventType:  eventType,
		RepairID:   repairID,
		ActorID:    actorID,
		Recipients: recipients,
		Payload:    payload,
	})
}
