package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-wh-repairs/internal/database"
	"github.com/pesio-ai/be-wh-repairs/internal/errors"
)

// RepairRepository handles all durable mutations of the repair aggregate.
//
// Every state-changing statement is a conditional update keyed on the current
// status / approval_status, so that guard check and commit form one atomic
// unit at the storage layer. A conditional miss on an existing row surfaces
// as ErrCodeForbiddenTransition; a miss on a missing row as ErrCodeNotFound.
type RepairRepository struct {
	db *database.DB
	sb sq.StatementBuilderType
}

// NewRepairRepository creates a new RepairRepository.
func NewRepairRepository(db *database.DB) *RepairRepository {
	return &RepairRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

const repairColumns = `
	id, repair_number, reported_by, reported_by_name, approver_id,
	approved_by, approved_by_name, approved_at,
	description, status, approval_status,
	rejection_reason, approval_notes,
	priority, estimated_completion_date, actual_completion_date,
	cost, repair_notes, created_at, updated_at`

const itemColumns = `
	id, repair_id, source_item_id, product_id, variant_id,
	quantity, is_repairable, notes, status,
	assigned_to, assigned_to_name, assigned_at,
	repaired, repaired_by, repaired_at, repair_notes,
	position, created_at, updated_at`

// ── Create ───────────────────────────────────────────────────────────────────

// Create inserts a repair and its items in one transaction.
func (r *RepairRepository) Create(ctx context.Context, repair *Repair) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO repairs (repair_number, reported_by, reported_by_name,
			                     approver_id, description, status, approval_status)
			VALUES ($1, $2, $3, $4, $5, $6::repair_status, $7::approval_status)
			RETURNING id, created_at, updated_at
		`

		err := tx.QueryRow(ctx, query,
			repair.RepairNumber,
			repair.ReportedBy.ID,
			repair.ReportedBy.DisplayName,
			repair.ApproverID,
			repair.Description,
			repair.Status,
			repair.ApprovalStatus,
		).Scan(&repair.ID, &repair.CreatedAt, &repair.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create repair")
		}

		for pos, item := range repair.Items {
			item.RepairID = repair.ID
			item.Position = pos
			if err := insertItem(ctx, tx, item); err != nil {
				return err
			}
		}

		return nil
	})
}

func insertItem(ctx context.Context, tx pgx.Tx, item *RepairItem) error {
	query := `
		INSERT INTO repair_items (repair_id, source_item_id, product_id, variant_id,
		                          quantity, is_repairable, notes, status, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::item_status, $9)
		RETURNING id, created_at, updated_at
	`

	err := tx.QueryRow(ctx, query,
		item.RepairID,
		item.SourceItemID,
		item.ProductID,
		item.VariantID,
		item.Quantity,
		item.IsRepairable,
		item.Notes,
		item.Status,
		item.Position,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create repair item")
	}
	return nil
}

// ── Read ─────────────────────────────────────────────────────────────────────

// GetByID retrieves a repair with all its items.
func (r *RepairRepository) GetByID(ctx context.Context, id string) (*Repair, error) {
	query := `SELECT ` + repairColumns + ` FROM repairs WHERE id = $1`

	repair, err := scanRepair(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("repair", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get repair")
	}

	items, err := r.GetItems(ctx, repair.ID)
	if err != nil {
		return nil, err
	}
	repair.Items = items

	return repair, nil
}

// GetItems retrieves all items of a repair in insertion order.
func (r *RepairRepository) GetItems(ctx context.Context, repairID string) ([]*RepairItem, error) {
	query := `SELECT ` + itemColumns + `
		FROM repair_items
		WHERE repair_id = $1
		ORDER BY position ASC, created_at ASC`

	rows, err := r.db.Query(ctx, query, repairID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get repair items")
	}
	defer rows.Close()

	items := make([]*RepairItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan repair item")
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// List retrieves repairs matching the filter, newest first, without items.
func (r *RepairRepository) List(ctx context.Context, filter ListFilter) ([]*Repair, int64, error) {
	where := sq.And{}
	if filter.Status != nil {
		where = append(where, sq.Expr("status = ?::repair_status", *filter.Status))
	}
	if filter.ApprovalStatus != nil {
		where = append(where, sq.Expr("approval_status = ?::approval_status", *filter.ApprovalStatus))
	}
	if filter.ReportedBy != nil {
		where = append(where, sq.Eq{"reported_by": *filter.ReportedBy})
	}
	if filter.AssignedTo != nil {
		where = append(where, sq.Expr(
			"id IN (SELECT repair_id FROM repair_items WHERE assigned_to = ?)",
			*filter.AssignedTo,
		))
	}
	if filter.From != nil {
		where = append(where, sq.GtOrEq{"created_at": *filter.From})
	}
	if filter.To != nil {
		where = append(where, sq.LtOrEq{"created_at": *filter.To})
	}

	countSQL, countArgs, err := r.sb.Select("COUNT(*)").From("repairs").Where(where).ToSql()
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to build count query")
	}

	var total int64
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count repairs")
	}

	q := r.sb.Select(
		"id", "repair_number", "reported_by", "reported_by_name", "approver_id",
		"approved_by", "approved_by_name", "approved_at",
		"description", "status", "approval_status",
		"rejection_reason", "approval_notes",
		"priority", "estimated_completion_date", "actual_completion_date",
		"cost", "repair_notes", "created_at", "updated_at",
	).
		From("repairs").
		Where(where).
		OrderBy("created_at DESC, repair_number DESC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset))

	listSQL, listArgs, err := q.ToSql()
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to build list query")
	}

	rows, err := r.db.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list repairs")
	}
	defer rows.Close()

	repairs := make([]*Repair, 0)
	for rows.Next() {
		repair, err := scanRepair(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan repair")
		}
		repairs = append(repairs, repair)
	}
	return repairs, total, rows.Err()
}

// ── Approval decisions ───────────────────────────────────────────────────────

// Approve records an approval. Conditional on approval_status = 'pending' so
// two concurrent decisions can never both succeed.
func (r *RepairRepository) Approve(ctx context.Context, id string, approvedBy UserRef, notes string) error {
	query := `
		UPDATE repairs
		SET approval_status  = 'approved'::approval_status,
		    approved_by      = $2,
		    approved_by_name = $3,
		    approved_at      = NOW(),
		    approval_notes   = $4,
		    status           = 'in_progress'::repair_status,
		    updated_at       = NOW()
		WHERE id = $1
		  AND approval_status = 'pending'::approval_status
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, approvedBy.ID, approvedBy.DisplayName, notes).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return r.transitionMiss(ctx, id, "repair is no longer awaiting an approval decision")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to approve repair")
	}
	return nil
}

// Reject records a rejection with its reason. Terminal on the approval axis.
func (r *RepairRepository) Reject(ctx context.Context, id string, rejectedBy UserRef, reason RejectionReason, notes string) error {
	query := `
		UPDATE repairs
		SET approval_status  = 'rejected'::approval_status,
		    approved_by      = $2,
		    approved_by_name = $3,
		    approved_at      = NOW(),
		    rejection_reason = $4::rejection_reason,
		    approval_notes   = $5,
		    updated_at       = NOW()
		WHERE id = $1
		  AND approval_status = 'pending'::approval_status
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, rejectedBy.ID, rejectedBy.DisplayName, reason, notes).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return r.transitionMiss(ctx, id, "repair is no longer awaiting an approval decision")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to reject repair")
	}
	return nil
}

// ── Assignment ───────────────────────────────────────────────────────────────

// AssignItems sets the assignee on each target item and moves it to
// assigned_repair, all in one transaction. The repair row is locked and
// re-checked for approval so a concurrent rejection cannot race the
// assignment; each item update is conditional on the item still being
// repairable and unassigned.
func (r *RepairRepository) AssignItems(ctx context.Context, repairID string, assignments []ItemAssignment) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var approval ApprovalStatus
		err := tx.QueryRow(ctx,
			`SELECT approval_status FROM repairs WHERE id = $1 FOR UPDATE`,
			repairID,
		).Scan(&approval)
		if err == pgx.ErrNoRows {
			return errors.NotFound("repair", repairID)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to lock repair")
		}
		if approval != ApprovalApproved {
			return errors.ForbiddenTransition("repair is not approved for assignment")
		}

		query := `
			UPDATE repair_items
			SET assigned_to      = $3,
			    assigned_to_name = $4,
			    assigned_at      = NOW(),
			    status           = 'assigned_repair'::item_status,
			    updated_at       = NOW()
			WHERE id = $1
			  AND repair_id = $2
			  AND is_repairable
			  AND assigned_to IS NULL
			RETURNING id
		`

		for _, a := range assignments {
			var returnedID string
			err := tx.QueryRow(ctx, query,
				a.ItemID, repairID, a.Assignee.ID, a.Assignee.DisplayName,
			).Scan(&returnedID)
			if err == pgx.ErrNoRows {
				return errors.ForbiddenTransition("item is not eligible for assignment: " + a.ItemID)
			}
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to assign repair item")
			}
		}

		return nil
	})
}

// ── Status updates ───────────────────────────────────────────────────────────

// UpdateItemStatuses applies a batch of item status changes and, optionally, a
// new overall repair status, in one transaction guarded on the repair being
// approved. Items moved to completed get their terminal repair metadata
// stamped; a completed overall status stamps actual_completion_date.
func (r *RepairRepository) UpdateItemStatuses(
	ctx context.Context,
	repairID string,
	changes []ItemStatusChange,
	repairStatus *RepairStatus,
	actor UserRef,
) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var approval ApprovalStatus
		err := tx.QueryRow(ctx,
			`SELECT approval_status FROM repairs WHERE id = $1 FOR UPDATE`,
			repairID,
		).Scan(&approval)
		if err == pgx.ErrNoRows {
			return errors.NotFound("repair", repairID)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to lock repair")
		}
		if approval != ApprovalApproved {
			return errors.ForbiddenTransition("repair is not approved for status updates")
		}

		itemQuery := `
			UPDATE repair_items
			SET status       = $3::item_status,
			    repaired     = CASE WHEN $3::item_status = 'completed' THEN TRUE ELSE repaired END,
			    repaired_by  = CASE WHEN $3::item_status = 'completed' THEN $4 ELSE repaired_by END,
			    repaired_at  = CASE WHEN $3::item_status = 'completed' THEN NOW() ELSE repaired_at END,
			    repair_notes = COALESCE($5, repair_notes),
			    updated_at   = NOW()
			WHERE id = $1 AND repair_id = $2
			RETURNING id
		`

		for _, c := range changes {
			var returnedID string
			err := tx.QueryRow(ctx, itemQuery,
				c.ItemID, repairID, c.Status, actor.ID, c.RepairNotes,
			).Scan(&returnedID)
			if err == pgx.ErrNoRows {
				return errors.NotFound("repair_item", c.ItemID)
			}
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to update item status")
			}
		}

		if repairStatus != nil {
			repairQuery := `
				UPDATE repairs
				SET status = $2::repair_status,
				    actual_completion_date = CASE
				        WHEN $2::repair_status = 'completed' THEN CURRENT_DATE
				        ELSE actual_completion_date
				    END,
				    updated_at = NOW()
				WHERE id = $1
				RETURNING id
			`
			var returnedID string
			if err := tx.QueryRow(ctx, repairQuery, repairID, *repairStatus).Scan(&returnedID); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to update repair status")
			}
		}

		return nil
	})
}

// ── Edit ─────────────────────────────────────────────────────────────────────

// ItemDiff is the resolved replace-by-diff item changes for Update. The
// service computes it; the repository only executes it transactionally.
type ItemDiff struct {
	Update []*RepairItem
	Insert []*RepairItem
	Delete []string
}

// Update applies an edit to the repair header and its item list, conditional
// on status still being reported or in_progress.
func (r *RepairRepository) Update(ctx context.Context, id string, patch RepairPatch, diff ItemDiff) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		headerQuery := `
			UPDATE repairs
			SET description               = $2,
			    approver_id               = COALESCE($3, approver_id),
			    priority                  = COALESCE($4, priority),
			    estimated_completion_date = COALESCE($5, estimated_completion_date),
			    cost                      = COALESCE($6, cost),
			    repair_notes              = COALESCE($7, repair_notes),
			    updated_at                = NOW()
			WHERE id = $1
			  AND status IN ('reported'::repair_status, 'in_progress'::repair_status)
			RETURNING id
		`

		var returnedID string
		err := tx.QueryRow(ctx, headerQuery,
			id,
			patch.Description,
			patch.ApproverID,
			patch.Priority,
			patch.EstimatedCompletionDate,
			patch.Cost,
			patch.RepairNotes,
		).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return r.transitionMiss(ctx, id, "repair can no longer be edited")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update repair")
		}

		itemQuery := `
			UPDATE repair_items
			SET quantity      = $3,
			    is_repairable = $4,
			    notes         = $5,
			    position      = $6,
			    updated_at    = NOW()
			WHERE id = $1 AND repair_id = $2
			RETURNING id
		`
		for _, item := range diff.Update {
			var updatedID string
			err := tx.QueryRow(ctx, itemQuery,
				item.ID, id, item.Quantity, item.IsRepairable, item.Notes, item.Position,
			).Scan(&updatedID)
			if err == pgx.ErrNoRows {
				return errors.NotFound("repair_item", item.ID)
			}
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to update repair item")
			}
		}

		for _, item := range diff.Insert {
			item.RepairID = id
			if err := insertItem(ctx, tx, item); err != nil {
				return err
			}
		}

		for _, itemID := range diff.Delete {
			tag, err := tx.Exec(ctx,
				`DELETE FROM repair_items WHERE id = $1 AND repair_id = $2`,
				itemID, id,
			)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete repair item")
			}
			if tag.RowsAffected() == 0 {
				return errors.NotFound("repair_item", itemID)
			}
		}

		return nil
	})
}

// ── Delete ───────────────────────────────────────────────────────────────────

// Delete hard-deletes a repair, cascading to its items. Conditional on the
// deletion window: pre-approval-processing only.
func (r *RepairRepository) Delete(ctx context.Context, id string) error {
	query := `
		DELETE FROM repairs
		WHERE id = $1
		  AND status IN ('pending'::repair_status, 'reported'::repair_status)
		  AND approval_status = 'pending'::approval_status
	`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete repair")
	}
	if tag.RowsAffected() == 0 {
		return r.transitionMiss(ctx, id, "repair can no longer be deleted")
	}
	return nil
}

// ── Helpers ──────────────────────────────────────────────────────────────────

// transitionMiss disambiguates a conditional-update miss: the row either moved
// past the guard (forbidden transition) or never existed (not found).
func (r *RepairRepository) transitionMiss(ctx context.Context, id, reason string) error {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM repairs WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to check repair existence")
	}
	if !exists {
		return errors.NotFound("repair", id)
	}
	return errors.ForbiddenTransition(reason)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepair(row rowScanner) (*Repair, error) {
	repair := &Repair{}
	var (
		reportedByName *string
		approvedBy     *string
		approvedByName *string
	)

	err := row.Scan(
		&repair.ID,
		&repair.RepairNumber,
		&repair.ReportedBy.ID,
		&reportedByName,
		&repair.ApproverID,
		&approvedBy,
		&approvedByName,
		&repair.ApprovedAt,
		&repair.Description,
		&repair.Status,
		&repair.ApprovalStatus,
		&repair.RejectionReason,
		&repair.ApprovalNotes,
		&repair.Priority,
		&repair.EstimatedCompletionDate,
		&repair.ActualCompletionDate,
		&repair.Cost,
		&repair.RepairNotes,
		&repair.CreatedAt,
		&repair.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	repair.ReportedBy.DisplayName = reportedByName
	if approvedBy != nil {
		repair.ApprovedBy = &UserRef{ID: *approvedBy, DisplayName: approvedByName}
	}
	return repair, nil
}

func scanItem(row rowScanner) (*RepairItem, error) {
	item := &RepairItem{}
	var (
		assignedTo     *string
		assignedToName *string
		repairedBy     *string
	)

	err := row.Scan(
		&item.ID,
		&item.RepairID,
		&item.SourceItemID,
		&item.ProductID,
		&item.VariantID,
		&item.Quantity,
		&item.IsRepairable,
		&item.Notes,
		&item.Status,
		&assignedTo,
		&assignedToName,
		&item.AssignedAt,
		&item.Repaired,
		&repairedBy,
		&item.RepairedAt,
		&item.RepairNotes,
		&item.Position,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if assignedTo != nil {
		item.AssignedTo = &UserRef{ID: *assignedTo, DisplayName: assignedToName}
	}
	if repairedBy != nil {
		item.RepairedBy = &UserRef{ID: *repairedBy}
	}
	return item, nil
}
