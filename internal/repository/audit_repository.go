package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pesio-ai/be-wh-repairs/internal/database"
	"github.com/pesio-ai/be-wh-repairs/internal/errors"
)

// AuditEntry is one immutable record of a workflow action on a repair.
type AuditEntry struct {
	ID                   string         `json:"id"`
	RepairID             string         `json:"repair_id"`
	Action               string         `json:"action"` // reported | approved | rejected | assigned | status_updated | edited | deleted
	PerformedBy          string         `json:"performed_by"`
	PerformedAt          time.Time      `json:"performed_at"`
	StatusBefore         *string        `json:"status_before,omitempty"`
	StatusAfter          *string        `json:"status_after,omitempty"`
	ApprovalStatusBefore *string        `json:"approval_status_before,omitempty"`
	ApprovalStatusAfter  *string        `json:"approval_status_after,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
}

// AuditRepository appends and reads repair audit log entries. The table has a
// delete-prevention trigger so Append is the only mutation exposed.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO repair_audit_log
		    (repair_id, action, performed_by,
		     status_before, status_after,
		     approval_status_before, approval_status_after,
		     metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, performed_at
	`

	return r.db.QueryRow(ctx, query,
		entry.RepairID,
		entry.Action,
		entry.PerformedBy,
		entry.StatusBefore,
		entry.StatusAfter,
		entry.ApprovalStatusBefore,
		entry.ApprovalStatusAfter,
		metadataJSON,
	).Scan(&entry.ID, &entry.PerformedAt)
}

// GetByRepairID returns the full audit trail for a repair, oldest first.
func (r *AuditRepository) GetByRepairID(ctx context.Context, repairID string) ([]*AuditEntry, error) {
	query := `
		SELECT id, repair_id, action, performed_by, performed_at,
		       status_before, status_after,
		       approval_status_before, approval_status_after,
		       metadata
		FROM repair_audit_log
		WHERE repair_id = $1
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, repairID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	entries := make([]*AuditEntry, 0)
	for rows.Next() {
		entry := &AuditEntry{}
		var metadataJSON []byte
		err := rows.Scan(
			&entry.ID,
			&entry.RepairID,
			&entry.Action,
			&entry.PerformedBy,
			&entry.PerformedAt,
			&entry.StatusBefore,
			&entry.StatusAfter,
			&entry.ApprovalStatusBefore,
			&entry.ApprovalStatusAfter,
			&metadataJSON,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
