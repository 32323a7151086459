package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-wh-repairs/internal/client"
	"github.com/pesio-ai/be-wh-repairs/internal/errors"
	"github.com/pesio-ai/be-wh-repairs/internal/repository"
)

func strPtr(s string) *string { return &s }

func TestValidateCreate(t *testing.T) {
	t.Parallel()

	sources := map[string]client.AssignableItem{
		"line-1": {SourceItemID: "line-1", ProductID: "prod-1", Available: 5, Origin: client.OriginDispatch},
		"line-2": {SourceItemID: "line-2", ProductID: "prod-2", Available: 1, Origin: client.OriginInventory},
	}

	tests := []struct {
		name       string
		req        CreateRepairRequest
		wantFields []string
	}{
		{
			name: "valid single item",
			req: CreateRepairRequest{
				ReportedBy:  "user-1",
				ApproverID:  "user-2",
				Description: "crushed in transit",
				Items:       []CreateItemRequest{{SourceItemID: "line-1", Quantity: 3, IsRepairable: true}},
			},
		},
		{
			name: "quantity exactly at availability",
			req: CreateRepairRequest{
				ReportedBy:  "user-1",
				ApproverID:  "user-2",
				Description: "crushed in transit",
				Items:       []CreateItemRequest{{SourceItemID: "line-1", Quantity: 5}},
			},
		},
		{
			name: "quantity one over availability",
			req: CreateRepairRequest{
				ReportedBy:  "user-1",
				ApproverID:  "user-2",
				Description: "crushed in transit",
				Items:       []CreateItemRequest{{SourceItemID: "line-1", Quantity: 6}},
			},
			wantFields: []string{"items[0].quantity"},
		},
		{
			name: "zero items",
			req: CreateRepairRequest{
				ReportedBy:  "user-1",
				ApproverID:  "user-2",
				Description: "crushed in transit",
			},
			wantFields: []string{"items"},
		},
		{
			name: "missing approver and description",
			req: CreateRepairRequest{
				ReportedBy: "user-1",
				Items:      []CreateItemRequest{{SourceItemID: "line-1", Quantity: 1}},
			},
			wantFields: []string{"approver_id", "description"},
		},
		{
			name: "unknown source item",
			req: CreateRepairRequest{
				ReportedBy:  "user-1",
				ApproverID:  "user-2",
				Description: "crushed in transit",
				Items:       []CreateItemRequest{{SourceItemID: "line-404", Quantity: 1}},
			},
			wantFields: []string{"items[0].source_item_id"},
		},
		{
			name: "non-positive quantity",
			req: CreateRepairRequest{
				ReportedBy:  "user-1",
				ApproverID:  "user-2",
				Description: "crushed in transit",
				Items:       []CreateItemRequest{{SourceItemID: "line-2", Quantity: 0}},
			},
			wantFields: []string{"items[0].quantity"},
		},
		{
			name: "one bad item does not hide the good one",
			req: CreateRepairRequest{
				ReportedBy:  "user-1",
				ApproverID:  "user-2",
				Description: "crushed in transit",
				Items: []CreateItemRequest{
					{SourceItemID: "line-1", Quantity: 2},
					{SourceItemID: "", Quantity: 1},
				},
			},
			wantFields: []string{"items[1].source_item_id"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateCreate(&tt.req, sources)
			if len(tt.wantFields) == 0 {
				assert.Nil(t, err)
				return
			}

			require.NotNil(t, err)
			assert.Equal(t, errors.ErrCodeValidation, err.Code)
			assert.Len(t, err.Fields, len(tt.wantFields))
			for _, f := range tt.wantFields {
				assert.Contains(t, err.Fields, f)
			}
		})
	}
}

func TestValidateApproval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		req        ApproveRepairRequest
		wantFields []string
	}{
		{
			name: "approved with notes",
			req:  ApproveRepairRequest{Decision: DecisionApproved, Notes: "go ahead"},
		},
		{
			name: "rejected with enum reason",
			req: ApproveRepairRequest{
				Decision:        DecisionRejected,
				RejectionReason: strPtr("cost_too_high"),
				Notes:           "too expensive to fix",
			},
		},
		{
			name:       "rejected without reason",
			req:        ApproveRepairRequest{Decision: DecisionRejected, Notes: "nope"},
			wantFields: []string{"rejection_reason"},
		},
		{
			name: "rejected with free-text reason",
			req: ApproveRepairRequest{
				Decision:        DecisionRejected,
				RejectionReason: strPtr("did not like it"),
				Notes:           "nope",
			},
			wantFields: []string{"rejection_reason"},
		},
		{
			name:       "approved without notes",
			req:        ApproveRepairRequest{Decision: DecisionApproved},
			wantFields: []string{"notes"},
		},
		{
			name:       "unknown decision",
			req:        ApproveRepairRequest{Decision: "maybe", Notes: "hm"},
			wantFields: []string{"decision"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateApproval(&tt.req)
			if len(tt.wantFields) == 0 {
				assert.Nil(t, err)
				return
			}

			require.NotNil(t, err)
			for _, f := range tt.wantFields {
				assert.Contains(t, err.Fields, f)
			}
		})
	}
}

func TestValidateApprovalAcceptsEveryRejectionReason(t *testing.T) {
	t.Parallel()

	for _, reason := range repository.RejectionReasons {
		reason := reason
		t.Run(string(reason), func(t *testing.T) {
			t.Parallel()

			r := string(reason)
			err := ValidateApproval(&ApproveRepairRequest{
				Decision:        DecisionRejected,
				RejectionReason: &r,
				Notes:           "documented",
			})
			assert.Nil(t, err)
		})
	}
}

func TestValidateAssignment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		req        AssignItemsRequest
		wantFields []string
	}{
		{
			name: "default assignee covers all selections",
			req: AssignItemsRequest{
				DefaultAssignee: strPtr("tech-1"),
				Selections:      []AssignmentSelection{{ItemID: "item-1"}, {ItemID: "item-2"}},
			},
		},
		{
			name: "per-item assignees without default",
			req: AssignItemsRequest{
				Selections: []AssignmentSelection{
					{ItemID: "item-1", Assignee: strPtr("tech-1")},
					{ItemID: "item-2", Assignee: strPtr("tech-2")},
				},
			},
		},
		{
			name:       "empty batch",
			req:        AssignItemsRequest{DefaultAssignee: strPtr("tech-1")},
			wantFields: []string{"selections"},
		},
		{
			name: "selection without any assignee",
			req: AssignItemsRequest{
				Selections: []AssignmentSelection{
					{ItemID: "item-1", Assignee: strPtr("tech-1")},
					{ItemID: "item-2"},
				},
			},
			wantFields: []string{"selections[1].assignee"},
		},
		{
			name: "duplicate selection",
			req: AssignItemsRequest{
				DefaultAssignee: strPtr("tech-1"),
				Selections:      []AssignmentSelection{{ItemID: "item-1"}, {ItemID: "item-1"}},
			},
			wantFields: []string{"selections[1].item_id"},
		},
		{
			name: "blank default does not count",
			req: AssignItemsRequest{
				DefaultAssignee: strPtr("  "),
				Selections:      []AssignmentSelection{{ItemID: "item-1"}},
			},
			wantFields: []string{"selections[0].assignee"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateAssignment(&tt.req)
			if len(tt.wantFields) == 0 {
				assert.Nil(t, err)
				return
			}

			require.NotNil(t, err)
			for _, f := range tt.wantFields {
				assert.Contains(t, err.Fields, f)
			}
		})
	}
}

func TestValidateItemStatusUpdate(t *testing.T) {
	t.Parallel()

	current := &repository.Repair{
		ID:             "rep-1",
		Status:         repository.RepairStatusInProgress,
		ApprovalStatus: repository.ApprovalApproved,
		Items: []*repository.RepairItem{
			{ID: "item-1", Status: repository.ItemStatusAssignedRepair},
			{ID: "item-2", Status: repository.ItemStatusInProgress},
		},
	}

	inProgress := repository.RepairStatusInProgress
	completed := repository.RepairStatusCompleted

	tests := []struct {
		name       string
		req        UpdateItemStatusRequest
		wantFields []string
	}{
		{
			name: "single item change",
			req: UpdateItemStatusRequest{
				Changes: []ItemStatusChangeRequest{
					{ItemID: "item-1", Status: repository.ItemStatusInProgress},
				},
			},
		},
		{
			name: "overall status change alone",
			req:  UpdateItemStatusRequest{RepairStatus: &completed},
		},
		{
			name: "no-op batch rejected",
			req: UpdateItemStatusRequest{
				Changes: []ItemStatusChangeRequest{
					{ItemID: "item-1", Status: repository.ItemStatusAssignedRepair},
					{ItemID: "item-2", Status: repository.ItemStatusInProgress},
				},
				RepairStatus: &inProgress,
			},
			wantFields: []string{"changes"},
		},
		{
			name: "unknown item status",
			req: UpdateItemStatusRequest{
				Changes: []ItemStatusChangeRequest{{ItemID: "item-1", Status: "melted"}},
			},
			wantFields: []string{"changes[0].status"},
		},
		{
			name: "foreign item",
			req: UpdateItemStatusRequest{
				Changes: []ItemStatusChangeRequest{
					{ItemID: "item-999", Status: repository.ItemStatusCompleted},
				},
			},
			wantFields: []string{"changes[0].item_id"},
		},
		{
			name: "unknown overall status",
			req: UpdateItemStatusRequest{
				Changes: []ItemStatusChangeRequest{
					{ItemID: "item-1", Status: repository.ItemStatusCompleted},
				},
				RepairStatus: func() *repository.RepairStatus { s := repository.RepairStatus("done"); return &s }(),
			},
			wantFields: []string{"repair_status"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateItemStatusUpdate(&tt.req, current)
			if len(tt.wantFields) == 0 {
				assert.Nil(t, err)
				return
			}

			require.NotNil(t, err)
			for _, f := range tt.wantFields {
				assert.Contains(t, err.Fields, f)
			}
		})
	}
}

func TestValidateEdit(t *testing.T) {
	t.Parallel()

	sources := map[string]client.AssignableItem{
		"line-9": {SourceItemID: "line-9", ProductID: "prod-9", Available: 2, Origin: client.OriginDispatch},
	}

	pendingRepair := &repository.Repair{
		ID:             "rep-1",
		Status:         repository.RepairStatusReported,
		ApprovalStatus: repository.ApprovalPending,
		Items: []*repository.RepairItem{
			{ID: "item-1", SourceItemID: "line-1", Quantity: 3},
		},
	}
	approvedRepair := &repository.Repair{
		ID:             "rep-2",
		Status:         repository.RepairStatusInProgress,
		ApprovalStatus: repository.ApprovalApproved,
		Items: []*repository.RepairItem{
			{ID: "item-1", SourceItemID: "line-1", Quantity: 3},
		},
	}
	assignedRepair := &repository.Repair{
		ID:             "rep-3",
		Status:         repository.RepairStatusInProgress,
		ApprovalStatus: repository.ApprovalApproved,
		Items: []*repository.RepairItem{
			{
				ID: "item-1", SourceItemID: "line-1", Quantity: 3,
				IsRepairable: true,
				Status:       repository.ItemStatusAssignedRepair,
				AssignedTo:   &repository.UserRef{ID: "tech-1"},
			},
			{ID: "item-2", SourceItemID: "line-2", Quantity: 1, IsRepairable: true},
		},
	}

	cost := int64(12500)

	tests := []struct {
		name       string
		current    *repository.Repair
		req        EditRepairRequest
		wantFields []string
	}{
		{
			name:    "description and quantity edit",
			current: pendingRepair,
			req: EditRepairRequest{
				Description: "updated description",
				Items:       []ItemEditRequest{{ID: strPtr("item-1"), Quantity: 9}},
			},
		},
		{
			name:    "existing item quantity is unbounded",
			current: pendingRepair,
			req: EditRepairRequest{
				Description: "bulk damage",
				Items:       []ItemEditRequest{{ID: strPtr("item-1"), Quantity: 500}},
			},
		},
		{
			name:    "new item within availability",
			current: pendingRepair,
			req: EditRepairRequest{
				Description: "one more unit",
				Items: []ItemEditRequest{
					{ID: strPtr("item-1"), Quantity: 3},
					{SourceItemID: "line-9", Quantity: 2},
				},
			},
		},
		{
			name:    "new item over availability",
			current: pendingRepair,
			req: EditRepairRequest{
				Description: "one more unit",
				Items: []ItemEditRequest{
					{ID: strPtr("item-1"), Quantity: 3},
					{SourceItemID: "line-9", Quantity: 3},
				},
			},
			wantFields: []string{"items[1].quantity"},
		},
		{
			name:    "cannot remove every item",
			current: pendingRepair,
			req:     EditRepairRequest{Description: "empty"},
			wantFields: []string{
				"items",
			},
		},
		{
			name:    "approver change after decision",
			current: approvedRepair,
			req: EditRepairRequest{
				Description: "reroute",
				ApproverID:  strPtr("user-3"),
				Items:       []ItemEditRequest{{ID: strPtr("item-1"), Quantity: 3}},
			},
			wantFields: []string{"approver_id"},
		},
		{
			name:    "enrichment fields before approval",
			current: pendingRepair,
			req: EditRepairRequest{
				Description: "early enrichment",
				Priority:    strPtr("high"),
				Cost:        &cost,
				Items:       []ItemEditRequest{{ID: strPtr("item-1"), Quantity: 3}},
			},
			wantFields: []string{"priority", "cost"},
		},
		{
			name:    "enrichment fields after approval",
			current: approvedRepair,
			req: EditRepairRequest{
				Description: "enrichment",
				Priority:    strPtr("high"),
				Cost:        &cost,
				RepairNotes: strPtr("replaced casing"),
				Items:       []ItemEditRequest{{ID: strPtr("item-1"), Quantity: 3}},
			},
		},
		{
			name:    "assigned item cannot become non-repairable",
			current: assignedRepair,
			req: EditRepairRequest{
				Description: "reclassify",
				Items: []ItemEditRequest{
					{ID: strPtr("item-1"), Quantity: 3, IsRepairable: false},
					{ID: strPtr("item-2"), Quantity: 1, IsRepairable: true},
				},
			},
			wantFields: []string{"items[0].is_repairable"},
		},
		{
			name:    "unassigned item may become non-repairable",
			current: assignedRepair,
			req: EditRepairRequest{
				Description: "reclassify",
				Items: []ItemEditRequest{
					{ID: strPtr("item-1"), Quantity: 3, IsRepairable: true},
					{ID: strPtr("item-2"), Quantity: 1, IsRepairable: false},
				},
			},
		},
		{
			name:    "foreign item id",
			current: pendingRepair,
			req: EditRepairRequest{
				Description: "oops",
				Items:       []ItemEditRequest{{ID: strPtr("item-999"), Quantity: 1}},
			},
			wantFields: []string{"items[0].id"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateEdit(&tt.req, tt.current, sources)
			if len(tt.wantFields) == 0 {
				assert.Nil(t, err)
				return
			}

			require.NotNil(t, err)
			for _, f := range tt.wantFields {
				assert.Contains(t, err.Fields, f)
			}
		})
	}
}
