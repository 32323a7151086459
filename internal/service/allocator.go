package service

import (
	"strings"

	"github.com/samber/lo"

	"github.com/pesio-ai/be-wh-repairs/internal/errors"
	"github.com/pesio-ai/be-wh-repairs/internal/repository"
)

// The assignment allocator resolves a validated "selected items + assignee
// choices" batch into concrete item assignments. It is pure: the caller
// supplies the resolved user references and commits the output in a single
// AssignItems call.
//
// Two-phase semantics: a batch-wide default assignee covers every selection,
// and a per-item assignee overrides the default for that item. Nothing here
// commits — mixing a bulk default with individual overrides stays cheap
// because the broadcast only rewrites the pending choice.

// EligibleItems returns the items that can currently receive an assignee, in
// insertion order.
func EligibleItems(r *repository.Repair) []*repository.RepairItem {
	return lo.Filter(r.Items, func(i *repository.RepairItem, _ int) bool {
		return i.Assignable()
	})
}

// ResolveAssignments turns selections into item assignments. Every selected
// item must exist on the repair and still be eligible; every resolved
// assignee must be present in users (keyed by user id).
func ResolveAssignments(
	repair *repository.Repair,
	selections []AssignmentSelection,
	defaultAssignee *string,
	users map[string]repository.UserRef,
) ([]repository.ItemAssignment, error) {
	assignments := make([]repository.ItemAssignment, 0, len(selections))

	for _, sel := range selections {
		item := repair.Item(sel.ItemID)
		if item == nil {
			return nil, errors.NotFound("repair_item", sel.ItemID)
		}
		if !item.IsRepairable {
			return nil, errors.ForbiddenTransition("item is not repairable: " + sel.ItemID)
		}
		if item.AssignedTo != nil {
			return nil, errors.ForbiddenTransition("item is already assigned: " + sel.ItemID)
		}

		assigneeID := ""
		if sel.Assignee != nil && strings.TrimSpace(*sel.Assignee) != "" {
			assigneeID = *sel.Assignee
		} else if defaultAssignee != nil {
			assigneeID = *defaultAssignee
		}

		user, ok := users[assigneeID]
		if !ok {
			return nil, errors.InvalidInput("assignee", "unresolved assignee: "+assigneeID)
		}

		assignments = append(assignments, repository.ItemAssignment{
			ItemID:   sel.ItemID,
			Assignee: user,
		})
	}

	return assignments, nil
}

// AssigneeIDs collects the distinct user ids a batch needs resolved: the
// default plus every per-item override.
func AssigneeIDs(selections []AssignmentSelection, defaultAssignee *string) []string {
	ids := make([]string, 0, len(selections)+1)
	if defaultAssignee != nil && strings.TrimSpace(*defaultAssignee) != "" {
		ids = append(ids, *defaultAssignee)
	}
	for _, sel := range selections {
		if sel.Assignee != nil && strings.TrimSpace(*sel.Assignee) != "" {
			ids = append(ids, *sel.Assignee)
		}
	}
	return lo.Uniq(ids)
}
