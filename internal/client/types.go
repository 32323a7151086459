package client

// User is a directory user as resolved by the User Directory service.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Active      bool   `json:"active"`
}

// AssignableItem is the single normalized shape for items eligible to be
// reported as damaged. The catalog service exposes two wire shapes (dispatch
// receipt lines and raw inventory products); both are folded into this value
// type at the client boundary so workflow logic never branches on origin.
type AssignableItem struct {
	SourceItemID string  `json:"source_item_id"`
	ProductID    string  `json:"product_id"`
	VariantID    *string `json:"variant_id,omitempty"`
	Available    int     `json:"available"`
	Origin       string  `json:"origin"` // dispatch | inventory
}

// Item origins.
const (
	OriginDispatch  = "dispatch"
	OriginInventory = "inventory"
)
