package client

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/pesio-ai/be-wh-repairs/internal/errors"
)

// CatalogClient lists items an actor may report as damaged. The catalog
// exposes dispatch-receipt lines and raw inventory products with different
// field names; normalization into AssignableItem happens here and nowhere else.
type CatalogClient struct {
	http *httpClient
}

// NewCatalogClient creates a new assignable-item source client.
func NewCatalogClient(baseURL string, timeout time.Duration) *CatalogClient {
	return &CatalogClient{http: newHTTPClient(baseURL, timeout)}
}

// dispatchLine is the wire shape of a dispatch-receipt line.
type dispatchLine struct {
	LineID           string  `json:"line_id"`
	ProductID        string  `json:"product_id"`
	VariantID        *string `json:"variant_id"`
	QuantityReceived int     `json:"quantity_received"`
	QuantityReturned int     `json:"quantity_returned"`
}

// inventoryProduct is the wire shape of a raw inventory product.
type inventoryProduct struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id"`
	Stock     int     `json:"stock"`
}

type listItemsResponse struct {
	DispatchLines []dispatchLine     `json:"dispatch_lines"`
	Products      []inventoryProduct `json:"products"`
}

// ListAvailableItems returns every item the actor may report, normalized.
// Items with nothing left available are filtered out here so callers only
// ever see candidates.
func (c *CatalogClient) ListAvailableItems(ctx context.Context, actorID string) ([]AssignableItem, error) {
	path := fmt.Sprintf("/api/v1/assignable-items?actor_id=%s", url.QueryEscape(actorID))

	var resp listItemsResponse
	if err := c.http.Get(ctx, path, &resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list assignable items")
	}

	items := make([]AssignableItem, 0, len(resp.DispatchLines)+len(resp.Products))
	for _, line := range resp.DispatchLines {
		available := line.QuantityReceived - line.QuantityReturned
		if available <= 0 {
			continue
		}
		items = append(items, AssignableItem{
			SourceItemID: line.LineID,
			ProductID:    line.ProductID,
			VariantID:    line.VariantID,
			Available:    available,
			Origin:       OriginDispatch,
		})
	}
	for _, p := range resp.Products {
		if p.Stock <= 0 {
			continue
		}
		items = append(items, AssignableItem{
			SourceItemID: p.ProductID,
			ProductID:    p.ProductID,
			VariantID:    p.VariantID,
			Available:    p.Stock,
			Origin:       OriginInventory,
		})
	}
	return items, nil
}
