package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogClientNormalizesBothWireShapes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/assignable-items", r.URL.Path)
		assert.Equal(t, "worker-1", r.URL.Query().Get("actor_id"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"dispatch_lines": [
				{"line_id": "line-1", "product_id": "prod-1", "variant_id": "var-1", "quantity_received": 10, "quantity_returned": 4},
				{"line_id": "line-2", "product_id": "prod-2", "quantity_received": 3, "quantity_returned": 3}
			],
			"products": [
				{"product_id": "prod-3", "stock": 7},
				{"product_id": "prod-4", "stock": 0}
			]
		}`))
	}))
	defer srv.Close()

	c := NewCatalogClient(srv.URL, time.Second)
	items, err := c.ListAvailableItems(context.Background(), "worker-1")
	require.NoError(t, err)

	// line-2 and prod-4 have nothing left available and must be filtered out.
	require.Len(t, items, 2)

	assert.Equal(t, "line-1", items[0].SourceItemID)
	assert.Equal(t, "prod-1", items[0].ProductID)
	require.NotNil(t, items[0].VariantID)
	assert.Equal(t, "var-1", *items[0].VariantID)
	assert.Equal(t, 6, items[0].Available)
	assert.Equal(t, OriginDispatch, items[0].Origin)

	assert.Equal(t, "prod-3", items[1].SourceItemID)
	assert.Equal(t, "prod-3", items[1].ProductID)
	assert.Nil(t, items[1].VariantID)
	assert.Equal(t, 7, items[1].Available)
	assert.Equal(t, OriginInventory, items[1].Origin)
}

func TestCatalogClientEmptyCatalog(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"dispatch_lines": [], "products": []}`))
	}))
	defer srv.Close()

	c := NewCatalogClient(srv.URL, time.Second)
	items, err := c.ListAvailableItems(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCatalogClientUpstreamFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewCatalogClient(srv.URL, time.Second)
	_, err := c.ListAvailableItems(context.Background(), "worker-1")
	require.Error(t, err)
}
