package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ordergate/internal/orders"
)

// InventoryClient implements orders.InventoryPort over POST /reserve.
type InventoryClient struct {
	client *Client
}

// NewInventoryClient constructs an inventory port on top of c.
func NewInventoryClient(c *Client) *InventoryClient {
	return &InventoryClient{client: c}
}

type reserveRequest struct {
	Items []orders.Item `json:"items"`
}

type reserveResponse struct {
	Reserved bool `json:"reserved"`
}

// Reserve returns the reserved flag on 200 and false on 422.
func (i *InventoryClient) Reserve(ctx context.Context, items []orders.Item) (bool, error) {
	resp, err := i.client.PostJSON(ctx, "/reserve", reserveRequest{Items: items}, nil, func(status int) bool {
		return status == http.StatusOK || status == http.StatusUnprocessableEntity
	})
	if err != nil {
		return false, err
	}
	if resp.StatusCode == http.StatusUnprocessableEntity {
		return false, nil
	}

	var out reserveResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return false, fmt.Errorf("inventory: %w: decode response: %w", ErrTransport, err)
	}
	return out.Reserved, nil
}
