package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ordergate/internal/orders"
	"ordergate/internal/reqctx"
)

// PaymentsClient implements orders.PaymentsPort over POST /charge.
type PaymentsClient struct {
	client *Client
}

// NewPaymentsClient constructs a payments port on top of c.
func NewPaymentsClient(c *Client) *PaymentsClient {
	return &PaymentsClient{client: c}
}

type chargeRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type chargeResponse struct {
	Paid          bool   `json:"paid"`
	TransactionID string `json:"transaction_id"`
}

// Charge returns the paid flag and transaction id on 200. A decline (402) or
// an idempotency conflict at the payments service (409) is an unpaid result.
// The request's idempotency key, when present, is forwarded. An undecodable
// 200 body is reported as ErrTransport since the charge may have gone through.
func (p *PaymentsClient) Charge(ctx context.Context, amountCents int64, currency string) (orders.ChargeResult, error) {
	var headers http.Header
	if key := reqctx.IdempotencyKey(ctx); key != "" {
		headers = http.Header{HeaderIdempotencyKey: []string{key}}
	}

	resp, err := p.client.PostJSON(ctx, "/charge", chargeRequest{AmountCents: amountCents, Currency: currency}, headers, func(status int) bool {
		switch status {
		case http.StatusOK, http.StatusPaymentRequired, http.StatusConflict:
			return true
		}
		return false
	})
	if err != nil {
		return orders.ChargeResult{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return orders.ChargeResult{}, nil
	}

	var out chargeResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return orders.ChargeResult{}, fmt.Errorf("payments: %w: decode response: %w", ErrTransport, err)
	}
	if !out.Paid {
		return orders.ChargeResult{}, nil
	}
	return orders.ChargeResult{Paid: true, TransactionID: out.TransactionID}, nil
}
