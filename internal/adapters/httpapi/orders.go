package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"ordergate/internal/events"
	"ordergate/internal/httpclient"
	"ordergate/internal/idempotency"
	"ordergate/internal/orders"
	"ordergate/internal/reqctx"
)

const (
	maxIdempotencyKeyLength = 255
	publishTimeout          = 2 * time.Second
	finalizeAttempts        = 3
)

type createOrderResponse struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	TransactionID *string `json:"transaction_id"`
}

// outcome is the terminal response of one create request.
type outcome struct {
	status  int
	body    []byte
	orderID string
}

func detailOutcome(status int, code string) outcome {
	return outcome{status: status, body: encode(errorBody{Detail: code})}
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge, CodeTooLarge)
			return
		}
		writeValidation(w, []fieldError{{Field: "body", Message: "unreadable body"}})
		return
	}

	req, verrs := decodeCreateOrder(h.validate, raw)
	if verrs != nil {
		writeValidation(w, verrs)
		return
	}

	key := strings.TrimSpace(r.Header.Get(httpclient.HeaderIdempotencyKey))
	if len(key) > maxIdempotencyKeyLength {
		writeValidation(w, []fieldError{{Field: httpclient.HeaderIdempotencyKey, Message: "must be at most 255 characters"}})
		return
	}

	if key != "" {
		ctx = reqctx.WithIdempotencyKey(ctx, key)
		rec, existing, err := h.idem.GetOrCreate(ctx, key, req)
		switch {
		case errors.Is(err, idempotency.ErrConflict):
			writeDetail(w, http.StatusConflict, CodeIdempotencyConflict)
			return
		case err != nil:
			h.log.ErrorContext(ctx, "idempotency lookup failed", "err", err)
			writeDetail(w, http.StatusInternalServerError, CodeInternal)
			return
		case existing:
			if !rec.Completed() {
				rec, err = h.awaitCompletion(ctx, key)
				if err != nil {
					h.log.WarnContext(ctx, "idempotent request still in flight", "err", err)
					writeDetail(w, http.StatusConflict, CodeInProgress)
					return
				}
			}
			h.replay(w, r, rec)
			return
		}
	}

	order := orders.NewOrder(req.domainItems(), req.AmountCents, req.Currency)
	order.IdempotencyKey = key
	out := h.place(ctx, order)

	if key != "" {
		if err := h.finalize(ctx, key, out); err != nil {
			h.log.ErrorContext(ctx, "idempotency finalize failed", "status", out.status, "order_id", out.orderID, "err", err)
			out = detailOutcome(http.StatusInternalServerError, CodeInternal)
		}
	}
	h.publish(ctx, order)

	writeRaw(w, out.status, out.body)
}

// place runs the saga and maps its result to a response. Only confirmed
// orders are persisted.
func (h *Handler) place(ctx context.Context, order *orders.Order) outcome {
	_, err := h.service.PlaceOrder(ctx, order)
	if err != nil {
		switch {
		case httpclient.IsUnavailable(err):
			h.log.WarnContext(ctx, "dependency unavailable", "status", order.Status, "err", err)
			return detailOutcome(http.StatusServiceUnavailable, CodeUpstream)
		case errors.Is(err, orders.ErrInsufficientStock):
			return detailOutcome(http.StatusUnprocessableEntity, orders.Code(err))
		case errors.Is(err, orders.ErrPaymentFailed):
			return detailOutcome(http.StatusPaymentRequired, orders.Code(err))
		case orders.Code(err) != "":
			return detailOutcome(http.StatusBadRequest, orders.Code(err))
		default:
			h.log.ErrorContext(ctx, "order saga failed", "err", err)
			return detailOutcome(http.StatusInternalServerError, CodeInternal)
		}
	}

	id, err := h.repo.Create(context.WithoutCancel(ctx), order)
	if err != nil {
		h.log.ErrorContext(ctx, "persist order failed", "transaction_id", order.TransactionID, "err", err)
		return detailOutcome(http.StatusInternalServerError, CodeInternal)
	}
	h.log.InfoContext(ctx, "order confirmed", "order_id", id, "transaction_id", order.TransactionID)

	return outcome{
		status: http.StatusCreated,
		body: encode(createOrderResponse{
			ID:            id,
			Status:        string(order.Status),
			TransactionID: optional(order.TransactionID),
		}),
		orderID: id,
	}
}

// finalize stores out as the response for key. The outcome is stored even if
// the client is gone so that its retry replays instead of re-running the saga.
func (h *Handler) finalize(ctx context.Context, key string, out outcome) error {
	ctx = context.WithoutCancel(ctx)
	var err error
	for attempt := 1; attempt <= finalizeAttempts; attempt++ {
		err = h.idem.Finalize(ctx, key, out.status, out.body, out.orderID)
		if err == nil {
			return nil
		}
		if attempt < finalizeAttempts {
			_ = h.sleep(ctx, h.poll)
		}
	}
	return err
}

// awaitCompletion polls the store until the record owning key is finalized
// or the wait budget runs out.
func (h *Handler) awaitCompletion(ctx context.Context, key string) (idempotency.Record, error) {
	deadline := h.now().Add(h.wait)
	for {
		if !h.now().Before(deadline) {
			return idempotency.Record{}, errors.New("timed out waiting for idempotent response")
		}
		if err := h.sleep(ctx, h.poll); err != nil {
			return idempotency.Record{}, err
		}
		rec, err := h.idem.Get(ctx, key)
		if err != nil {
			return idempotency.Record{}, err
		}
		if rec.Completed() {
			return rec, nil
		}
	}
}

func (h *Handler) replay(w http.ResponseWriter, r *http.Request, rec idempotency.Record) {
	h.metrics.IncReplay()
	h.log.InfoContext(r.Context(), "replaying idempotent response", "status", rec.ResponseStatus, "order_id", rec.OrderID)
	w.Header().Set(HeaderReplayed, "true")
	writeRaw(w, rec.ResponseStatus, rec.ResponseBody)
}

func (h *Handler) publish(ctx context.Context, order *orders.Order) {
	event, ok := events.NewOrderEvent(ctx, order, h.now())
	if !ok {
		return
	}
	if order.Status == orders.StatusConfirmed && order.ID == "" {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := h.publisher.Publish(pubCtx, event); err != nil {
		h.log.WarnContext(ctx, "order event not delivered", "type", event.Type, "err", err)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
