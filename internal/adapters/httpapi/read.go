package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ordergate/internal/orders"
)

type orderView struct {
	ID            string        `json:"id"`
	Status        string        `json:"status"`
	AmountCents   int64         `json:"amount_cents"`
	Currency      string        `json:"currency"`
	TransactionID *string       `json:"transaction_id"`
	Items         []orders.Item `json:"items"`
	CreatedAt     time.Time     `json:"created_at"`
}

type orderPage struct {
	Count    int         `json:"count"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Results  []orderView `json:"results"`
}

func newOrderView(order *orders.Order) orderView {
	items := order.Items
	if items == nil {
		items = []orders.Item{}
	}
	return orderView{
		ID:            order.ID,
		Status:        string(order.Status),
		AmountCents:   order.AmountCents,
		Currency:      order.Currency,
		TransactionID: optional(order.TransactionID),
		Items:         items,
		CreatedAt:     order.CreatedAt.UTC(),
	}
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, CodeNotFound)
			return
		}
		h.log.ErrorContext(r.Context(), "load order failed", "err", err)
		writeDetail(w, http.StatusInternalServerError, CodeInternal)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(order))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q, verrs := parseListQuery(h.validate, r.URL.Query().Get("page"), r.URL.Query().Get("page_size"))
	if verrs != nil {
		writeValidation(w, verrs)
		return
	}

	list, total, err := h.repo.List(r.Context(), q.Page, q.PageSize)
	if err != nil {
		h.log.ErrorContext(r.Context(), "list orders failed", "err", err)
		writeDetail(w, http.StatusInternalServerError, CodeInternal)
		return
	}

	results := make([]orderView, 0, len(list))
	for _, order := range list {
		results = append(results, newOrderView(order))
	}
	writeJSON(w, http.StatusOK, orderPage{
		Count:    total,
		Page:     q.Page,
		PageSize: q.PageSize,
		Results:  results,
	})
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
