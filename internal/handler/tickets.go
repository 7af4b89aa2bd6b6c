package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/ticket-inventory/internal/model"
)

// Purchase handles POST /tickets
// A missing user_id buys for the acting user.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req model.PurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		req.UserID = actorID(r)
	}

	ticket, err := h.engine.Issuer.Purchase(r.Context(), actorID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

// GetTicket handles GET /tickets/{id}
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.engine.Tickets.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// CheckIn handles POST /tickets/{id}/check-in
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.engine.Tickets.CheckIn(r.Context(), actorID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// CancelTicket handles POST /tickets/{id}/cancel
func (h *Handler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.engine.Tickets.Cancel(r.Context(), actorID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// RefundTicket handles POST /tickets/{id}/refund
func (h *Handler) RefundTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.engine.Tickets.Refund(r.Context(), actorID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// BulkCheckIn handles POST /tickets/bulk-check-in
func (h *Handler) BulkCheckIn(w http.ResponseWriter, r *http.Request) {
	var req model.BulkCheckInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	outcomes, err := h.engine.Tickets.CheckInBulk(r.Context(), actorID(r), req.TicketIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := bulkResponse{Results: make([]bulkItem, 0, len(outcomes))}
	for _, o := range outcomes {
		resp.add(bulkItem{TicketID: o.TicketID, Ticket: o.Ticket}, o.Err, http.StatusOK)
	}
	writeJSON(w, http.StatusMultiStatus, resp)
}
