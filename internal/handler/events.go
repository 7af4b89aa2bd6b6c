package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/ticket-inventory/internal/model"
)

// CreateEvent handles POST /events
// Creates a draft event owned by the acting organizer.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	event, err := h.engine.Events.Create(r.Context(), actorID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// GetEvent handles GET /events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.engine.Events.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// DeleteEvent handles DELETE /events/{id}
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Events.Delete(r.Context(), actorID(r), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PublishEvent handles POST /events/{id}/publish
func (h *Handler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.engine.Events.Publish(r.Context(), actorID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// CancelEvent handles POST /events/{id}/cancel
// Cancels the event and all of its live tickets, refunding them when
// issue_refunds is set. The body is optional.
func (h *Handler) CancelEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CancelEventRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	result, err := h.engine.Events.Cancel(r.Context(), actorID(r), chi.URLParam(r, "id"), req.IssueRefunds)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CompleteEvent handles POST /events/{id}/complete
func (h *Handler) CompleteEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.engine.Events.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// ListEventTickets handles GET /events/{id}/tickets
func (h *Handler) ListEventTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.engine.Events.ListTickets(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

// bulkItem is one entry of a 207 Multi-Status response.
type bulkItem struct {
	UserID   string        `json:"user_id,omitempty"`
	TicketID string        `json:"ticket_id,omitempty"`
	Status   int           `json:"status"`
	Ticket   *model.Ticket `json:"ticket,omitempty"`
	Error    string        `json:"error,omitempty"`
	Code     string        `json:"code,omitempty"`
}

type bulkResponse struct {
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	Results   []bulkItem `json:"results"`
}

func (b *bulkResponse) add(item bulkItem, err error, okStatus int) {
	if err != nil {
		code := model.Code(err)
		item.Status = statusFor(code)
		item.Code = code
		item.Error = err.Error()
		if item.Status == http.StatusInternalServerError {
			item.Error = "internal server error"
		}
		b.Failed++
	} else {
		item.Status = okStatus
		b.Succeeded++
	}
	b.Results = append(b.Results, item)
}

// BulkPurchase handles POST /events/{id}/bulk-tickets
// Buys one ticket per listed user. Items succeed or fail independently.
func (h *Handler) BulkPurchase(w http.ResponseWriter, r *http.Request) {
	var req model.BulkPurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	outcomes, err := h.engine.Issuer.PurchaseBulk(r.Context(), actorID(r), chi.URLParam(r, "id"), req.UserIDs, req.TicketType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := bulkResponse{Results: make([]bulkItem, 0, len(outcomes))}
	for _, o := range outcomes {
		resp.add(bulkItem{UserID: o.UserID, Ticket: o.Ticket}, o.Err, http.StatusCreated)
	}
	writeJSON(w, http.StatusMultiStatus, resp)
}
