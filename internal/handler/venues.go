package handler

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/ticket-inventory/internal/model"
)

// CreateVenue handles POST /venues
func (h *Handler) CreateVenue(w http.ResponseWriter, r *http.Request) {
	var req model.CreateVenueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	venue, err := h.engine.Venues.Create(r.Context(), actorID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, venue)
}

// GetVenue handles GET /venues/{id}
func (h *Handler) GetVenue(w http.ResponseWriter, r *http.Request) {
	venue, err := h.engine.Venues.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, venue)
}

// RetireVenue handles DELETE /venues/{id}
// The venue is kept for the events it hosted and marked inactive.
func (h *Handler) RetireVenue(w http.ResponseWriter, r *http.Request) {
	venue, err := h.engine.Venues.Retire(r.Context(), actorID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, venue)
}

// VenueAvailability handles GET /venues/{id}/availability
// Accepts either date=YYYY-MM-DD (a whole UTC day) or start and end in
// RFC 3339, plus an optional exclude_event_id.
func (h *Handler) VenueAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	window, err := parseWindow(q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	availability, err := h.engine.Venues.Availability(r.Context(), chi.URLParam(r, "id"), window, q.Get("exclude_event_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availability)
}

func parseWindow(q url.Values) (model.TimeWindow, error) {
	if date := q.Get("date"); date != "" {
		day, err := time.Parse(time.DateOnly, date)
		if err != nil {
			return model.TimeWindow{}, model.Invalid("date must look like 2006-01-02")
		}
		return model.TimeWindow{Start: day, End: day.AddDate(0, 0, 1)}, nil
	}

	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		return model.TimeWindow{}, model.Invalid("date, or start and end in RFC 3339, are required")
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		return model.TimeWindow{}, model.Invalid("end must be an RFC 3339 timestamp")
	}
	return model.TimeWindow{Start: start.UTC(), End: end.UTC()}, nil
}
