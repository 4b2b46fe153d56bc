package api

import (
	"errors"
	"net/http"

	"github.com/umrahops/courier"
	"github.com/umrahops/courier/event"
	"github.com/umrahops/courier/id"
)

type dispatchEventRequest struct {
	Type           string `json:"type"`
	Data           any    `json:"data"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type dispatchEventResponse struct {
	DeliveryIDs []string `json:"delivery_ids"`
}

func (h *Handler) dispatchEvent(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	var req dispatchEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}

	var opts []courier.DispatchOption
	if req.IdempotencyKey != "" {
		opts = append(opts, courier.WithIdempotencyKey(req.IdempotencyKey))
	}

	delIDs, err := h.courier.Dispatch(r.Context(), tenant, req.Type, req.Data, opts...)
	if err != nil {
		switch {
		case errors.Is(err, courier.ErrEventTypeDeprecated),
			errors.Is(err, courier.ErrPayloadValidationFailed):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	ids := make([]string, len(delIDs))
	for i, delID := range delIDs {
		ids[i] = delID.String()
	}
	writeJSON(w, http.StatusAccepted, dispatchEventResponse{DeliveryIDs: ids})
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	opts := event.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
		Type:   queryParam(r, "type"),
	}

	events, err := h.courier.Store().ListEventsByTenant(r.Context(), tenant, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	evtID, err := id.ParseEventID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event ID")
		return
	}

	evt, getErr := h.courier.Store().GetEvent(r.Context(), evtID)
	if getErr != nil {
		if errors.Is(getErr, courier.ErrEventNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, getErr.Error())
		return
	}
	if evt.TenantID != tenant {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	writeJSON(w, http.StatusOK, evt)
}

func (h *Handler) listEventDeliveries(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	evtID, err := id.ParseEventID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event ID")
		return
	}

	ds, listErr := h.courier.Store().ListByEvent(r.Context(), evtID)
	if listErr != nil {
		writeError(w, http.StatusInternalServerError, listErr.Error())
		return
	}

	// Tenant scoping: never leak another tenant's deliveries.
	scoped := ds[:0]
	for _, d := range ds {
		if d.TenantID == tenant {
			scoped = append(scoped, d)
		}
	}

	writeJSON(w, http.StatusOK, scoped)
}
