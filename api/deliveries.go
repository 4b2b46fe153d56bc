package api

import (
	"errors"
	"net/http"

	"github.com/umrahops/courier"
	"github.com/umrahops/courier/delivery"
	"github.com/umrahops/courier/id"
)

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	subID, err := id.ParseSubscriptionID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscription ID")
		return
	}

	// Ownership check before exposing the log.
	if _, getErr := h.courier.Subscriptions().Get(r.Context(), subID, tenant); getErr != nil {
		if errors.Is(getErr, courier.ErrSubscriptionNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		writeError(w, http.StatusInternalServerError, getErr.Error())
		return
	}

	opts := delivery.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", delivery.DefaultLogLimit),
	}
	if state := queryParam(r, "status"); state != "" {
		s := delivery.State(state)
		opts.State = &s
	}

	ds, listErr := h.courier.Deliveries().ListBySubscription(r.Context(), subID, opts)
	if listErr != nil {
		writeError(w, http.StatusInternalServerError, listErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, ds)
}

func (h *Handler) getDelivery(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	delID, err := id.ParseDeliveryID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid delivery ID")
		return
	}

	d, getErr := h.courier.Deliveries().Get(r.Context(), delID, tenant)
	if getErr != nil {
		if errors.Is(getErr, courier.ErrDeliveryNotFound) {
			writeError(w, http.StatusNotFound, "delivery not found")
			return
		}
		writeError(w, http.StatusInternalServerError, getErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) retryDelivery(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	delID, err := id.ParseDeliveryID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid delivery ID")
		return
	}

	d, retryErr := h.courier.Deliveries().Retry(r.Context(), delID, tenant)
	if retryErr != nil {
		switch {
		case errors.Is(retryErr, courier.ErrDeliveryNotFound):
			writeError(w, http.StatusNotFound, "delivery not found")
		case errors.Is(retryErr, courier.ErrAlreadyDelivered):
			writeError(w, http.StatusConflict, "delivery already succeeded")
		case errors.Is(retryErr, courier.ErrDeliveryInFlight):
			writeError(w, http.StatusConflict, "delivery attempt in flight")
		default:
			writeError(w, http.StatusInternalServerError, retryErr.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, d)
}
