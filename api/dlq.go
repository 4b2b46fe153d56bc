package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/umrahops/courier"
	"github.com/umrahops/courier/dlq"
	"github.com/umrahops/courier/id"
)

func (h *Handler) listDLQ(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	opts := dlq.ListOpts{
		Offset:   queryInt(r, "offset", 0),
		Limit:    queryInt(r, "limit", 50),
		TenantID: tenant,
	}
	if sub := queryParam(r, "subscription_id"); sub != "" {
		subID, err := id.ParseSubscriptionID(sub)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid subscription ID")
			return
		}
		opts.SubscriptionID = &subID
	}

	entries, err := h.courier.DLQ().List(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) replayDLQ(w http.ResponseWriter, r *http.Request) {
	if _, ok := tenantID(w, r); !ok {
		return
	}

	dlqID, err := id.ParseDLQID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid DLQ entry ID")
		return
	}

	if replayErr := h.courier.DLQ().Replay(r.Context(), dlqID); replayErr != nil {
		switch {
		case errors.Is(replayErr, courier.ErrDLQNotFound):
			writeError(w, http.StatusNotFound, "DLQ entry not found")
		case errors.Is(replayErr, courier.ErrAlreadyDelivered):
			writeError(w, http.StatusConflict, "delivery already succeeded")
		default:
			writeError(w, http.StatusInternalServerError, replayErr.Error())
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

type replayBulkRequest struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (h *Handler) replayBulkDLQ(w http.ResponseWriter, r *http.Request) {
	if _, ok := tenantID(w, r); !ok {
		return
	}

	var req replayBulkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.To.IsZero() {
		req.To = time.Now().UTC()
	}

	count, err := h.courier.DLQ().ReplayBulk(r.Context(), req.From, req.To)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]int64{"replayed": count})
}
