package api

import (
	"errors"
	"net/http"

	"github.com/umrahops/courier"
	"github.com/umrahops/courier/id"
	"github.com/umrahops/courier/internal/identity"
	"github.com/umrahops/courier/subscription"
)

type createSubscriptionRequest struct {
	URL         string            `json:"url"`
	Description string            `json:"description,omitempty"`
	Events      []string          `json:"events"`
	Headers     map[string]string `json:"headers,omitempty"`
	RateLimit   int               `json:"rate_limit,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// subscriptionWithSecret is the create/rotate response shape. This is the
// only place the signing secret ever crosses the wire.
type subscriptionWithSecret struct {
	Subscription *subscription.Subscription `json:"subscription"`
	Secret       string                     `json:"secret"`
}

func (h *Handler) createSubscription(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	var req createSubscriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.courier.Subscriptions().Subscribe(r.Context(), subscription.Input{
		TenantID:    tenant,
		APIKeyID:    identity.FromContext(r.Context()).APIKeyID,
		URL:         req.URL,
		Description: req.Description,
		Events:      req.Events,
		Headers:     req.Headers,
		RateLimit:   req.RateLimit,
		Metadata:    req.Metadata,
	})
	if err != nil {
		if errors.Is(err, courier.ErrInvalidURL) || errors.Is(err, courier.ErrInvalidEventSet) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, subscriptionWithSecret{
		Subscription: sub,
		Secret:       sub.Secret,
	})
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	opts := subscription.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	}
	if active := queryParam(r, "active"); active != "" {
		v := active == "true"
		opts.Active = &v
	}

	subs, err := h.courier.Subscriptions().List(r.Context(), tenant, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, subs)
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	subID, err := id.ParseSubscriptionID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscription ID")
		return
	}

	sub, getErr := h.courier.Subscriptions().Get(r.Context(), subID, tenant)
	if getErr != nil {
		if errors.Is(getErr, courier.ErrSubscriptionNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		writeError(w, http.StatusInternalServerError, getErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) updateSubscription(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	subID, err := id.ParseSubscriptionID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscription ID")
		return
	}

	var req createSubscriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, updateErr := h.courier.Subscriptions().Update(r.Context(), subID, tenant, subscription.Input{
		URL:         req.URL,
		Description: req.Description,
		Events:      req.Events,
		Headers:     req.Headers,
		RateLimit:   req.RateLimit,
		Metadata:    req.Metadata,
	})
	if updateErr != nil {
		switch {
		case errors.Is(updateErr, courier.ErrSubscriptionNotFound):
			writeError(w, http.StatusNotFound, "subscription not found")
		case errors.Is(updateErr, courier.ErrInvalidURL), errors.Is(updateErr, courier.ErrInvalidEventSet):
			writeError(w, http.StatusBadRequest, updateErr.Error())
		default:
			writeError(w, http.StatusInternalServerError, updateErr.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	subID, err := id.ParseSubscriptionID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscription ID")
		return
	}

	if deleteErr := h.courier.Subscriptions().Unsubscribe(r.Context(), subID, tenant); deleteErr != nil {
		if errors.Is(deleteErr, courier.ErrSubscriptionNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		writeError(w, http.StatusInternalServerError, deleteErr.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) activateSubscription(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) deactivateSubscription(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	subID, err := id.ParseSubscriptionID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscription ID")
		return
	}

	svc := h.courier.Subscriptions()
	var setErr error
	if active {
		setErr = svc.Activate(r.Context(), subID, tenant)
	} else {
		setErr = svc.Deactivate(r.Context(), subID, tenant)
	}
	if setErr != nil {
		if errors.Is(setErr, courier.ErrSubscriptionNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		writeError(w, http.StatusInternalServerError, setErr.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rotateSecret(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	subID, err := id.ParseSubscriptionID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscription ID")
		return
	}

	sub, rotateErr := h.courier.Subscriptions().RotateSecret(r.Context(), subID, tenant)
	if rotateErr != nil {
		if errors.Is(rotateErr, courier.ErrSubscriptionNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		writeError(w, http.StatusInternalServerError, rotateErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, subscriptionWithSecret{
		Subscription: sub,
		Secret:       sub.Secret,
	})
}

func (h *Handler) sendTest(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	subID, err := id.ParseSubscriptionID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscription ID")
		return
	}

	delID, testErr := h.courier.SendTest(r.Context(), subID, tenant)
	if testErr != nil {
		if errors.Is(testErr, courier.ErrSubscriptionNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		writeError(w, http.StatusInternalServerError, testErr.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"delivery_id": delID.String()})
}
