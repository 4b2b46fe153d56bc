package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/umrahops/courier"
	"github.com/umrahops/courier/catalog"
)

type registerEventTypeRequest struct {
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Group         string          `json:"group,omitempty"`
	Schema        json.RawMessage `json:"schema,omitempty"`
	SchemaVersion string          `json:"schema_version,omitempty"`
	Version       string          `json:"version,omitempty"`
	Example       json.RawMessage `json:"example,omitempty"`
}

func (h *Handler) registerEventType(w http.ResponseWriter, r *http.Request) {
	var req registerEventTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	et, err := h.courier.Catalog().RegisterType(r.Context(), catalog.Definition{
		Name:          req.Name,
		Description:   req.Description,
		Group:         req.Group,
		Schema:        req.Schema,
		SchemaVersion: req.SchemaVersion,
		Version:       req.Version,
		Example:       req.Example,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, et)
}

func (h *Handler) listEventTypes(w http.ResponseWriter, r *http.Request) {
	opts := catalog.ListOpts{
		Offset:            queryInt(r, "offset", 0),
		Limit:             queryInt(r, "limit", 100),
		Group:             queryParam(r, "group"),
		IncludeDeprecated: queryParam(r, "include_deprecated") == "true",
	}

	types, err := h.courier.Catalog().ListTypes(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, types)
}

func (h *Handler) getEventType(w http.ResponseWriter, r *http.Request) {
	et, err := h.courier.Catalog().GetType(r.Context(), r.PathValue("name"))
	if err != nil {
		if errors.Is(err, courier.ErrEventTypeNotFound) {
			writeError(w, http.StatusNotFound, "event type not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, et)
}

func (h *Handler) deleteEventType(w http.ResponseWriter, r *http.Request) {
	if err := h.courier.Catalog().DeleteType(r.Context(), r.PathValue("name")); err != nil {
		if errors.Is(err, courier.ErrEventTypeNotFound) {
			writeError(w, http.StatusNotFound, "event type not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
