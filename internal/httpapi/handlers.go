package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	authmw "github.com/jermoo/realms-core/internal/middleware"
	"github.com/jermoo/realms-core/internal/realmdomain"
	"github.com/jermoo/realms-core/internal/realms"
)

// Handlers implements the five routes exposed under /v1/realms.
type Handlers struct {
	service *realms.Service
}

// NewHandlers constructs Handlers backed by service.
func NewHandlers(service *realms.Service) *Handlers {
	return &Handlers{service: service}
}

// List handles GET /v1/realms.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	resources, err := h.service.List(r.Context(), callerFrom(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	wire := make([]wireResource, 0, len(resources))
	for _, res := range resources {
		wire = append(wire, toWireResource(res))
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": len(wire), "_results": wire})
}

// Get handles GET /v1/realms/{id}?rev=.
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	id, err := labelParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err))
		return
	}

	rev, ok, err := parseRev(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err))
		return
	}
	var revPtr *int
	if ok {
		revPtr = &rev
	}

	resource, err := h.service.Get(r.Context(), callerFrom(r), id, revPtr)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, toWireResource(resource))
}

// putInput is the PUT /v1/realms/{id} request body.
type putInput struct {
	Name         string `json:"name"`
	OpenIDConfig string `json:"openIdConfig"`
	Logo         string `json:"logo,omitempty"`
}

// Put handles PUT /v1/realms/{id}?rev=, creating when rev is absent and
// updating at that revision otherwise.
func (h *Handlers) Put(w http.ResponseWriter, r *http.Request) {
	id, err := labelParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err))
		return
	}

	var in putInput
	if err := decodeJSON(r, &in); err != nil {
		if authmw.IsMaxBytesError(err) {
			authmw.RespondBodyTooLarge(w)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody(err))
		return
	}

	rev, hasRev, err := parseRev(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err))
		return
	}
	var revPtr *int
	if hasRev {
		revPtr = &rev
	}

	caller := callerFrom(r)
	metadata, created, err := h.service.Put(r.Context(), caller, id, revPtr, caller.Subject.String(), realms.CreateOrUpdateInput{
		Name: in.Name, OpenIDConfig: in.OpenIDConfig, Logo: in.Logo,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toWireMetadata(metadata))
}

// Delete handles DELETE /v1/realms/{id}?rev= (deprecation).
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := labelParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err))
		return
	}

	rev, ok, err := parseRev(r)
	if err != nil || !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "rev query parameter is required"})
		return
	}

	caller := callerFrom(r)
	metadata, err := h.service.Delete(r.Context(), caller, id, rev, caller.Subject.String())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, toWireMetadata(metadata))
}

func labelParam(r *http.Request) (realmdomain.Label, error) {
	return realmdomain.ParseLabel(chi.URLParam(r, "id"))
}

func parseRev(r *http.Request) (int, bool, error) {
	raw := r.URL.Query().Get("rev")
	if raw == "" {
		return 0, false, nil
	}
	rev, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, errRev
	}
	return rev, true, nil
}

var errRev = httpError("rev must be an integer")

type httpError string

func (e httpError) Error() string { return string(e) }
