package api

import (
	"context"
	"net/http"

	"github.com/okian/accessreg/internal/domain/model"
)

// RegistryDependencies defines component administration and clock access.
type RegistryDependencies interface {
	Admin(ctx context.Context, component string) (model.Principal, error)
	SetAdmin(ctx context.Context, component string, newAdmin model.Principal) error
	Height(ctx context.Context) uint64
	SetHeight(ctx context.Context, h uint64) (uint64, error)
}

// RegistryHandler handles administrator and clock requests.
type RegistryHandler struct {
	deps RegistryDependencies
}

// NewRegistryHandler creates a new registry handler.
func NewRegistryHandler(deps RegistryDependencies) *RegistryHandler {
	return &RegistryHandler{deps: deps}
}

type setAdminRequest struct {
	Admin model.Principal `json:"admin"`
}

type setClockRequest struct {
	Height uint64 `json:"height"`
}

// HandleGetAdmin handles GET /v1/admin/{component}.
func (h *RegistryHandler) HandleGetAdmin(w http.ResponseWriter, r *http.Request) {
	admin, err := h.deps.Admin(r.Context(), r.PathValue("component"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeValue(w, http.StatusOK, admin)
}

// HandleSetAdmin handles PUT /v1/admin/{component}.
func (h *RegistryHandler) HandleSetAdmin(w http.ResponseWriter, r *http.Request) {
	const op = "api.set_admin"
	var req setAdminRequest
	if err := decodeBody(op, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	if err := h.deps.SetAdmin(r.Context(), r.PathValue("component"), req.Admin); err != nil {
		writeFailure(w, err)
		return
	}
	writeValue(w, http.StatusOK, true)
}

// HandleGetClock handles GET /v1/clock.
func (h *RegistryHandler) HandleGetClock(w http.ResponseWriter, r *http.Request) {
	writeValue(w, http.StatusOK, h.deps.Height(r.Context()))
}

// HandleSetClock handles PUT /v1/clock.
func (h *RegistryHandler) HandleSetClock(w http.ResponseWriter, r *http.Request) {
	const op = "api.set_clock"
	var req setClockRequest
	if err := decodeBody(op, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	height, err := h.deps.SetHeight(r.Context(), req.Height)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeValue(w, http.StatusOK, height)
}
