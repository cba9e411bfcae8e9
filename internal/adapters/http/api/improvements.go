package api

import (
	"context"
	"net/http"

	"github.com/okian/accessreg/internal/domain/model"
)

// ImprovementDependencies defines the improvement tracking operations.
type ImprovementDependencies interface {
	CreateImprovementPlan(ctx context.Context, facilityID, findingID uint64, description string, targetDate uint64, assignedTo model.Principal) (uint64, error)
	UpdateImprovementStatus(ctx context.Context, planID uint64, status model.Status, notes string) (uint64, error)
	GetImprovement(ctx context.Context, planID uint64) (model.ImprovementPlan, error)
	GetImprovementUpdate(ctx context.Context, planID, updateID uint64) (model.ImprovementUpdate, error)
}

// ImprovementHandler handles improvement plan requests.
type ImprovementHandler struct {
	deps ImprovementDependencies
}

// NewImprovementHandler creates a new improvement handler.
func NewImprovementHandler(deps ImprovementDependencies) *ImprovementHandler {
	return &ImprovementHandler{deps: deps}
}

type createPlanRequest struct {
	FacilityID  uint64          `json:"facility_id"`
	FindingID   uint64          `json:"finding_id"`
	Description string          `json:"description"`
	TargetDate  uint64          `json:"target_date"`
	AssignedTo  model.Principal `json:"assigned_to"`
}

type updateStatusRequest struct {
	// Status is a status name ("in_progress") or its numeric code ("2").
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// HandleCreate handles POST /v1/improvements.
func (h *ImprovementHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_improvement"
	var req createPlanRequest
	if err := decodeBody(op, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	id, err := h.deps.CreateImprovementPlan(r.Context(), req.FacilityID, req.FindingID, req.Description, req.TargetDate, req.AssignedTo)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeValue(w, http.StatusCreated, id)
}

// HandleGet handles GET /v1/improvements/{id}.
func (h *ImprovementHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_improvement"
	id, err := pathUint(op, r, "id", 64)
	if err != nil {
		writeFailure(w, err)
		return
	}
	plan, err := h.deps.GetImprovement(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeValue(w, http.StatusOK, plan)
}

// HandleUpdateStatus handles POST /v1/improvements/{id}/status.
func (h *ImprovementHandler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_improvement_status"
	id, err := pathUint(op, r, "id", 64)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req updateStatusRequest
	if err := decodeBody(op, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	status, err := model.ParseStatus(req.Status)
	if err != nil {
		writeFailure(w, err)
		return
	}
	updateID, err := h.deps.UpdateImprovementStatus(r.Context(), id, status, req.Notes)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeValue(w, http.StatusOK, updateID)
}

// HandleGetUpdate handles GET /v1/improvements/{id}/updates/{updateID}.
func (h *ImprovementHandler) HandleGetUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_improvement_update"
	id, err := pathUint(op, r, "id", 64)
	if err != nil {
		writeFailure(w, err)
		return
	}
	updateID, err := pathUint(op, r, "updateID", 64)
	if err != nil {
		writeFailure(w, err)
		return
	}
	u, err := h.deps.GetImprovementUpdate(r.Context(), id, updateID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeValue(w, http.StatusOK, u)
}
