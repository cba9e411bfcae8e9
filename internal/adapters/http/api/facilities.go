package api

import (
	"context"
	"net/http"

	"github.com/okian/accessreg/internal/domain/model"
)

// FacilityDependencies defines the facility and assessment operations.
type FacilityDependencies interface {
	RegisterFacility(ctx context.Context, name, location string, facilityType uint32) (uint64, error)
	GetFacility(ctx context.Context, facilityID uint64) (model.Facility, error)
	RecordAssessment(ctx context.Context, facilityID uint64, assessor model.Principal, complianceLevel uint32) (uint64, error)
	GetAssessment(ctx context.Context, facilityID, assessmentID uint64) (model.Assessment, error)
	RecordFinding(ctx context.Context, facilityID, assessmentID uint64, severity uint32, description string, targetSeverity uint32) (uint64, error)
	GetFinding(ctx context.Context, facilityID, findingID uint64) (model.Finding, error)
}

// FacilityHandler handles facility, assessment and finding requests.
type FacilityHandler struct {
	deps FacilityDependencies
}

// NewFacilityHandler creates a new facility handler.
func NewFacilityHandler(deps FacilityDependencies) *FacilityHandler {
	return &FacilityHandler{deps: deps}
}

type registerFacilityRequest struct {
	Name         string `json:"name"`
	Location     string `json:"location"`
	FacilityType uint32 `json:"facility_type"`
}

type recordAssessmentRequest struct {
	Assessor        model.Principal `json:"assessor"`
	ComplianceLevel uint32          `json:"compliance_level"`
}

type recordFindingRequest struct {
	Severity       uint32 `json:"severity"`
	Description    string `json:"description"`
	TargetSeverity uint32 `json:"target_severity"`
}

// HandleRegister handles POST /v1/facilities.
func (h *FacilityHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	const op = "api.register_facility"
	var req registerFacilityRequest
	if err := decodeBody(op, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	id, err := h.deps.RegisterFacility(r.Context(), req.Name, req.Location, req.FacilityType)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeValue(w, http.StatusCreated, id)
}

// HandleGet handles GET /v1/facilities/{facilityID}.
func (h *FacilityHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_facility"
	facilityID, err := pathUint(op, r, "facilityID", 64)
	if err != nil {
		writeFailure(w, err)
		return
	}
	f, err := h.deps.GetFacility(r.Context(), facilityID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeValue(w, http.StatusOK, f)
}

// HandleRecordAssessment handles POST /v1/facilities/{facilityID}/assessments.
func (h *FacilityHandler) HandleRecordAssessment(w http.ResponseWriter, r *http.Request) {
	const op = "api.record_assessment"
	facilityID, err := pathUint(op, r, "facilityID", 64)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req recordAssessmentRequest
	if err := decodeBody(op, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	id, err := h.deps.RecordAssessment(r.Context(), facilityID, req.Assessor, req.ComplianceLevel)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeValue(w, http.StatusCreated, id)
}

// HandleGetAssessment handles GET /v1/facilities/{facilityID}/assessments/{assessmentID}.
func (h *FacilityHandler) HandleGetAssessment(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_assessment"
	facilityID, err := pathUint(op, r, "facilityID", 64)
	if err != nil {
		writeFailure(w, err)
		return
	}
	assessmentID, err := pathUint(op, r, "assessmentID", 64)
	if err != nil {
		writeFailure(w, err)
		return
	}
	a, err := h.deps.GetAssessment(r.Context(), facilityID, assessmentID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeValue(w, http.StatusOK, a)
}

// HandleRecordFinding handles POST /v1/facilities/{facilityID}/assessments/{assessmentID}/findings.
func (h *FacilityHandler) HandleRecordFinding(w http.ResponseWriter, r *http.Request) {
	const op = "api.record_finding"
	facilityID, err := pathUint(op, r, "facilityID", 64)
	if err != nil {
		writeFailure(w, err)
		return
	}
	assessmentID, err := pathUint(op, r, "assessmentID", 64)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req recordFindingRequest
	if err := decodeBody(op, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	id, err := h.deps.RecordFinding(r.Context(), facilityID, assessmentID, req.Severity, req.Description, req.TargetSeverity)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeValue(w, http.StatusCreated, id)
}

// HandleGetFinding handles GET /v1/facilities/{facilityID}/findings/{findingID}.
func (h *FacilityHandler) HandleGetFinding(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_finding"
	facilityID, err := pathUint(op, r, "facilityID", 64)
	if err != nil {
		writeFailure(w, err)
		return
	}
	findingID, err := pathUint(op, r, "findingID", 64)
	if err != nil {
		writeFailure(w, err)
		return
	}
	f, err := h.deps.GetFinding(r.Context(), facilityID, findingID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeValue(w, http.StatusOK, f)
}
