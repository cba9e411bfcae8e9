package api

import (
	"context"
	"net/http"

	"github.com/okian/accessreg/internal/domain/model"
)

// CertificationDependencies defines the certification operations.
type CertificationDependencies interface {
	IssueCertification(ctx context.Context, facilityID uint64, level uint32, validityPeriod uint64) (uint64, error)
	VerifyCertification(ctx context.Context, id uint64) (model.Certification, error)
	RevokeCertification(ctx context.Context, id uint64, reason string) error
	GetCertification(ctx context.Context, id uint64) (model.Certification, error)
	GetCertificationHistory(ctx context.Context, id uint64) (model.CertificationHistory, error)
	ActiveCertification(ctx context.Context, facilityID uint64) (model.Certification, error)
}

// CertificationHandler handles certification requests.
type CertificationHandler struct {
	deps CertificationDependencies
}

// NewCertificationHandler creates a new certification handler.
func NewCertificationHandler(deps CertificationDependencies) *CertificationHandler {
	return &CertificationHandler{deps: deps}
}

type issueCertificationRequest struct {
	FacilityID     uint64 `json:"facility_id"`
	Level          uint32 `json:"level"`
	ValidityPeriod uint64 `json:"validity_period"`
}

type revokeCertificationRequest struct {
	Reason string `json:"reason"`
}

// HandleIssue handles POST /v1/certifications.
func (h *CertificationHandler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	const op = "api.issue_certification"
	var req issueCertificationRequest
	if err := decodeBody(op, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	id, err := h.deps.IssueCertification(r.Context(), req.FacilityID, req.Level, req.ValidityPeriod)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeValue(w, http.StatusCreated, id)
}

// HandleGet handles GET /v1/certifications/{id}.
func (h *CertificationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, "api.get_certification", func(ctx context.Context, id uint64) (any, error) {
		return h.deps.GetCertification(ctx, id)
	})
}

// HandleVerify handles POST /v1/certifications/{id}/verify.
func (h *CertificationHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, "api.verify_certification", func(ctx context.Context, id uint64) (any, error) {
		return h.deps.VerifyCertification(ctx, id)
	})
}

// HandleHistory handles GET /v1/certifications/{id}/history.
func (h *CertificationHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, "api.certification_history", func(ctx context.Context, id uint64) (any, error) {
		return h.deps.GetCertificationHistory(ctx, id)
	})
}

// HandleRevoke handles POST /v1/certifications/{id}/revoke.
func (h *CertificationHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	const op = "api.revoke_certification"
	id, err := pathUint(op, r, "id", 64)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req revokeCertificationRequest
	if err := decodeBody(op, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	if err := h.deps.RevokeCertification(r.Context(), id, req.Reason); err != nil {
		writeFailure(w, err)
		return
	}
	writeValue(w, http.StatusOK, true)
}

// HandleActive handles GET /v1/facilities/{facilityID}/certification.
func (h *CertificationHandler) HandleActive(w http.ResponseWriter, r *http.Request) {
	const op = "api.active_certification"
	facilityID, err := pathUint(op, r, "facilityID", 64)
	if err != nil {
		writeFailure(w, err)
		return
	}
	cert, err := h.deps.ActiveCertification(r.Context(), facilityID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeValue(w, http.StatusOK, cert)
}

func (h *CertificationHandler) withID(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, id uint64) (any, error)) {
	id, err := pathUint(op, r, "id", 64)
	if err != nil {
		writeFailure(w, err)
		return
	}
	v, err := fn(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeValue(w, http.StatusOK, v)
}
