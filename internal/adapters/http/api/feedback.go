package api

import (
	"context"
	"net/http"

	"github.com/okian/accessreg/internal/domain/model"
)

// FeedbackDependencies defines the feedback operations.
type FeedbackDependencies interface {
	SubmitFeedback(ctx context.Context, facilityID uint64, category, rating uint32, comments string) (uint64, error)
	GetFeedback(ctx context.Context, id uint64) (model.FeedbackEntry, error)
	GetCategoryRating(ctx context.Context, facilityID uint64, category uint32) (model.CategoryRating, error)
	CalculateAverageRating(ctx context.Context, facilityID uint64, category uint32) (uint64, error)
}

// FeedbackHandler handles feedback and rating requests.
type FeedbackHandler struct {
	deps FeedbackDependencies
}

// NewFeedbackHandler creates a new feedback handler.
func NewFeedbackHandler(deps FeedbackDependencies) *FeedbackHandler {
	return &FeedbackHandler{deps: deps}
}

type submitFeedbackRequest struct {
	FacilityID uint64 `json:"facility_id"`
	Category   uint32 `json:"category"`
	Rating     uint32 `json:"rating"`
	Comments   string `json:"comments"`
}

// HandleSubmit handles POST /v1/feedback.
func (h *FeedbackHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_feedback"
	var req submitFeedbackRequest
	if err := decodeBody(op, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	id, err := h.deps.SubmitFeedback(r.Context(), req.FacilityID, req.Category, req.Rating, req.Comments)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeValue(w, http.StatusCreated, id)
}

// HandleGet handles GET /v1/feedback/{id}.
func (h *FeedbackHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_feedback"
	id, err := pathUint(op, r, "id", 64)
	if err != nil {
		writeFailure(w, err)
		return
	}
	e, err := h.deps.GetFeedback(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeValue(w, http.StatusOK, e)
}

// HandleCategoryRating handles GET /v1/facilities/{facilityID}/ratings/{category}.
func (h *FeedbackHandler) HandleCategoryRating(w http.ResponseWriter, r *http.Request) {
	const op = "api.category_rating"
	facilityID, category, err := ratingPath(op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	agg, err := h.deps.GetCategoryRating(r.Context(), facilityID, category)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeValue(w, http.StatusOK, agg)
}

// HandleAverage handles GET /v1/facilities/{facilityID}/ratings/{category}/average.
func (h *FeedbackHandler) HandleAverage(w http.ResponseWriter, r *http.Request) {
	const op = "api.average_rating"
	facilityID, category, err := ratingPath(op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	avg, err := h.deps.CalculateAverageRating(r.Context(), facilityID, category)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeValue(w, http.StatusOK, avg)
}

func ratingPath(op string, r *http.Request) (uint64, uint32, error) {
	facilityID, err := pathUint(op, r, "facilityID", 64)
	if err != nil {
		return 0, 0, err
	}
	category, err := pathUint(op, r, "category", 32)
	if err != nil {
		return 0, 0, err
	}
	return facilityID, uint32(category), nil
}
