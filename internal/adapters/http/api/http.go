// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Dependencies bundles what the HTTP handlers need. Each field is a narrow
// interface so the handler layer stays loosely coupled to the components.
type Dependencies struct {
	Facilities     FacilityDependencies
	Certifications CertificationDependencies
	Improvements   ImprovementDependencies
	Feedback       FeedbackDependencies
	Registry       RegistryDependencies
	Stats          StatsProvider
}

// Server wires HTTP routes for the registry API.
type Server struct {
	healthHandler        *HealthHandler
	statsHandler         *StatsHandler
	facilityHandler      *FacilityHandler
	certificationHandler *CertificationHandler
	improvementHandler   *ImprovementHandler
	feedbackHandler      *FeedbackHandler
	registryHandler      *RegistryHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:        NewHealthHandler(),
		statsHandler:         NewStatsHandler(deps.Stats),
		facilityHandler:      NewFacilityHandler(deps.Facilities),
		certificationHandler: NewCertificationHandler(deps.Certifications),
		improvementHandler:   NewImprovementHandler(deps.Improvements),
		feedbackHandler:      NewFeedbackHandler(deps.Feedback),
		registryHandler:      NewRegistryHandler(deps.Registry),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /stats", "stats", s.statsHandler.HandleStats)

	f := s.facilityHandler
	route("POST /v1/facilities", "facilities", f.HandleRegister)
	route("GET /v1/facilities/{facilityID}", "facility", f.HandleGet)
	route("POST /v1/facilities/{facilityID}/assessments", "assessments", f.HandleRecordAssessment)
	route("GET /v1/facilities/{facilityID}/assessments/{assessmentID}", "assessment", f.HandleGetAssessment)
	route("POST /v1/facilities/{facilityID}/assessments/{assessmentID}/findings", "findings", f.HandleRecordFinding)
	route("GET /v1/facilities/{facilityID}/findings/{findingID}", "finding", f.HandleGetFinding)

	c := s.certificationHandler
	route("POST /v1/certifications", "certifications", c.HandleIssue)
	route("GET /v1/certifications/{id}", "certification", c.HandleGet)
	route("POST /v1/certifications/{id}/verify", "certification_verify", c.HandleVerify)
	route("POST /v1/certifications/{id}/revoke", "certification_revoke", c.HandleRevoke)
	route("GET /v1/certifications/{id}/history", "certification_history", c.HandleHistory)
	route("GET /v1/facilities/{facilityID}/certification", "facility_certification", c.HandleActive)

	i := s.improvementHandler
	route("POST /v1/improvements", "improvements", i.HandleCreate)
	route("GET /v1/improvements/{id}", "improvement", i.HandleGet)
	route("POST /v1/improvements/{id}/status", "improvement_status", i.HandleUpdateStatus)
	route("GET /v1/improvements/{id}/updates/{updateID}", "improvement_update", i.HandleGetUpdate)

	fb := s.feedbackHandler
	route("POST /v1/feedback", "feedback_submit", fb.HandleSubmit)
	route("GET /v1/feedback/{id}", "feedback", fb.HandleGet)
	route("GET /v1/facilities/{facilityID}/ratings/{category}", "rating", fb.HandleCategoryRating)
	route("GET /v1/facilities/{facilityID}/ratings/{category}/average", "rating_average", fb.HandleAverage)

	reg := s.registryHandler
	route("GET /v1/admin/{component}", "admin", reg.HandleGetAdmin)
	route("PUT /v1/admin/{component}", "admin", reg.HandleSetAdmin)
	route("GET /v1/clock", "clock", reg.HandleGetClock)
	route("PUT /v1/clock", "clock", reg.HandleSetClock)
}

// valueResponse wraps every successful result.
type valueResponse struct {
	Value any `json:"value"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeValue(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, valueResponse{Value: v})
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure writes err with the status its kind maps to.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}

// decodeBody decodes the JSON request body into v.
func decodeBody(op string, r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

// pathUint parses a numeric path parameter.
func pathUint(op string, r *http.Request, name string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(r.PathValue(name), 10, bits)
	if err != nil {
		return 0, WrapKind(op, ErrBadRequest, err)
	}
	return v, nil
}
