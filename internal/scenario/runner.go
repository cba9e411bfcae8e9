package scenario

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/accessreg/internal/domain/model"
	"github.com/okian/accessreg/pkg/logger"
)

// Principals used by the run besides the deployer.
const (
	assessorPrincipal   = "assessor"
	contractorPrincipal = "contractor"
	outsiderPrincipal   = "mallory"
	feedbackCategory    = 1
)

// Runner executes the scenario against one server.
type Runner struct {
	cfg    Config
	client *Client
	log    logger.Logger
	report *Report
}

// NewRunner creates a runner. Zero config fields take their defaults.
func NewRunner(cfg Config, log logger.Logger) *Runner {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Deployer == "" {
		cfg.Deployer = DefaultDeployer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Rounding == "" {
		cfg.Rounding = DefaultRounding
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Runner{cfg: cfg, client: NewClient(cfg.BaseURL, cfg.Timeout), log: log}
}

// Run executes every step in order and stops at the first failure.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	r.report = &Report{StartTime: time.Now()}

	r.log.Info(ctx, "starting registry scenario",
		logger.String("baseURL", r.cfg.BaseURL),
		logger.String("deployer", r.cfg.Deployer),
		logger.String("rounding", r.cfg.Rounding),
		logger.Bool("fresh", r.cfg.Fresh))

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"clock", r.stepClock},
		{"facility", r.stepFacility},
		{"assessment", r.stepAssessment},
		{"certification", r.stepCertification},
		{"expiration", r.stepExpiration},
		{"improvement", r.stepImprovement},
		{"feedback", r.stepFeedback},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return r.report, fmt.Errorf("step %s: %w", step.name, err)
		}
		r.report.Steps++
		r.log.Debug(ctx, "step passed", logger.String("step", step.name))
	}

	r.report.Duration = time.Since(r.report.StartTime)
	r.log.Info(ctx, "registry scenario passed",
		logger.Int("steps", r.report.Steps),
		logger.Uint64("facilityID", r.report.FacilityID),
		logger.Uint64("certificationID", r.report.CertificationID),
		logger.String("duration", r.report.Duration.String()))
	return r.report, nil
}

func (r *Runner) do(ctx context.Context, method, path, caller string, body, out any) error {
	return r.client.Do(ctx, method, path, caller, body, out)
}

func (r *Runner) setHeight(ctx context.Context, h uint64) error {
	var got uint64
	if err := r.do(ctx, http.MethodPut, "/v1/clock", r.cfg.Deployer, map[string]uint64{"height": h}, &got); err != nil {
		return fmt.Errorf("the server needs clock_mode=manual: %w", err)
	}
	return expect("clock height", got, h)
}

// stepClock reads the current height and checks the clock can be moved.
func (r *Runner) stepClock(ctx context.Context) error {
	var h uint64
	if err := r.do(ctx, http.MethodGet, "/v1/clock", "", nil, &h); err != nil {
		return err
	}
	r.report.IssuedAt = h
	return r.setHeight(ctx, h)
}

func (r *Runner) stepFacility(ctx context.Context) error {
	var id uint64
	body := map[string]any{"name": "Test Facility", "location": "123 Main St", "facility_type": 1}
	if err := r.do(ctx, http.MethodPost, "/v1/facilities", r.cfg.Deployer, body, &id); err != nil {
		return err
	}
	if err := r.expectFresh("facility id", id); err != nil {
		return err
	}
	r.report.FacilityID = id

	var f model.Facility
	if err := r.do(ctx, http.MethodGet, fmt.Sprintf("/v1/facilities/%d", id), "", nil, &f); err != nil {
		return err
	}
	if err := expect("facility name", f.Name, "Test Facility"); err != nil {
		return err
	}
	return expect("registration date", f.RegistrationDate, r.report.IssuedAt)
}

// stepAssessment records an assessment and its findings and checks the
// findings count follows.
func (r *Runner) stepAssessment(ctx context.Context) error {
	fid := r.report.FacilityID
	var aid uint64
	body := map[string]any{"assessor": assessorPrincipal, "compliance_level": 2}
	if err := r.do(ctx, http.MethodPost, fmt.Sprintf("/v1/facilities/%d/assessments", fid), r.cfg.Deployer, body, &aid); err != nil {
		return err
	}
	if err := expect("assessment id", aid, uint64(1)); err != nil {
		return err
	}
	r.report.AssessmentID = aid

	if err := r.expectFindings(ctx, 0); err != nil {
		return err
	}
	for i := 1; i <= FindingCount; i++ {
		var findingID uint64
		finding := map[string]any{"severity": 3, "description": fmt.Sprintf("Finding %d", i), "target_severity": 1}
		path := fmt.Sprintf("/v1/facilities/%d/assessments/%d/findings", fid, aid)
		if err := r.do(ctx, http.MethodPost, path, r.cfg.Deployer, finding, &findingID); err != nil {
			return err
		}
		if err := expect("finding id", findingID, uint64(i)); err != nil {
			return err
		}
	}
	return r.expectFindings(ctx, FindingCount)
}

func (r *Runner) expectFindings(ctx context.Context, want uint64) error {
	var a model.Assessment
	path := fmt.Sprintf("/v1/facilities/%d/assessments/%d", r.report.FacilityID, r.report.AssessmentID)
	if err := r.do(ctx, http.MethodGet, path, "", nil, &a); err != nil {
		return err
	}
	return expect("findings count", a.FindingsCount, want)
}

func (r *Runner) stepCertification(ctx context.Context) error {
	var cid uint64
	body := map[string]any{"facility_id": r.report.FacilityID, "level": 2, "validity_period": ValidityPeriod}
	if err := r.do(ctx, http.MethodPost, "/v1/certifications", r.cfg.Deployer, body, &cid); err != nil {
		return err
	}
	if err := r.expectFresh("certification id", cid); err != nil {
		return err
	}
	r.report.CertificationID = cid

	c, err := r.verify(ctx)
	if err != nil {
		return err
	}
	if err := expect("active after issue", c.IsActive, true); err != nil {
		return err
	}
	if err := expect("issue date", c.IssueDate, r.report.IssuedAt); err != nil {
		return err
	}
	return expect("expiration date", c.ExpirationDate, r.report.IssuedAt+ValidityPeriod)
}

// stepExpiration moves the clock past expiry and checks the certification
// lapses with exactly one history entry.
func (r *Runner) stepExpiration(ctx context.Context) error {
	expiredAt := r.report.IssuedAt + ExpiryOffset
	if err := r.setHeight(ctx, expiredAt); err != nil {
		return err
	}
	r.report.ExpiredAt = expiredAt

	c, err := r.verify(ctx)
	if err != nil {
		return err
	}
	if err := expect("active after expiry", c.IsActive, false); err != nil {
		return err
	}

	var h model.CertificationHistory
	if err := r.do(ctx, http.MethodGet, fmt.Sprintf("/v1/certifications/%d/history", r.report.CertificationID), "", nil, &h); err != nil {
		return err
	}
	if err := expect("revocation date", h.RevocationDate, expiredAt); err != nil {
		return err
	}
	if h.RevocationReason == "" {
		return fmt.Errorf("%w: revocation reason is empty", ErrVerification)
	}

	// A second verification must not move the recorded history.
	if _, err := r.verify(ctx); err != nil {
		return err
	}
	var again model.CertificationHistory
	if err := r.do(ctx, http.MethodGet, fmt.Sprintf("/v1/certifications/%d/history", r.report.CertificationID), "", nil, &again); err != nil {
		return err
	}
	if err := expect("history after second verify", again, h); err != nil {
		return err
	}

	err = r.do(ctx, http.MethodPost, fmt.Sprintf("/v1/certifications/%d/revoke", r.report.CertificationID),
		r.cfg.Deployer, map[string]string{"reason": "Late revocation"}, nil)
	return expectCode("revoke after expiry", err, http.StatusConflict)
}

func (r *Runner) verify(ctx context.Context) (model.Certification, error) {
	var c model.Certification
	err := r.do(ctx, http.MethodPost, fmt.Sprintf("/v1/certifications/%d/verify", r.report.CertificationID), "", nil, &c)
	return c, err
}

// stepImprovement walks a plan to completed as its assignee and checks the
// completed date is set once.
func (r *Runner) stepImprovement(ctx context.Context) error {
	var pid uint64
	body := map[string]any{
		"facility_id": r.report.FacilityID,
		"finding_id":  1,
		"description": "Install ramp at the main entrance",
		"target_date": r.report.ExpiredAt + 100,
		"assigned_to": contractorPrincipal,
	}
	if err := r.do(ctx, http.MethodPost, "/v1/improvements", r.cfg.Deployer, body, &pid); err != nil {
		return err
	}
	if err := r.expectFresh("plan id", pid); err != nil {
		return err
	}
	r.report.PlanID = pid
	statusPath := fmt.Sprintf("/v1/improvements/%d/status", pid)

	err := r.do(ctx, http.MethodPost, statusPath, outsiderPrincipal, map[string]string{"status": "in_progress"}, nil)
	if err := expectCode("update by outsider", err, http.StatusForbidden); err != nil {
		return err
	}

	for i, status := range []string{"in_progress", "completed"} {
		var updateID uint64
		req := map[string]string{"status": status, "notes": "contractor update"}
		if err := r.do(ctx, http.MethodPost, statusPath, contractorPrincipal, req, &updateID); err != nil {
			return err
		}
		if err := expect("update id", updateID, uint64(i+1)); err != nil {
			return err
		}
	}

	plan, err := r.plan(ctx)
	if err != nil {
		return err
	}
	if err := expect("completed date", plan.CompletedDate, r.report.ExpiredAt); err != nil {
		return err
	}

	if err := r.setHeight(ctx, r.report.ExpiredAt+10); err != nil {
		return err
	}
	var updateID uint64
	if err := r.do(ctx, http.MethodPost, statusPath, r.cfg.Deployer, map[string]string{"status": "completed"}, &updateID); err != nil {
		return err
	}
	if err := expect("update id", updateID, uint64(3)); err != nil {
		return err
	}

	again, err := r.plan(ctx)
	if err != nil {
		return err
	}
	if err := expect("completed date after repeat", again.CompletedDate, plan.CompletedDate); err != nil {
		return err
	}
	if err := expect("update count", again.UpdateCount, uint64(3)); err != nil {
		return err
	}

	err = r.do(ctx, http.MethodPost, statusPath, r.cfg.Deployer, map[string]string{"status": "open"}, nil)
	return expectCode("reopen completed plan", err, http.StatusConflict)
}

func (r *Runner) plan(ctx context.Context) (model.ImprovementPlan, error) {
	var p model.ImprovementPlan
	err := r.do(ctx, http.MethodGet, fmt.Sprintf("/v1/improvements/%d", r.report.PlanID), "", nil, &p)
	return p, err
}

// stepFeedback submits two ratings and checks the aggregate and average.
func (r *Runner) stepFeedback(ctx context.Context) error {
	fid := r.report.FacilityID
	for _, fb := range []struct {
		user   string
		rating uint32
	}{{"visitor-a", 4}, {"visitor-b", 5}} {
		body := map[string]any{"facility_id": fid, "category": feedbackCategory, "rating": fb.rating, "comments": "visit"}
		if err := r.do(ctx, http.MethodPost, "/v1/feedback", fb.user, body, nil); err != nil {
			return err
		}
	}

	err := r.do(ctx, http.MethodPost, "/v1/feedback", "visitor-c",
		map[string]any{"facility_id": fid, "category": feedbackCategory, "rating": 0}, nil)
	if err := expectCode("out of range rating", err, http.StatusBadRequest); err != nil {
		return err
	}

	var agg model.CategoryRating
	if err := r.do(ctx, http.MethodGet, fmt.Sprintf("/v1/facilities/%d/ratings/%d", fid, feedbackCategory), "", nil, &agg); err != nil {
		return err
	}
	if err := expect("total ratings", agg.TotalRatings, uint64(2)); err != nil {
		return err
	}
	if err := expect("sum ratings", agg.SumRatings, uint64(9)); err != nil {
		return err
	}

	var avg uint64
	if err := r.do(ctx, http.MethodGet, fmt.Sprintf("/v1/facilities/%d/ratings/%d/average", fid, feedbackCategory), "", nil, &avg); err != nil {
		return err
	}
	want := uint64(4)
	if r.cfg.Rounding == "half_up" {
		want = 5
	}
	r.report.Average = avg
	return expect("average rating", avg, want)
}

func (r *Runner) expectFresh(what string, id uint64) error {
	if !r.cfg.Fresh {
		return nil
	}
	return expect(what, id, uint64(1))
}
