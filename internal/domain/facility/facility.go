// Package facility registers facilities and records their compliance
// assessments and findings.
package facility

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/accessreg/internal/adapters/repository"
	"github.com/okian/accessreg/internal/domain/access"
	"github.com/okian/accessreg/internal/domain/clock"
	"github.com/okian/accessreg/internal/domain/model"
	"github.com/okian/accessreg/pkg/logger"
	"github.com/okian/accessreg/pkg/metrics"
)

// Record buckets.
const (
	BucketFacility   = "facility"
	BucketAssessment = "assessment"
	BucketFinding    = "finding"
)

// Service implements the facility and assessment operations.
type Service struct {
	store  repository.Store
	clock  clock.Clock
	gate   *access.Gate
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a facility service. The deployer is the genesis administrator.
func New(store repository.Store, clk clock.Clock, deployer model.Principal, opts ...Option) *Service {
	s := &Service{
		store:  store,
		clock:  clk,
		gate:   access.NewGate(access.ComponentFacility, deployer),
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init stores the genesis administrator if none is set.
func (s *Service) Init(ctx context.Context) error {
	return s.store.Update(ctx, s.gate.Init)
}

// RegisterFacility registers a facility and returns its id.
func (s *Service) RegisterFacility(ctx context.Context, name, location string, facilityType uint32) (id uint64, err error) {
	const op = "facility.register"
	defer s.observe(ctx, op, time.Now(), &err)

	if strings.TrimSpace(name) == "" {
		return 0, model.Errorf(op, model.ErrInvalidArgument, "facility name is required")
	}
	caller := access.CallerFrom(ctx)
	now := s.clock.Now(ctx)
	err = s.store.Update(ctx, func(tx repository.Tx) error {
		if err := s.gate.Require(tx, caller); err != nil {
			return err
		}
		next, err := repository.NextID(tx, BucketFacility)
		if err != nil {
			return err
		}
		id = next
		return repository.Save(tx, BucketFacility, repository.Key(id), model.Facility{
			ID:               id,
			Name:             name,
			Location:         location,
			FacilityType:     facilityType,
			RegistrationDate: now,
		})
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "facility registered", logger.Uint64("facility_id", id), logger.String("name", name))
	return id, nil
}

// GetFacility returns a registered facility.
func (s *Service) GetFacility(ctx context.Context, facilityID uint64) (model.Facility, error) {
	const op = "facility.get"
	var f model.Facility
	err := s.store.View(ctx, func(r repository.Reader) error {
		var err error
		f, err = load[model.Facility](r, op, BucketFacility, "facility", facilityID)
		return err
	})
	return f, err
}

// RecordAssessment records an assessment of a facility. An empty assessor
// defaults to the caller.
func (s *Service) RecordAssessment(ctx context.Context, facilityID uint64, assessor model.Principal, complianceLevel uint32) (id uint64, err error) {
	const op = "facility.record_assessment"
	defer s.observe(ctx, op, time.Now(), &err)

	caller := access.CallerFrom(ctx)
	if assessor == "" {
		assessor = caller
	}
	now := s.clock.Now(ctx)
	err = s.store.Update(ctx, func(tx repository.Tx) error {
		if err := s.gate.Require(tx, caller); err != nil {
			return err
		}
		if !repository.Exists(tx, BucketFacility, repository.Key(facilityID)) {
			return model.Errorf(op, model.ErrNotFound, "facility %d", facilityID)
		}
		next, err := repository.NextID(tx, scope(BucketAssessment, facilityID))
		if err != nil {
			return err
		}
		id = next
		return repository.Save(tx, BucketAssessment, repository.Key(facilityID, id), model.Assessment{
			ID:              id,
			FacilityID:      facilityID,
			Date:            now,
			Assessor:        assessor,
			ComplianceLevel: complianceLevel,
		})
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "assessment recorded",
		logger.Uint64("facility_id", facilityID),
		logger.Uint64("assessment_id", id),
		logger.String("assessor", string(assessor)),
	)
	return id, nil
}

// GetAssessment returns an assessment of a facility.
func (s *Service) GetAssessment(ctx context.Context, facilityID, assessmentID uint64) (model.Assessment, error) {
	const op = "facility.get_assessment"
	var a model.Assessment
	err := s.store.View(ctx, func(r repository.Reader) error {
		var err error
		a, err = load[model.Assessment](r, op, BucketAssessment, "assessment", facilityID, assessmentID)
		return err
	})
	return a, err
}

// RecordFinding records a finding against an assessment and bumps the
// assessment's findings count in the same unit. It returns the finding id.
func (s *Service) RecordFinding(ctx context.Context, facilityID, assessmentID uint64, severity uint32, description string, targetSeverity uint32) (id uint64, err error) {
	const op = "facility.record_finding"
	defer s.observe(ctx, op, time.Now(), &err)

	caller := access.CallerFrom(ctx)
	err = s.store.Update(ctx, func(tx repository.Tx) error {
		if err := s.gate.Require(tx, caller); err != nil {
			return err
		}
		assessment, err := load[model.Assessment](tx, op, BucketAssessment, "assessment", facilityID, assessmentID)
		if err != nil {
			return err
		}
		next, err := repository.NextID(tx, scope(BucketFinding, facilityID))
		if err != nil {
			return err
		}
		id = next
		assessment.FindingsCount++
		if err := repository.Save(tx, BucketAssessment, repository.Key(facilityID, assessmentID), assessment); err != nil {
			return err
		}
		return repository.Save(tx, BucketFinding, repository.Key(facilityID, id), model.Finding{
			ID:             id,
			FacilityID:     facilityID,
			AssessmentID:   assessmentID,
			Severity:       severity,
			Description:    description,
			TargetSeverity: targetSeverity,
		})
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "finding recorded",
		logger.Uint64("facility_id", facilityID),
		logger.Uint64("assessment_id", assessmentID),
		logger.Uint64("finding_id", id),
	)
	return id, nil
}

// GetFinding returns a finding of a facility.
func (s *Service) GetFinding(ctx context.Context, facilityID, findingID uint64) (model.Finding, error) {
	const op = "facility.get_finding"
	var f model.Finding
	err := s.store.View(ctx, func(r repository.Reader) error {
		var err error
		f, err = load[model.Finding](r, op, BucketFinding, "finding", facilityID, findingID)
		return err
	})
	return f, err
}

// FacilityExists reports whether a facility is registered.
func (s *Service) FacilityExists(ctx context.Context, facilityID uint64) (bool, error) {
	var ok bool
	err := s.store.View(ctx, func(r repository.Reader) error {
		ok = repository.Exists(r, BucketFacility, repository.Key(facilityID))
		return nil
	})
	return ok, err
}

// FindingExists reports whether a finding is recorded for a facility.
func (s *Service) FindingExists(ctx context.Context, facilityID, findingID uint64) (bool, error) {
	var ok bool
	err := s.store.View(ctx, func(r repository.Reader) error {
		ok = repository.Exists(r, BucketFinding, repository.Key(facilityID, findingID))
		return nil
	})
	return ok, err
}

// SetAdmin hands the component administration to newAdmin.
func (s *Service) SetAdmin(ctx context.Context, newAdmin model.Principal) (err error) {
	defer s.observe(ctx, "facility.set_admin", time.Now(), &err)
	caller := access.CallerFrom(ctx)
	return s.store.Update(ctx, func(tx repository.Tx) error {
		return s.gate.SetAdmin(tx, caller, newAdmin)
	})
}

// Admin returns the current administrator.
func (s *Service) Admin(ctx context.Context) (model.Principal, error) {
	var admin model.Principal
	err := s.store.View(ctx, func(r repository.Reader) error {
		var err error
		admin, err = s.gate.Admin(r)
		return err
	})
	return admin, err
}

// Counts returns the number of stored records per bucket.
func (s *Service) Counts(ctx context.Context) (map[string]int, error) {
	counts := map[string]int{}
	err := s.store.View(ctx, func(r repository.Reader) error {
		for _, b := range []string{BucketFacility, BucketAssessment, BucketFinding} {
			counts[b] = r.Count(b)
		}
		return nil
	})
	return counts, err
}

func (s *Service) observe(ctx context.Context, op string, start time.Time, errp *error) {
	outcome := metrics.OutcomeOK
	switch {
	case *errp == nil:
	case model.Rejected(*errp):
		outcome = metrics.OutcomeRejected
		s.logger.Debug(ctx, "facility operation rejected", logger.String("op", op), logger.Error(*errp))
	default:
		outcome = metrics.OutcomeError
		s.logger.Error(ctx, "facility operation failed", logger.String("op", op), logger.Error(*errp))
	}
	metrics.RecordOperation(access.ComponentFacility, op, outcome, float64(time.Since(start).Microseconds())/1000)
}

func scope(bucket string, parent uint64) string {
	return fmt.Sprintf("%s/%d", bucket, parent)
}

// load reads a record by id parts and maps a missing record to ErrNotFound.
func load[T any](r repository.Reader, op, bucket, what string, ids ...uint64) (T, error) {
	key := repository.Key(ids...)
	if !repository.Exists(r, bucket, key) {
		var zero T
		return zero, model.Errorf(op, model.ErrNotFound, "%s %s", what, key)
	}
	return repository.Load[T](r, bucket, key)
}
