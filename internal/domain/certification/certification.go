// Package certification issues, verifies and revokes facility accessibility
// certifications and keeps the history of deactivated ones.
package certification

import (
	"context"
	"math"
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
	BucketCertification = "certification"
	BucketHistory       = "certification_history"
	// BucketActive maps a facility id to its most recently issued certification.
	BucketActive = "certification_by_facility"
)

// Transition labels.
const (
	TransitionIssued     = "issued"
	TransitionRevoked    = "revoked"
	TransitionExpired    = "expired"
	TransitionSuperseded = "superseded"
)

// FacilityLookup reports whether a facility is registered.
type FacilityLookup interface {
	FacilityExists(ctx context.Context, facilityID uint64) (bool, error)
}

// Service implements the certification operations.
type Service struct {
	store      repository.Store
	clock      clock.Clock
	gate       *access.Gate
	facilities FacilityLookup
	logger     logger.Logger

	expirationReason string
	supersedeOnIssue bool
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

// WithExpirationReason sets the reason recorded when a certification expires.
func WithExpirationReason(reason string) Option {
	return func(s *Service) {
		if strings.TrimSpace(reason) != "" {
			s.expirationReason = reason
		}
	}
}

// WithSupersedeOnIssue controls whether issuing a certification deactivates
// the facility's current one.
func WithSupersedeOnIssue(enabled bool) Option {
	return func(s *Service) {
		s.supersedeOnIssue = enabled
	}
}

// New creates a certification service.
func New(store repository.Store, clk clock.Clock, deployer model.Principal, facilities FacilityLookup, opts ...Option) *Service {
	s := &Service{
		store:            store,
		clock:            clk,
		gate:             access.NewGate(access.ComponentCertification, deployer),
		facilities:       facilities,
		logger:           logger.Discard(),
		expirationReason: DefaultExpirationReason,
		supersedeOnIssue: true,
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

// IssueCertification issues a certification valid for validityPeriod heights.
func (s *Service) IssueCertification(ctx context.Context, facilityID uint64, level uint32, validityPeriod uint64) (id uint64, err error) {
	const op = "certification.issue"
	defer s.observe(ctx, op, time.Now(), &err)

	if validityPeriod == 0 {
		return 0, model.Errorf(op, model.ErrInvalidArgument, "validity period must be positive")
	}
	caller := access.CallerFrom(ctx)
	now := s.clock.Now(ctx)
	if now > math.MaxUint64-validityPeriod {
		return 0, model.Errorf(op, model.ErrInvalidArgument, "validity period %d overflows height %d", validityPeriod, now)
	}
	exists, err := s.facilities.FacilityExists(ctx, facilityID)
	if err != nil {
		return 0, err
	}

	var (
		superseded *model.CertificationHistory
		transition string
	)
	err = s.store.Update(ctx, func(tx repository.Tx) error {
		if err := s.gate.Require(tx, caller); err != nil {
			return err
		}
		if !exists {
			return model.Errorf(op, model.ErrNotFound, "facility %d", facilityID)
		}
		if s.supersedeOnIssue {
			var err error
			if superseded, transition, err = s.supersede(tx, facilityID, now); err != nil {
				return err
			}
		}
		next, err := repository.NextID(tx, BucketCertification)
		if err != nil {
			return err
		}
		id = next
		if err := repository.Save(tx, BucketCertification, repository.Key(id), model.Certification{
			ID:             id,
			FacilityID:     facilityID,
			IssueDate:      now,
			ExpirationDate: now + validityPeriod,
			Level:          level,
			Certifier:      caller,
			IsActive:       true,
		}); err != nil {
			return err
		}
		return repository.Save(tx, BucketActive, repository.Key(facilityID), id)
	})
	if err != nil {
		return 0, err
	}

	if superseded != nil {
		s.recordDeactivation(ctx, superseded, transition)
	}
	metrics.RecordCertificationTransition(TransitionIssued)
	s.logger.Info(ctx, "certification issued",
		logger.Uint64("certification_id", id),
		logger.Uint64("facility_id", facilityID),
		logger.Uint64("expiration_date", now+validityPeriod),
	)
	return id, nil
}

// supersede deactivates the facility's current certification, if any, and
// reports the transition it went through: expired when it had already lapsed.
func (s *Service) supersede(tx repository.Tx, facilityID, now uint64) (*model.CertificationHistory, string, error) {
	key := repository.Key(facilityID)
	if !repository.Exists(tx, BucketActive, key) {
		return nil, "", nil
	}
	prevID, err := repository.Load[uint64](tx, BucketActive, key)
	if err != nil {
		return nil, "", err
	}
	prev, err := repository.Load[model.Certification](tx, BucketCertification, repository.Key(prevID))
	if err != nil {
		return nil, "", err
	}
	if !prev.IsActive {
		return nil, "", nil
	}
	transition := TransitionExpired
	next, hist := Evaluate(prev, now, s.expirationReason)
	if hist == nil {
		transition = TransitionSuperseded
		next, hist = deactivate(prev, now, SupersededReason)
	}
	if err := s.writeDeactivation(tx, next, hist); err != nil {
		return nil, "", err
	}
	return hist, transition, nil
}

// VerifyCertification returns the certification after applying expiration.
// The first verification past the expiration date deactivates it and writes
// its history entry.
func (s *Service) VerifyCertification(ctx context.Context, id uint64) (cert model.Certification, err error) {
	const op = "certification.verify"
	defer s.observe(ctx, op, time.Now(), &err)

	now := s.clock.Now(ctx)
	var hist *model.CertificationHistory
	err = s.store.Update(ctx, func(tx repository.Tx) error {
		current, err := load[model.Certification](tx, op, BucketCertification, "certification", id)
		if err != nil {
			return err
		}
		cert, hist = Evaluate(current, now, s.expirationReason)
		if hist == nil {
			return nil
		}
		return s.writeDeactivation(tx, cert, hist)
	})
	if err != nil {
		return model.Certification{}, err
	}
	if hist != nil {
		s.recordDeactivation(ctx, hist, TransitionExpired)
	}
	return cert, nil
}

// RevokeCertification deactivates an active certification. A certification
// that is already inactive, or past its expiration date, cannot be revoked.
func (s *Service) RevokeCertification(ctx context.Context, id uint64, reason string) (err error) {
	const op = "certification.revoke"
	defer s.observe(ctx, op, time.Now(), &err)

	if strings.TrimSpace(reason) == "" {
		return model.Errorf(op, model.ErrInvalidArgument, "revocation reason is required")
	}
	caller := access.CallerFrom(ctx)
	now := s.clock.Now(ctx)
	var hist *model.CertificationHistory
	err = s.store.Update(ctx, func(tx repository.Tx) error {
		if err := s.gate.Require(tx, caller); err != nil {
			return err
		}
		current, err := load[model.Certification](tx, op, BucketCertification, "certification", id)
		if err != nil {
			return err
		}
		if !current.IsActive || now > current.ExpirationDate {
			return model.Errorf(op, model.ErrAlreadyInactive, "certification %d", id)
		}
		var next model.Certification
		next, hist = deactivate(current, now, reason)
		return s.writeDeactivation(tx, next, hist)
	})
	if err != nil {
		return err
	}
	s.recordDeactivation(ctx, hist, TransitionRevoked)
	return nil
}

// GetCertification returns the stored certification without evaluating
// expiration.
func (s *Service) GetCertification(ctx context.Context, id uint64) (model.Certification, error) {
	const op = "certification.get"
	var cert model.Certification
	err := s.store.View(ctx, func(r repository.Reader) error {
		var err error
		cert, err = load[model.Certification](r, op, BucketCertification, "certification", id)
		return err
	})
	return cert, err
}

// GetCertificationHistory returns the history entry written when the
// certification became inactive.
func (s *Service) GetCertificationHistory(ctx context.Context, id uint64) (model.CertificationHistory, error) {
	const op = "certification.get_history"
	var hist model.CertificationHistory
	err := s.store.View(ctx, func(r repository.Reader) error {
		if _, err := load[model.Certification](r, op, BucketCertification, "certification", id); err != nil {
			return err
		}
		if !repository.Exists(r, BucketHistory, repository.Key(id)) {
			return model.Errorf(op, model.ErrNotFound, "certification %d is still active", id)
		}
		var err error
		hist, err = repository.Load[model.CertificationHistory](r, BucketHistory, repository.Key(id))
		return err
	})
	return hist, err
}

// ActiveCertification returns the facility's most recently issued
// certification as it stands at the current height. Nothing is written.
func (s *Service) ActiveCertification(ctx context.Context, facilityID uint64) (model.Certification, error) {
	const op = "certification.active"
	now := s.clock.Now(ctx)
	var cert model.Certification
	err := s.store.View(ctx, func(r repository.Reader) error {
		id, err := load[uint64](r, op, BucketActive, "certification for facility", facilityID)
		if err != nil {
			return err
		}
		current, err := repository.Load[model.Certification](r, BucketCertification, repository.Key(id))
		if err != nil {
			return err
		}
		cert, _ = Evaluate(current, now, s.expirationReason)
		return nil
	})
	return cert, err
}

// SetAdmin hands the component administration to newAdmin.
func (s *Service) SetAdmin(ctx context.Context, newAdmin model.Principal) (err error) {
	defer s.observe(ctx, "certification.set_admin", time.Now(), &err)
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
		counts[BucketCertification] = r.Count(BucketCertification)
		counts[BucketHistory] = r.Count(BucketHistory)
		return nil
	})
	return counts, err
}

func (s *Service) writeDeactivation(tx repository.Tx, cert model.Certification, hist *model.CertificationHistory) error {
	if err := repository.Save(tx, BucketCertification, repository.Key(cert.ID), cert); err != nil {
		return err
	}
	return repository.Save(tx, BucketHistory, repository.Key(cert.ID), hist)
}

func (s *Service) recordDeactivation(ctx context.Context, hist *model.CertificationHistory, transition string) {
	metrics.RecordCertificationTransition(transition)
	s.logger.Info(ctx, "certification deactivated",
		logger.Uint64("certification_id", hist.CertificationID),
		logger.String("transition", transition),
		logger.String("reason", hist.RevocationReason),
	)
}

func (s *Service) observe(ctx context.Context, op string, start time.Time, errp *error) {
	outcome := metrics.OutcomeOK
	switch {
	case *errp == nil:
	case model.Rejected(*errp):
		outcome = metrics.OutcomeRejected
		s.logger.Debug(ctx, "certification operation rejected", logger.String("op", op), logger.Error(*errp))
	default:
		outcome = metrics.OutcomeError
		s.logger.Error(ctx, "certification operation failed", logger.String("op", op), logger.Error(*errp))
	}
	metrics.RecordOperation(access.ComponentCertification, op, outcome, float64(time.Since(start).Microseconds())/1000)
}

func load[T any](r repository.Reader, op, bucket, what string, ids ...uint64) (T, error) {
	key := repository.Key(ids...)
	if !repository.Exists(r, bucket, key) {
		var zero T
		return zero, model.Errorf(op, model.ErrNotFound, "%s %s", what, key)
	}
	return repository.Load[T](r, bucket, key)
}
