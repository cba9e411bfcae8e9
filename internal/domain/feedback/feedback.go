// Package feedback collects user ratings of facilities and maintains the
// per-category rating aggregates incrementally.
package feedback

import (
	"context"
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
	BucketEntry  = "feedback"
	BucketRating = "category_rating"
)

// Default rating scale.
const (
	DefaultRatingMin uint32 = 1
	DefaultRatingMax uint32 = 5
)

// FacilityLookup reports whether a facility is registered.
type FacilityLookup interface {
	FacilityExists(ctx context.Context, facilityID uint64) (bool, error)
}

// Service implements the feedback operations.
type Service struct {
	store      repository.Store
	clock      clock.Clock
	gate       *access.Gate
	facilities FacilityLookup
	logger     logger.Logger

	ratingMin uint32
	ratingMax uint32
	rounding  Rounding
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

// WithRatingScale sets the accepted rating range, inclusive.
func WithRatingScale(minRating, maxRating uint32) Option {
	return func(s *Service) {
		if minRating > 0 && maxRating >= minRating {
			s.ratingMin = minRating
			s.ratingMax = maxRating
		}
	}
}

// WithRounding sets the rounding rule of CalculateAverageRating.
func WithRounding(r Rounding) Option {
	return func(s *Service) {
		if r == RoundTruncate || r == RoundHalfUp {
			s.rounding = r
		}
	}
}

// New creates a feedback service.
func New(store repository.Store, clk clock.Clock, deployer model.Principal, facilities FacilityLookup, opts ...Option) *Service {
	s := &Service{
		store:      store,
		clock:      clk,
		gate:       access.NewGate(access.ComponentFeedback, deployer),
		facilities: facilities,
		logger:     logger.Discard(),
		ratingMin:  DefaultRatingMin,
		ratingMax:  DefaultRatingMax,
		rounding:   RoundTruncate,
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

// SubmitFeedback stores a rating from the caller and folds it into the
// (facility, category) aggregate in the same unit.
func (s *Service) SubmitFeedback(ctx context.Context, facilityID uint64, category, rating uint32, comments string) (id uint64, err error) {
	const op = "feedback.submit"
	defer s.observe(ctx, op, time.Now(), &err)

	caller := access.CallerFrom(ctx)
	if caller == "" {
		return 0, model.Errorf(op, model.ErrUnauthorized, "anonymous feedback is not accepted")
	}
	if rating < s.ratingMin || rating > s.ratingMax {
		return 0, model.Errorf(op, model.ErrInvalidArgument, "rating %d outside %d..%d", rating, s.ratingMin, s.ratingMax)
	}
	exists, err := s.facilities.FacilityExists(ctx, facilityID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, model.Errorf(op, model.ErrInvalidArgument, "unknown facility %d", facilityID)
	}

	now := s.clock.Now(ctx)
	err = s.store.Update(ctx, func(tx repository.Tx) error {
		next, err := repository.NextID(tx, BucketEntry)
		if err != nil {
			return err
		}
		id = next
		entry := model.FeedbackEntry{
			ID:         id,
			FacilityID: facilityID,
			User:       caller,
			Date:       now,
			Category:   category,
			Rating:     rating,
			Comments:   comments,
		}
		if err := repository.Save(tx, BucketEntry, repository.Key(id), entry); err != nil {
			return err
		}

		key := ratingKey(facilityID, category)
		var agg model.CategoryRating
		if repository.Exists(tx, BucketRating, key) {
			if agg, err = repository.Load[model.CategoryRating](tx, BucketRating, key); err != nil {
				return err
			}
		}
		return repository.Save(tx, BucketRating, key, Apply(agg, entry))
	})
	if err != nil {
		return 0, err
	}
	metrics.RecordFeedbackRating(rating)
	s.logger.Info(ctx, "feedback submitted",
		logger.Uint64("feedback_id", id),
		logger.Uint64("facility_id", facilityID),
		logger.Int("category", int(category)),
		logger.Int("rating", int(rating)),
	)
	return id, nil
}

// GetFeedback returns a feedback entry.
func (s *Service) GetFeedback(ctx context.Context, id uint64) (model.FeedbackEntry, error) {
	const op = "feedback.get"
	var e model.FeedbackEntry
	err := s.store.View(ctx, func(r repository.Reader) error {
		key := repository.Key(id)
		if !repository.Exists(r, BucketEntry, key) {
			return model.Errorf(op, model.ErrNotFound, "feedback %d", id)
		}
		var err error
		e, err = repository.Load[model.FeedbackEntry](r, BucketEntry, key)
		return err
	})
	return e, err
}

// GetCategoryRating returns the aggregate of a (facility, category) pair.
func (s *Service) GetCategoryRating(ctx context.Context, facilityID uint64, category uint32) (model.CategoryRating, error) {
	const op = "feedback.get_category_rating"
	var agg model.CategoryRating
	err := s.store.View(ctx, func(r repository.Reader) error {
		key := ratingKey(facilityID, category)
		if !repository.Exists(r, BucketRating, key) {
			return model.Errorf(op, model.ErrNotFound, "no feedback for facility %d category %d", facilityID, category)
		}
		var err error
		agg, err = repository.Load[model.CategoryRating](r, BucketRating, key)
		return err
	})
	return agg, err
}

// CalculateAverageRating returns sum/total of the pair's ratings under the
// configured rounding rule.
func (s *Service) CalculateAverageRating(ctx context.Context, facilityID uint64, category uint32) (uint64, error) {
	agg, err := s.GetCategoryRating(ctx, facilityID, category)
	if err != nil {
		return 0, err
	}
	return Average(agg, s.rounding), nil
}

// Rounding returns the configured rounding rule.
func (s *Service) Rounding() Rounding { return s.rounding }

// SetAdmin hands the component administration to newAdmin.
func (s *Service) SetAdmin(ctx context.Context, newAdmin model.Principal) (err error) {
	defer s.observe(ctx, "feedback.set_admin", time.Now(), &err)
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
		counts[BucketEntry] = r.Count(BucketEntry)
		counts[BucketRating] = r.Count(BucketRating)
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
		s.logger.Debug(ctx, "feedback operation rejected", logger.String("op", op), logger.Error(*errp))
	default:
		outcome = metrics.OutcomeError
		s.logger.Error(ctx, "feedback operation failed", logger.String("op", op), logger.Error(*errp))
	}
	metrics.RecordOperation(access.ComponentFeedback, op, outcome, float64(time.Since(start).Microseconds())/1000)
}

func ratingKey(facilityID uint64, category uint32) string {
	return repository.Key(facilityID, uint64(category))
}
