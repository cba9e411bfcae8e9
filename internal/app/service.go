// Package service composes the registry components over one record store and
// one clock and manages their lifecycle.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/okian/accessreg/internal/adapters/repository"
	"github.com/okian/accessreg/internal/domain/access"
	"github.com/okian/accessreg/internal/domain/certification"
	"github.com/okian/accessreg/internal/domain/clock"
	"github.com/okian/accessreg/internal/domain/facility"
	"github.com/okian/accessreg/internal/domain/feedback"
	"github.com/okian/accessreg/internal/domain/improvement"
	"github.com/okian/accessreg/internal/domain/model"
	"github.com/okian/accessreg/pkg/logger"
	"github.com/okian/accessreg/pkg/metrics"
)

// Clock state record.
const (
	BucketClock = "clock"
	keyClock    = "state"
)

// Service owns the registry components.
type Service struct {
	mu sync.RWMutex

	// Collaborators
	store repository.Store
	clock clock.Clock

	// Components
	facilities     *facility.Service
	certifications *certification.Service
	improvements   *improvement.Service
	feedback       *feedback.Service

	// Configuration
	deployer         model.Principal
	ratingMin        uint32
	ratingMax        uint32
	rounding         feedback.Rounding
	expirationReason string
	supersedeOnIssue bool

	// State
	started   bool
	startedAt time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the record store. Defaults to a memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithClock sets the height source. Defaults to a manual clock at height 1.
func WithClock(clk clock.Clock) Option {
	return func(s *Service) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithDeployer sets the genesis administrator of every component.
func WithDeployer(p model.Principal) Option {
	return func(s *Service) {
		if p != "" {
			s.deployer = p
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRatingScale sets the accepted feedback rating range.
func WithRatingScale(minRating, maxRating uint32) Option {
	return func(s *Service) {
		s.ratingMin, s.ratingMax = minRating, maxRating
	}
}

// WithAverageRounding sets the rounding rule of average ratings.
func WithAverageRounding(r feedback.Rounding) Option {
	return func(s *Service) {
		s.rounding = r
	}
}

// WithExpirationReason sets the reason recorded for expired certifications.
func WithExpirationReason(reason string) Option {
	return func(s *Service) {
		s.expirationReason = reason
	}
}

// WithSupersedeOnIssue controls whether a new certification deactivates the
// facility's current one.
func WithSupersedeOnIssue(enabled bool) Option {
	return func(s *Service) {
		s.supersedeOnIssue = enabled
	}
}

// New constructs the service and its components.
func New(opts ...Option) *Service {
	s := &Service{
		deployer:         "deployer",
		ratingMin:        feedback.DefaultRatingMin,
		ratingMax:        feedback.DefaultRatingMax,
		rounding:         feedback.RoundTruncate,
		expirationReason: certification.DefaultExpirationReason,
		supersedeOnIssue: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.clock == nil {
		s.clock = clock.NewManual(1)
	}
	if s.logger == nil {
		s.logger = logger.Discard()
	}

	s.facilities = facility.New(s.store, s.clock, s.deployer,
		facility.WithLogger(s.logger.Named(access.ComponentFacility)),
	)
	s.certifications = certification.New(s.store, s.clock, s.deployer, s.facilities,
		certification.WithLogger(s.logger.Named(access.ComponentCertification)),
		certification.WithExpirationReason(s.expirationReason),
		certification.WithSupersedeOnIssue(s.supersedeOnIssue),
	)
	s.improvements = improvement.New(s.store, s.clock, s.deployer, s.facilities,
		improvement.WithLogger(s.logger.Named(access.ComponentImprovement)),
	)
	s.feedback = feedback.New(s.store, s.clock, s.deployer, s.facilities,
		feedback.WithLogger(s.logger.Named(access.ComponentFeedback)),
		feedback.WithRatingScale(s.ratingMin, s.ratingMax),
		feedback.WithRounding(s.rounding),
	)
	return s
}

// Start stores the genesis administrators. Calling it again is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting registry service...")

	inits := []func(context.Context) error{
		s.restoreClock,
		s.facilities.Init,
		s.certifications.Init,
		s.improvements.Init,
		s.feedback.Init,
	}
	for _, initFn := range inits {
		if err := initFn(ctx); err != nil {
			return err
		}
	}

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "registry service started",
		logger.String("deployer", string(s.deployer)),
		logger.Uint64("height", s.clock.Now(ctx)),
	)
	return nil
}

// Stop closes the record store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping registry service...")
	if err := s.saveClock(ctx); err != nil {
		s.logger.Warn(ctx, "failed to save clock state", logger.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "failed to close store", logger.Error(err))
	}
	s.started = false
	s.logger.Info(ctx, "registry service stopped")
}

// Started reports whether Start has run.
func (s *Service) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Facilities returns the facility and assessment component.
func (s *Service) Facilities() *facility.Service { return s.facilities }

// Certifications returns the certification component.
func (s *Service) Certifications() *certification.Service { return s.certifications }

// Improvements returns the improvement tracking component.
func (s *Service) Improvements() *improvement.Service { return s.improvements }

// Feedback returns the feedback component.
func (s *Service) Feedback() *feedback.Service { return s.feedback }

// Height returns the current clock height.
func (s *Service) Height(ctx context.Context) uint64 {
	return s.clock.Now(ctx)
}

// SetHeight moves a manual clock forward to h. Only the deployer may, and
// only when the clock is settable. The new height is stored before the clock
// moves.
func (s *Service) SetHeight(ctx context.Context, h uint64) (uint64, error) {
	const op = "service.set_height"
	settable, ok := s.clock.(clock.Settable)
	if !ok {
		return 0, model.Errorf(op, model.ErrInvalidArgument, "clock is not settable")
	}
	if caller := access.CallerFrom(ctx); caller != s.deployer {
		return 0, model.Errorf(op, model.ErrUnauthorized, "caller %q is not the deployer", caller)
	}
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		if cur := settable.Now(ctx); h < cur {
			return model.Errorf(op, model.ErrInvalidArgument, "height %d is behind %d", h, cur)
		}
		if repository.Exists(tx, BucketClock, keyClock) {
			st, err := repository.Load[clock.State](tx, BucketClock, keyClock)
			if err != nil {
				return err
			}
			if st.Height > h {
				return nil
			}
		}
		return repository.Save(tx, BucketClock, keyClock, clock.State{Height: h})
	})
	if err != nil {
		return 0, err
	}
	got := settable.Set(h)
	s.logger.Info(ctx, "clock moved", logger.Uint64("height", got))
	return got, nil
}

// restoreClock seeds the clock from the stored state, then stores the
// current state so a later start resumes from it.
func (s *Service) restoreClock(ctx context.Context) error {
	p, ok := s.clock.(clock.Persistent)
	if !ok {
		return nil
	}
	return s.store.Update(ctx, func(tx repository.Tx) error {
		if repository.Exists(tx, BucketClock, keyClock) {
			st, err := repository.Load[clock.State](tx, BucketClock, keyClock)
			if err != nil {
				return err
			}
			p.Restore(st)
			s.logger.Info(ctx, "clock restored",
				logger.Uint64("saved_height", st.Height),
				logger.Uint64("height", p.Now(ctx)),
			)
		}
		return repository.Save(tx, BucketClock, keyClock, p.State(ctx))
	})
}

// saveClock stores the current clock state.
func (s *Service) saveClock(ctx context.Context) error {
	p, ok := s.clock.(clock.Persistent)
	if !ok {
		return nil
	}
	return s.store.Update(ctx, func(tx repository.Tx) error {
		return repository.Save(tx, BucketClock, keyClock, p.State(ctx))
	})
}

type adminer interface {
	Admin(ctx context.Context) (model.Principal, error)
	SetAdmin(ctx context.Context, newAdmin model.Principal) error
}

func (s *Service) component(name string) (adminer, error) {
	switch name {
	case access.ComponentFacility:
		return s.facilities, nil
	case access.ComponentCertification:
		return s.certifications, nil
	case access.ComponentImprovement:
		return s.improvements, nil
	case access.ComponentFeedback:
		return s.feedback, nil
	default:
		return nil, model.Errorf("service.component", model.ErrNotFound, "component %q", name)
	}
}

// Admin returns the administrator of a component.
func (s *Service) Admin(ctx context.Context, component string) (model.Principal, error) {
	c, err := s.component(component)
	if err != nil {
		return "", err
	}
	return c.Admin(ctx)
}

// SetAdmin replaces the administrator of a component.
func (s *Service) SetAdmin(ctx context.Context, component string, newAdmin model.Principal) error {
	c, err := s.component(component)
	if err != nil {
		return err
	}
	return c.SetAdmin(ctx, newAdmin)
}

// GetStats returns service statistics for monitoring and refreshes the
// record count gauges.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started": s.started,
		"height":  s.clock.Now(ctx),
	}
	if !s.started {
		return stats
	}
	stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())

	records := map[string]int{}
	sources := []func(context.Context) (map[string]int, error){
		s.facilities.Counts,
		s.certifications.Counts,
		s.improvements.Counts,
		s.feedback.Counts,
	}
	for _, counts := range sources {
		c, err := counts(ctx)
		if err != nil {
			s.logger.Warn(ctx, "failed to count records", logger.Error(err))
			continue
		}
		for kind, n := range c {
			records[kind] = n
			metrics.UpdateRecordCount(kind, n)
		}
	}
	stats["records"] = records
	return stats
}
