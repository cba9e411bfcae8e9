// Package improvement tracks remediation plans for findings and the log of
// their status updates.
package improvement

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
	BucketPlan   = "improvement_plan"
	BucketUpdate = "improvement_update"
)

// FindingLookup reports whether a finding is recorded for a facility.
type FindingLookup interface {
	FindingExists(ctx context.Context, facilityID, findingID uint64) (bool, error)
}

// Service implements the improvement tracking operations.
type Service struct {
	store    repository.Store
	clock    clock.Clock
	gate     *access.Gate
	findings FindingLookup
	logger   logger.Logger
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

// New creates an improvement tracking service.
func New(store repository.Store, clk clock.Clock, deployer model.Principal, findings FindingLookup, opts ...Option) *Service {
	s := &Service{
		store:    store,
		clock:    clk,
		gate:     access.NewGate(access.ComponentImprovement, deployer),
		findings: findings,
		logger:   logger.Discard(),
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

// CreateImprovementPlan opens a plan for a finding, assigned to assignedTo.
func (s *Service) CreateImprovementPlan(ctx context.Context, facilityID, findingID uint64, description string, targetDate uint64, assignedTo model.Principal) (id uint64, err error) {
	const op = "improvement.create_plan"
	defer s.observe(ctx, op, time.Now(), &err)

	if strings.TrimSpace(description) == "" {
		return 0, model.Errorf(op, model.ErrInvalidArgument, "plan description is required")
	}
	if assignedTo == "" {
		return 0, model.Errorf(op, model.ErrInvalidArgument, "plan assignee is required")
	}
	caller := access.CallerFrom(ctx)
	now := s.clock.Now(ctx)
	exists, err := s.findings.FindingExists(ctx, facilityID, findingID)
	if err != nil {
		return 0, err
	}

	err = s.store.Update(ctx, func(tx repository.Tx) error {
		if err := s.gate.Require(tx, caller); err != nil {
			return err
		}
		if !exists {
			return model.Errorf(op, model.ErrNotFound, "finding %d of facility %d", findingID, facilityID)
		}
		next, err := repository.NextID(tx, BucketPlan)
		if err != nil {
			return err
		}
		id = next
		return repository.Save(tx, BucketPlan, repository.Key(id), model.ImprovementPlan{
			ID:          id,
			FacilityID:  facilityID,
			FindingID:   findingID,
			Description: description,
			Status:      model.StatusOpen,
			CreatedAt:   now,
			TargetDate:  targetDate,
			AssignedTo:  assignedTo,
		})
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "improvement plan created",
		logger.Uint64("plan_id", id),
		logger.Uint64("finding_id", findingID),
		logger.String("assigned_to", string(assignedTo)),
	)
	return id, nil
}

// UpdateImprovementStatus appends a status update to a plan and returns the
// update id. The administrator and the plan's assignee may update it.
// Completed and Cancelled plans only accept their own status again.
func (s *Service) UpdateImprovementStatus(ctx context.Context, planID uint64, status model.Status, notes string) (updateID uint64, err error) {
	const op = "improvement.update_status"
	defer s.observe(ctx, op, time.Now(), &err)

	if !status.Valid() {
		return 0, model.Errorf(op, model.ErrInvalidArgument, "unknown status %d", uint8(status))
	}
	caller := access.CallerFrom(ctx)
	now := s.clock.Now(ctx)
	err = s.store.Update(ctx, func(tx repository.Tx) error {
		plan, err := load[model.ImprovementPlan](tx, op, BucketPlan, "plan", planID)
		if err != nil {
			return err
		}
		admin, err := s.gate.Admin(tx)
		if err != nil {
			return err
		}
		if !access.CanMutate(admin, caller, plan.AssignedTo) {
			return model.Errorf(op, model.ErrUnauthorized, "caller %q may not update plan %d", caller, planID)
		}
		if !transitionAllowed(plan.Status, status) {
			return model.Errorf(op, model.ErrInvalidTransition, "plan %d is %s, cannot move to %s", planID, plan.Status, status)
		}

		plan.UpdateCount++
		updateID = plan.UpdateCount
		plan.Status = status
		if status == model.StatusCompleted && plan.CompletedDate == 0 {
			plan.CompletedDate = now
		}
		if err := repository.Save(tx, BucketPlan, repository.Key(planID), plan); err != nil {
			return err
		}
		return repository.Save(tx, BucketUpdate, repository.Key(planID, updateID), model.ImprovementUpdate{
			PlanID:    planID,
			UpdateID:  updateID,
			Date:      now,
			Status:    status,
			Notes:     notes,
			UpdatedBy: caller,
		})
	})
	if err != nil {
		return 0, err
	}
	metrics.RecordImprovementUpdate(status.String())
	s.logger.Info(ctx, "improvement status updated",
		logger.Uint64("plan_id", planID),
		logger.Uint64("update_id", updateID),
		logger.String("status", status.String()),
	)
	return updateID, nil
}

// transitionAllowed reports whether a plan in status from may take status to.
func transitionAllowed(from, to model.Status) bool {
	switch from {
	case model.StatusCompleted, model.StatusCancelled:
		return to == from
	default:
		return true
	}
}

// GetImprovement returns a plan.
func (s *Service) GetImprovement(ctx context.Context, planID uint64) (model.ImprovementPlan, error) {
	const op = "improvement.get"
	var plan model.ImprovementPlan
	err := s.store.View(ctx, func(r repository.Reader) error {
		var err error
		plan, err = load[model.ImprovementPlan](r, op, BucketPlan, "plan", planID)
		return err
	})
	return plan, err
}

// GetImprovementUpdate returns one entry of a plan's update log.
func (s *Service) GetImprovementUpdate(ctx context.Context, planID, updateID uint64) (model.ImprovementUpdate, error) {
	const op = "improvement.get_update"
	var u model.ImprovementUpdate
	err := s.store.View(ctx, func(r repository.Reader) error {
		var err error
		u, err = load[model.ImprovementUpdate](r, op, BucketUpdate, "update", planID, updateID)
		return err
	})
	return u, err
}

// SetAdmin hands the component administration to newAdmin.
func (s *Service) SetAdmin(ctx context.Context, newAdmin model.Principal) (err error) {
	defer s.observe(ctx, "improvement.set_admin", time.Now(), &err)
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
		counts[BucketPlan] = r.Count(BucketPlan)
		counts[BucketUpdate] = r.Count(BucketUpdate)
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
		s.logger.Debug(ctx, "improvement operation rejected", logger.String("op", op), logger.Error(*errp))
	default:
		outcome = metrics.OutcomeError
		s.logger.Error(ctx, "improvement operation failed", logger.String("op", op), logger.Error(*errp))
	}
	metrics.RecordOperation(access.ComponentImprovement, op, outcome, float64(time.Since(start).Microseconds())/1000)
}

func load[T any](r repository.Reader, op, bucket, what string, ids ...uint64) (T, error) {
	key := repository.Key(ids...)
	if !repository.Exists(r, bucket, key) {
		var zero T
		return zero, model.Errorf(op, model.ErrNotFound, "%s %s", what, key)
	}
	v, err := repository.Load[T](r, bucket, key)
	if err != nil {
		return v, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}
