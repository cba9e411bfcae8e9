package improvement

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/accessreg/internal/adapters/repository"
	"github.com/okian/accessreg/internal/domain/access"
	"github.com/okian/accessreg/internal/domain/clock"
	"github.com/okian/accessreg/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type findings map[[2]uint64]bool

func (f findings) FindingExists(_ context.Context, facilityID, findingID uint64) (bool, error) {
	return f[[2]uint64{facilityID, findingID}], nil
}

func newTestService() (*Service, *clock.Manual, context.Context) {
	clk := clock.NewManual(50)
	svc := New(repository.NewMemoryStore(), clk, "admin", findings{{1, 1}: true, {1, 2}: true})
	ctx := access.WithCaller(context.Background(), "admin")
	So(svc.Init(ctx), ShouldBeNil)
	return svc, clk, ctx
}

func TestCreateImprovementPlan(t *testing.T) {
	Convey("Given an improvement service", t, func() {
		svc, _, ctx := newTestService()

		Convey("When a plan is created for a known finding", func() {
			id, err := svc.CreateImprovementPlan(ctx, 1, 2, "Install ramp", 300, "bob")
			So(err, ShouldBeNil)

			Convey("Then it is open with no completion date", func() {
				So(id, ShouldEqual, 1)
				plan, err := svc.GetImprovement(ctx, id)
				So(err, ShouldBeNil)
				So(plan, ShouldResemble, model.ImprovementPlan{
					ID: 1, FacilityID: 1, FindingID: 2, Description: "Install ramp",
					Status: model.StatusOpen, CreatedAt: 50, TargetDate: 300, AssignedTo: "bob",
				})
			})
		})

		Convey("When the finding is unknown", func() {
			_, err := svc.CreateImprovementPlan(ctx, 1, 9, "x", 0, "bob")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When arguments are missing", func() {
			_, err := svc.CreateImprovementPlan(ctx, 1, 1, "", 0, "bob")
			So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
			_, err = svc.CreateImprovementPlan(ctx, 1, 1, "x", 0, "")
			So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
		})

		Convey("When the assignee tries to create a plan", func() {
			_, err := svc.CreateImprovementPlan(access.WithCaller(ctx, "bob"), 1, 1, "x", 0, "bob")
			So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
		})
	})
}

func TestUpdateImprovementStatus(t *testing.T) {
	Convey("Given an open plan assigned to bob", t, func() {
		svc, clk, ctx := newTestService()
		planID, err := svc.CreateImprovementPlan(ctx, 1, 1, "Widen door", 400, "bob")
		So(err, ShouldBeNil)
		bob := access.WithCaller(ctx, "bob")

		Convey("When it is completed twice", func() {
			clk.Set(60)
			first, err := svc.UpdateImprovementStatus(bob, planID, model.StatusCompleted, "done")
			So(err, ShouldBeNil)
			clk.Set(70)
			second, err := svc.UpdateImprovementStatus(ctx, planID, model.StatusCompleted, "done again")
			So(err, ShouldBeNil)

			Convey("Then two updates are logged and the completion date stays", func() {
				So(first, ShouldEqual, 1)
				So(second, ShouldEqual, 2)
				plan, err := svc.GetImprovement(ctx, planID)
				So(err, ShouldBeNil)
				So(plan.CompletedDate, ShouldEqual, 60)
				So(plan.UpdateCount, ShouldEqual, 2)

				u1, err := svc.GetImprovementUpdate(ctx, planID, 1)
				So(err, ShouldBeNil)
				So(u1, ShouldResemble, model.ImprovementUpdate{
					PlanID: planID, UpdateID: 1, Date: 60, Status: model.StatusCompleted, Notes: "done", UpdatedBy: "bob",
				})
				u2, err := svc.GetImprovementUpdate(ctx, planID, 2)
				So(err, ShouldBeNil)
				So(u2.Notes, ShouldEqual, "done again")
				So(u2.UpdatedBy, ShouldEqual, model.Principal("admin"))
			})

			Convey("Then it cannot be reopened", func() {
				_, err := svc.UpdateImprovementStatus(ctx, planID, model.StatusInProgress, "oops")
				So(errors.Is(err, model.ErrInvalidTransition), ShouldBeTrue)
				plan, err := svc.GetImprovement(ctx, planID)
				So(err, ShouldBeNil)
				So(plan.Status, ShouldEqual, model.StatusCompleted)
				So(plan.UpdateCount, ShouldEqual, 2)
				_, err = svc.GetImprovementUpdate(ctx, planID, 3)
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the status is repeated", func() {
			_, err := svc.UpdateImprovementStatus(bob, planID, model.StatusInProgress, "started")
			So(err, ShouldBeNil)
			id, err := svc.UpdateImprovementStatus(bob, planID, model.StatusInProgress, "still going")
			So(err, ShouldBeNil)

			Convey("Then every call is logged", func() {
				So(id, ShouldEqual, 2)
				plan, err := svc.GetImprovement(ctx, planID)
				So(err, ShouldBeNil)
				So(plan.CompletedDate, ShouldEqual, 0)
			})
		})

		Convey("When the plan is cancelled", func() {
			_, err := svc.UpdateImprovementStatus(ctx, planID, model.StatusCancelled, "dropped")
			So(err, ShouldBeNil)

			Convey("Then it cannot be completed", func() {
				_, err := svc.UpdateImprovementStatus(ctx, planID, model.StatusCompleted, "x")
				So(errors.Is(err, model.ErrInvalidTransition), ShouldBeTrue)
				_, err = svc.UpdateImprovementStatus(ctx, planID, model.StatusCancelled, "again")
				So(err, ShouldBeNil)
			})
		})

		Convey("When someone else updates the plan", func() {
			_, err := svc.UpdateImprovementStatus(access.WithCaller(ctx, "carol"), planID, model.StatusInProgress, "x")

			Convey("Then it is unauthorized and nothing is logged", func() {
				So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
				plan, err := svc.GetImprovement(ctx, planID)
				So(err, ShouldBeNil)
				So(plan.UpdateCount, ShouldEqual, 0)
				So(plan.Status, ShouldEqual, model.StatusOpen)
			})
		})

		Convey("When the status is invalid or the plan unknown", func() {
			_, err := svc.UpdateImprovementStatus(ctx, planID, model.Status(9), "x")
			So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
			_, err = svc.UpdateImprovementStatus(ctx, 99, model.StatusOpen, "x")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When administration moves away from the deployer", func() {
			So(svc.SetAdmin(ctx, "dana"), ShouldBeNil)

			Convey("Then the assignee keeps delegated rights", func() {
				_, err := svc.UpdateImprovementStatus(bob, planID, model.StatusInProgress, "x")
				So(err, ShouldBeNil)
				_, err = svc.UpdateImprovementStatus(ctx, planID, model.StatusInProgress, "x")
				So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
			})
		})
	})
}
