package facility

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

func newTestService() (*Service, *clock.Manual, context.Context) {
	clk := clock.NewManual(10)
	svc := New(repository.NewMemoryStore(), clk, "admin")
	ctx := access.WithCaller(context.Background(), "admin")
	So(svc.Init(ctx), ShouldBeNil)
	return svc, clk, ctx
}

func TestRegisterFacility(t *testing.T) {
	Convey("Given a facility service", t, func() {
		svc, _, ctx := newTestService()

		Convey("When the administrator registers facilities", func() {
			first, err := svc.RegisterFacility(ctx, "Test Facility", "Main St", 2)
			So(err, ShouldBeNil)
			second, err := svc.RegisterFacility(ctx, "Library", "Elm St", 1)
			So(err, ShouldBeNil)

			Convey("Then ids are sequential from 1 and records are stored", func() {
				So(first, ShouldEqual, 1)
				So(second, ShouldEqual, 2)
				f, err := svc.GetFacility(ctx, 1)
				So(err, ShouldBeNil)
				So(f, ShouldResemble, model.Facility{
					ID: 1, Name: "Test Facility", Location: "Main St", FacilityType: 2, RegistrationDate: 10,
				})
			})
		})

		Convey("When a non-administrator registers a facility", func() {
			_, err := svc.RegisterFacility(access.WithCaller(ctx, "bob"), "X", "Y", 1)

			Convey("Then it is unauthorized and nothing is stored", func() {
				So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
				ok, err := svc.FacilityExists(ctx, 1)
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When the name is blank", func() {
			_, err := svc.RegisterFacility(ctx, "  ", "Y", 1)
			So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
		})

		Convey("When an unknown facility is read", func() {
			_, err := svc.GetFacility(ctx, 42)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestAssessmentsAndFindings(t *testing.T) {
	Convey("Given a registered facility", t, func() {
		svc, clk, ctx := newTestService()
		fid, err := svc.RegisterFacility(ctx, "Test Facility", "Main St", 1)
		So(err, ShouldBeNil)

		Convey("When an assessment is recorded without an assessor", func() {
			clk.Set(20)
			aid, err := svc.RecordAssessment(ctx, fid, "", 2)
			So(err, ShouldBeNil)

			Convey("Then it starts with no findings and the caller as assessor", func() {
				So(aid, ShouldEqual, 1)
				a, err := svc.GetAssessment(ctx, fid, aid)
				So(err, ShouldBeNil)
				So(a.Assessor, ShouldEqual, model.Principal("admin"))
				So(a.Date, ShouldEqual, 20)
				So(a.ComplianceLevel, ShouldEqual, 2)
				So(a.FindingsCount, ShouldEqual, 0)
			})

			Convey("Then recording N findings leaves findings count N", func() {
				const n = 5
				ids := make([]uint64, 0, n)
				for i := 0; i < n; i++ {
					id, err := svc.RecordFinding(ctx, fid, aid, uint32(i+1), "ramp missing", 0)
					So(err, ShouldBeNil)
					ids = append(ids, id)
				}
				a, err := svc.GetAssessment(ctx, fid, aid)
				So(err, ShouldBeNil)
				So(a.FindingsCount, ShouldEqual, n)

				for i, id := range ids {
					f, err := svc.GetFinding(ctx, fid, id)
					So(err, ShouldBeNil)
					So(f.ID, ShouldEqual, uint64(i+1))
					So(f.AssessmentID, ShouldEqual, aid)
					So(f.Severity, ShouldEqual, uint32(i+1))
				}
			})

			Convey("Then finding ids stay unique across assessments of the facility", func() {
				other, err := svc.RecordAssessment(ctx, fid, "inspector", 3)
				So(err, ShouldBeNil)
				a, err := svc.RecordFinding(ctx, fid, aid, 1, "door", 2)
				So(err, ShouldBeNil)
				b, err := svc.RecordFinding(ctx, fid, other, 1, "sign", 0)
				So(err, ShouldBeNil)
				So(b, ShouldEqual, a+1)
				ok, err := svc.FindingExists(ctx, fid, b)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When assessing an unknown facility", func() {
			_, err := svc.RecordAssessment(ctx, 99, "x", 1)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When a finding targets an unknown assessment", func() {
			_, err := svc.RecordFinding(ctx, fid, 7, 1, "x", 0)

			Convey("Then it fails without consuming a finding id", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
				aid, err := svc.RecordAssessment(ctx, fid, "x", 1)
				So(err, ShouldBeNil)
				id, err := svc.RecordFinding(ctx, fid, aid, 1, "x", 0)
				So(err, ShouldBeNil)
				So(id, ShouldEqual, 1)
			})
		})

		Convey("When a non-administrator records a finding", func() {
			aid, err := svc.RecordAssessment(ctx, fid, "x", 1)
			So(err, ShouldBeNil)
			_, err = svc.RecordFinding(access.WithCaller(ctx, "bob"), fid, aid, 1, "x", 0)

			Convey("Then the assessment is left untouched", func() {
				So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
				a, err := svc.GetAssessment(ctx, fid, aid)
				So(err, ShouldBeNil)
				So(a.FindingsCount, ShouldEqual, 0)
			})
		})
	})
}

func TestFacilityAdmin(t *testing.T) {
	Convey("Given a facility service", t, func() {
		svc, _, ctx := newTestService()

		Convey("When administration is handed over", func() {
			So(svc.SetAdmin(ctx, "alice"), ShouldBeNil)

			Convey("Then the previous administrator loses rights", func() {
				admin, err := svc.Admin(ctx)
				So(err, ShouldBeNil)
				So(admin, ShouldEqual, model.Principal("alice"))
				_, err = svc.RegisterFacility(ctx, "X", "Y", 1)
				So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
				_, err = svc.RegisterFacility(access.WithCaller(ctx, "alice"), "X", "Y", 1)
				So(err, ShouldBeNil)
			})
		})

		Convey("When counting records", func() {
			_, err := svc.RegisterFacility(ctx, "X", "Y", 1)
			So(err, ShouldBeNil)
			counts, err := svc.Counts(ctx)
			So(err, ShouldBeNil)
			So(counts[BucketFacility], ShouldEqual, 1)
			So(counts[BucketFinding], ShouldEqual, 0)
		})
	})
}
