package certification

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/accessreg/internal/adapters/repository"
	"github.com/okian/accessreg/internal/domain/access"
	"github.com/okian/accessreg/internal/domain/clock"
	"github.com/okian/accessreg/internal/domain/model"
	"github.com/okian/accessreg/pkg/metrics"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

type facilities map[uint64]bool

func (f facilities) FacilityExists(_ context.Context, id uint64) (bool, error) {
	return f[id], nil
}

func newTestService(opts ...Option) (*Service, *clock.Manual, context.Context) {
	clk := clock.NewManual(100)
	svc := New(repository.NewMemoryStore(), clk, "admin", facilities{1: true, 2: true}, opts...)
	ctx := access.WithCaller(context.Background(), "admin")
	So(svc.Init(ctx), ShouldBeNil)
	return svc, clk, ctx
}

func TestEvaluate(t *testing.T) {
	Convey("Given an active certification expiring at 600", t, func() {
		cert := model.Certification{ID: 3, FacilityID: 1, IssueDate: 100, ExpirationDate: 600, Level: 2, Certifier: "admin", IsActive: true}

		Convey("When evaluated at or before expiration", func() {
			got, hist := Evaluate(cert, 600, DefaultExpirationReason)
			Convey("Then nothing changes", func() {
				So(got, ShouldResemble, cert)
				So(hist, ShouldBeNil)
			})
		})

		Convey("When evaluated after expiration", func() {
			got, hist := Evaluate(cert, 601, DefaultExpirationReason)
			Convey("Then it is deactivated with one history entry", func() {
				So(got.IsActive, ShouldBeFalse)
				So(hist, ShouldNotBeNil)
				So(*hist, ShouldResemble, model.CertificationHistory{
					CertificationID: 3, FacilityID: 1, IssueDate: 100, ExpirationDate: 600, Level: 2,
					Certifier: "admin", RevocationDate: 601, RevocationReason: DefaultExpirationReason,
				})
			})

			Convey("Then evaluating the result again is a no-op", func() {
				again, hist := Evaluate(got, 900, DefaultExpirationReason)
				So(again, ShouldResemble, got)
				So(hist, ShouldBeNil)
			})
		})
	})
}

func TestIssueCertification(t *testing.T) {
	Convey("Given a certification service at height 100", t, func() {
		svc, _, ctx := newTestService()

		Convey("When a level 2 certification valid for 500 is issued", func() {
			id, err := svc.IssueCertification(ctx, 1, 2, 500)
			So(err, ShouldBeNil)

			Convey("Then it expires at 600 and is active", func() {
				So(id, ShouldEqual, 1)
				cert, err := svc.GetCertification(ctx, id)
				So(err, ShouldBeNil)
				So(cert.ExpirationDate, ShouldEqual, 600)
				So(cert.IssueDate, ShouldEqual, 100)
				So(cert.IsActive, ShouldBeTrue)
				So(cert.Certifier, ShouldEqual, model.Principal("admin"))
			})
		})

		Convey("When the facility is unknown", func() {
			_, err := svc.IssueCertification(ctx, 9, 2, 500)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the validity period is zero or overflows", func() {
			_, err := svc.IssueCertification(ctx, 1, 2, 0)
			So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
			_, err = svc.IssueCertification(ctx, 1, 2, ^uint64(0))
			So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
		})

		Convey("When a non-administrator issues", func() {
			_, err := svc.IssueCertification(access.WithCaller(ctx, "bob"), 1, 2, 500)
			So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
			_, err = svc.GetCertification(ctx, 1)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When a second certification is issued for the same facility", func() {
			first, err := svc.IssueCertification(ctx, 1, 1, 500)
			So(err, ShouldBeNil)
			second, err := svc.IssueCertification(ctx, 1, 3, 500)
			So(err, ShouldBeNil)

			Convey("Then the first is superseded", func() {
				prev, err := svc.GetCertification(ctx, first)
				So(err, ShouldBeNil)
				So(prev.IsActive, ShouldBeFalse)
				hist, err := svc.GetCertificationHistory(ctx, first)
				So(err, ShouldBeNil)
				So(hist.RevocationReason, ShouldEqual, SupersededReason)

				active, err := svc.ActiveCertification(ctx, 1)
				So(err, ShouldBeNil)
				So(active.ID, ShouldEqual, second)
				So(active.IsActive, ShouldBeTrue)
			})
		})

		Convey("When superseding is disabled", func() {
			svc, _, ctx := newTestService(WithSupersedeOnIssue(false))
			first, err := svc.IssueCertification(ctx, 1, 1, 500)
			So(err, ShouldBeNil)
			_, err = svc.IssueCertification(ctx, 1, 3, 500)
			So(err, ShouldBeNil)

			Convey("Then both certifications stay active", func() {
				prev, err := svc.GetCertification(ctx, first)
				So(err, ShouldBeNil)
				So(prev.IsActive, ShouldBeTrue)
			})
		})
	})
}

func TestVerifyCertification(t *testing.T) {
	Convey("Given a certification issued at 100 expiring at 600", t, func() {
		svc, clk, ctx := newTestService()
		id, err := svc.IssueCertification(ctx, 1, 2, 500)
		So(err, ShouldBeNil)

		Convey("When verified before expiration", func() {
			clk.Set(600)
			cert, err := svc.VerifyCertification(ctx, id)
			So(err, ShouldBeNil)

			Convey("Then it is unchanged and has no history", func() {
				So(cert.IsActive, ShouldBeTrue)
				_, err := svc.GetCertificationHistory(ctx, id)
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When verified after expiration", func() {
			clk.Set(700)
			cert, err := svc.VerifyCertification(ctx, id)
			So(err, ShouldBeNil)

			Convey("Then it is inactive with exactly one expiration entry", func() {
				So(cert.IsActive, ShouldBeFalse)
				hist, err := svc.GetCertificationHistory(ctx, id)
				So(err, ShouldBeNil)
				So(hist.RevocationReason, ShouldEqual, DefaultExpirationReason)
				So(hist.RevocationDate, ShouldEqual, 700)

				counts, err := svc.Counts(ctx)
				So(err, ShouldBeNil)
				So(counts[BucketHistory], ShouldEqual, 1)
			})

			Convey("Then verifying again writes nothing new", func() {
				clk.Set(800)
				again, err := svc.VerifyCertification(ctx, id)
				So(err, ShouldBeNil)
				So(again, ShouldResemble, cert)
				hist, err := svc.GetCertificationHistory(ctx, id)
				So(err, ShouldBeNil)
				So(hist.RevocationDate, ShouldEqual, 700)
				counts, err := svc.Counts(ctx)
				So(err, ShouldBeNil)
				So(counts[BucketHistory], ShouldEqual, 1)
			})
		})

		Convey("When read after expiration without verification", func() {
			clk.Set(700)
			cert, err := svc.GetCertification(ctx, id)
			So(err, ShouldBeNil)
			active, err := svc.ActiveCertification(ctx, 1)
			So(err, ShouldBeNil)

			Convey("Then the stored record is untouched", func() {
				So(cert.IsActive, ShouldBeTrue)
				So(active.IsActive, ShouldBeFalse)
				_, err := svc.GetCertificationHistory(ctx, id)
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When an unknown certification is verified", func() {
			_, err := svc.VerifyCertification(ctx, 42)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the expiration reason is configured", func() {
			svc, clk, ctx := newTestService(WithExpirationReason("Lapsed"))
			id, err := svc.IssueCertification(ctx, 2, 1, 10)
			So(err, ShouldBeNil)
			clk.Set(200)
			_, err = svc.VerifyCertification(ctx, id)
			So(err, ShouldBeNil)
			hist, err := svc.GetCertificationHistory(ctx, id)
			So(err, ShouldBeNil)
			So(hist.RevocationReason, ShouldEqual, "Lapsed")
		})
	})
}

func TestRevokeCertification(t *testing.T) {
	Convey("Given an active certification", t, func() {
		svc, clk, ctx := newTestService()
		id, err := svc.IssueCertification(ctx, 1, 2, 500)
		So(err, ShouldBeNil)

		Convey("When it is revoked", func() {
			clk.Set(150)
			So(svc.RevokeCertification(ctx, id, "Ramp removed"), ShouldBeNil)

			Convey("Then it is inactive with the given reason", func() {
				cert, err := svc.GetCertification(ctx, id)
				So(err, ShouldBeNil)
				So(cert.IsActive, ShouldBeFalse)
				hist, err := svc.GetCertificationHistory(ctx, id)
				So(err, ShouldBeNil)
				So(hist.RevocationReason, ShouldEqual, "Ramp removed")
				So(hist.RevocationDate, ShouldEqual, 150)
			})

			Convey("Then revoking again fails and keeps the first reason", func() {
				err := svc.RevokeCertification(ctx, id, "Second try")
				So(errors.Is(err, model.ErrAlreadyInactive), ShouldBeTrue)
				hist, err := svc.GetCertificationHistory(ctx, id)
				So(err, ShouldBeNil)
				So(hist.RevocationReason, ShouldEqual, "Ramp removed")
			})

			Convey("Then verification keeps the revocation", func() {
				clk.Set(900)
				cert, err := svc.VerifyCertification(ctx, id)
				So(err, ShouldBeNil)
				So(cert.IsActive, ShouldBeFalse)
				hist, err := svc.GetCertificationHistory(ctx, id)
				So(err, ShouldBeNil)
				So(hist.RevocationReason, ShouldEqual, "Ramp removed")
			})
		})

		Convey("When it is revoked after expiring", func() {
			clk.Set(700)
			_, err := svc.VerifyCertification(ctx, id)
			So(err, ShouldBeNil)
			err = svc.RevokeCertification(ctx, id, "Too late")

			Convey("Then it is already inactive", func() {
				So(errors.Is(err, model.ErrAlreadyInactive), ShouldBeTrue)
				hist, err := svc.GetCertificationHistory(ctx, id)
				So(err, ShouldBeNil)
				So(hist.RevocationReason, ShouldEqual, DefaultExpirationReason)
			})
		})

		Convey("When it is past expiration but not yet verified", func() {
			clk.Set(700)
			err := svc.RevokeCertification(ctx, id, "Too late")

			Convey("Then revocation fails without writing", func() {
				So(errors.Is(err, model.ErrAlreadyInactive), ShouldBeTrue)
				cert, err := svc.GetCertification(ctx, id)
				So(err, ShouldBeNil)
				So(cert.IsActive, ShouldBeTrue)
				_, err = svc.GetCertificationHistory(ctx, id)
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a non-administrator revokes", func() {
			err := svc.RevokeCertification(access.WithCaller(ctx, "bob"), id, "x")
			So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
			cert, err := svc.GetCertification(ctx, id)
			So(err, ShouldBeNil)
			So(cert.IsActive, ShouldBeTrue)
		})

		Convey("When the reason is blank or the id unknown", func() {
			So(errors.Is(svc.RevokeCertification(ctx, id, " "), model.ErrInvalidArgument), ShouldBeTrue)
			So(errors.Is(svc.RevokeCertification(ctx, 77, "x"), model.ErrNotFound), ShouldBeTrue)
		})
	})
}

// transitions reads the certification transition counter for label.
func transitions(label string) float64 {
	families, err := metrics.GetRegistry().Gather()
	So(err, ShouldBeNil)
	for _, mf := range families {
		if mf.GetName() != "accessreg_registry_certification_transitions_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if hasLabel(m, "transition", label) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func TestDeactivationTransitions(t *testing.T) {
	Convey("Given an active certification expiring at 600", t, func() {
		svc, clk, ctx := newTestService()
		id, err := svc.IssueCertification(ctx, 1, 2, 500)
		So(err, ShouldBeNil)
		revoked, expired, superseded := transitions(TransitionRevoked), transitions(TransitionExpired), transitions(TransitionSuperseded)

		Convey("When it is revoked with the expiration reason as its reason", func() {
			So(svc.RevokeCertification(ctx, id, DefaultExpirationReason), ShouldBeNil)

			Convey("Then it counts as revoked", func() {
				So(transitions(TransitionRevoked)-revoked, ShouldEqual, 1)
				So(transitions(TransitionExpired)-expired, ShouldEqual, 0)
			})
		})

		Convey("When it is verified after expiring", func() {
			clk.Set(700)
			_, err := svc.VerifyCertification(ctx, id)
			So(err, ShouldBeNil)

			Convey("Then it counts as expired", func() {
				So(transitions(TransitionExpired)-expired, ShouldEqual, 1)
				So(transitions(TransitionRevoked)-revoked, ShouldEqual, 0)
			})
		})

		Convey("When a new certification replaces it before expiry", func() {
			_, err := svc.IssueCertification(ctx, 1, 3, 500)
			So(err, ShouldBeNil)

			Convey("Then it counts as superseded", func() {
				So(transitions(TransitionSuperseded)-superseded, ShouldEqual, 1)
				So(transitions(TransitionExpired)-expired, ShouldEqual, 0)
			})
		})

		Convey("When a new certification is issued after it lapsed unverified", func() {
			clk.Set(700)
			_, err := svc.IssueCertification(ctx, 1, 3, 500)
			So(err, ShouldBeNil)

			Convey("Then it counts as expired", func() {
				So(transitions(TransitionExpired)-expired, ShouldEqual, 1)
				So(transitions(TransitionSuperseded)-superseded, ShouldEqual, 0)
				hist, err := svc.GetCertificationHistory(ctx, id)
				So(err, ShouldBeNil)
				So(hist.RevocationReason, ShouldEqual, DefaultExpirationReason)
			})
		})
	})
}
