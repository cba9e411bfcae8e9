package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/accessreg/internal/adapters/http/api"
	service "github.com/okian/accessreg/internal/app"
	"github.com/okian/accessreg/internal/domain/clock"
	"github.com/okian/accessreg/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type testServer struct {
	handler http.Handler
	clock   *clock.Manual
}

func newTestServer() *testServer {
	clk := clock.NewManual(100)
	svc := service.New(service.WithClock(clk), service.WithDeployer("deployer"))
	So(svc.Start(context.Background()), ShouldBeNil)

	mux := http.NewServeMux()
	api.NewServer(api.Dependencies{
		Facilities:     svc.Facilities(),
		Certifications: svc.Certifications(),
		Improvements:   svc.Improvements(),
		Feedback:       svc.Feedback(),
		Registry:       svc,
		Stats:          svc,
	}).Register(mux)
	return &testServer{handler: api.IdentityMiddleware(mux, logger.Discard()), clock: clk}
}

func (s *testServer) do(method, path, caller, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if caller != "" {
		req.Header.Set(api.HeaderCaller, caller)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

// value decodes the {"value": ...} envelope into v.
func value(w *httptest.ResponseRecorder, v any) {
	var env struct {
		Value json.RawMessage `json:"value"`
	}
	So(json.Unmarshal(w.Body.Bytes(), &env), ShouldBeNil)
	So(json.Unmarshal(env.Value, v), ShouldBeNil)
}

func errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Code string `json:"code"`
	}
	So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
	return body.Code
}

func TestServer_Facilities(t *testing.T) {
	Convey("Given a registry API", t, func() {
		s := newTestServer()

		Convey("When the deployer registers a facility, an assessment and findings", func() {
			w := s.do("POST", "/v1/facilities", "deployer", `{"name":"Test Facility","location":"Main St","facility_type":1}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			var id uint64
			value(w, &id)
			So(id, ShouldEqual, 1)

			w = s.do("POST", "/v1/facilities/1/assessments", "deployer", `{"assessor":"inspector","compliance_level":2}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			for i := 0; i < 3; i++ {
				w = s.do("POST", "/v1/facilities/1/assessments/1/findings", "deployer", `{"severity":2,"description":"Step at entrance"}`)
				So(w.Code, ShouldEqual, http.StatusCreated)
			}

			Convey("Then they can be read back", func() {
				w := s.do("GET", "/v1/facilities/1", "", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var f struct {
					Name             string `json:"name"`
					RegistrationDate uint64 `json:"registration_date"`
				}
				value(w, &f)
				So(f.Name, ShouldEqual, "Test Facility")
				So(f.RegistrationDate, ShouldEqual, 100)

				w = s.do("GET", "/v1/facilities/1/assessments/1", "", "")
				var a struct {
					FindingsCount uint64 `json:"findings_count"`
				}
				value(w, &a)
				So(a.FindingsCount, ShouldEqual, 3)

				w = s.do("GET", "/v1/facilities/1/findings/3", "", "")
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When an anonymous caller registers a facility", func() {
			w := s.do("POST", "/v1/facilities", "", `{"name":"X"}`)
			So(w.Code, ShouldEqual, http.StatusForbidden)
			So(errorCode(w), ShouldEqual, "unauthorized")
		})

		Convey("When the body or path is malformed", func() {
			So(s.do("POST", "/v1/facilities", "deployer", `{"name":`).Code, ShouldEqual, http.StatusBadRequest)
			So(s.do("POST", "/v1/facilities", "deployer", `{"nme":"x"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(s.do("GET", "/v1/facilities/abc", "", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a facility is unknown", func() {
			w := s.do("GET", "/v1/facilities/9", "", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(errorCode(w), ShouldEqual, "not_found")
		})

		Convey("When a route is called with the wrong method", func() {
			So(s.do("DELETE", "/v1/facilities/1", "deployer", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestServer_Certifications(t *testing.T) {
	Convey("Given a facility with a certification issued at 100", t, func() {
		s := newTestServer()
		So(s.do("POST", "/v1/facilities", "deployer", `{"name":"Test Facility"}`).Code, ShouldEqual, http.StatusCreated)
		w := s.do("POST", "/v1/certifications", "deployer", `{"facility_id":1,"level":2,"validity_period":500}`)
		So(w.Code, ShouldEqual, http.StatusCreated)

		type cert struct {
			ExpirationDate uint64 `json:"expiration_date"`
			IsActive       bool   `json:"is_active"`
		}

		Convey("When verified at 100", func() {
			w := s.do("POST", "/v1/certifications/1/verify", "", "")
			var c cert
			value(w, &c)

			Convey("Then it is active until 600", func() {
				So(c.IsActive, ShouldBeTrue)
				So(c.ExpirationDate, ShouldEqual, 600)
				So(s.do("GET", "/v1/certifications/1/history", "", "").Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the deployer moves the clock to 700 and verifies", func() {
			So(s.do("PUT", "/v1/clock", "deployer", `{"height":700}`).Code, ShouldEqual, http.StatusOK)
			w := s.do("POST", "/v1/certifications/1/verify", "", "")
			var c cert
			value(w, &c)

			Convey("Then it is inactive with an expiration history entry", func() {
				So(c.IsActive, ShouldBeFalse)
				w := s.do("GET", "/v1/certifications/1/history", "", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var h struct {
					RevocationReason string `json:"revocation_reason"`
				}
				value(w, &h)
				So(h.RevocationReason, ShouldEqual, "Certification expired")
			})

			Convey("Then revoking conflicts", func() {
				w := s.do("POST", "/v1/certifications/1/revoke", "deployer", `{"reason":"late"}`)
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(errorCode(w), ShouldEqual, "already_inactive")
			})
		})

		Convey("When it is revoked", func() {
			w := s.do("POST", "/v1/certifications/1/revoke", "deployer", `{"reason":"Lift broken"}`)
			So(w.Code, ShouldEqual, http.StatusOK)

			Convey("Then the facility's certification is inactive", func() {
				w := s.do("GET", "/v1/facilities/1/certification", "", "")
				var c cert
				value(w, &c)
				So(c.IsActive, ShouldBeFalse)
			})
		})

		Convey("When someone else moves the clock", func() {
			So(s.do("PUT", "/v1/clock", "mallory", `{"height":900}`).Code, ShouldEqual, http.StatusForbidden)
			w := s.do("GET", "/v1/clock", "", "")
			var h uint64
			value(w, &h)
			So(h, ShouldEqual, 100)
		})
	})
}

func TestServer_ImprovementsAndFeedback(t *testing.T) {
	Convey("Given a facility with one finding", t, func() {
		s := newTestServer()
		So(s.do("POST", "/v1/facilities", "deployer", `{"name":"Library"}`).Code, ShouldEqual, http.StatusCreated)
		So(s.do("POST", "/v1/facilities/1/assessments", "deployer", `{"compliance_level":1}`).Code, ShouldEqual, http.StatusCreated)
		So(s.do("POST", "/v1/facilities/1/assessments/1/findings", "deployer", `{"severity":3,"description":"No ramp"}`).Code, ShouldEqual, http.StatusCreated)

		Convey("When a plan is created and completed by its assignee", func() {
			w := s.do("POST", "/v1/improvements", "deployer", `{"facility_id":1,"finding_id":1,"description":"Build ramp","target_date":400,"assigned_to":"builder"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			w = s.do("POST", "/v1/improvements/1/status", "builder", `{"status":"completed","notes":"done"}`)
			So(w.Code, ShouldEqual, http.StatusOK)

			Convey("Then reopening conflicts and the update is readable", func() {
				w := s.do("POST", "/v1/improvements/1/status", "builder", `{"status":"open","notes":"no"}`)
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(errorCode(w), ShouldEqual, "invalid_transition")

				w = s.do("GET", "/v1/improvements/1/updates/1", "", "")
				var u struct {
					Notes     string `json:"notes"`
					UpdatedBy string `json:"updated_by"`
				}
				value(w, &u)
				So(u.Notes, ShouldEqual, "done")
				So(u.UpdatedBy, ShouldEqual, "builder")
			})

			Convey("Then an unknown status is rejected", func() {
				w := s.do("POST", "/v1/improvements/1/status", "builder", `{"status":"paused"}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When visitors rate the facility", func() {
			for _, body := range []string{
				`{"facility_id":1,"category":2,"rating":5}`,
				`{"facility_id":1,"category":2,"rating":4}`,
			} {
				So(s.do("POST", "/v1/feedback", "visitor", body).Code, ShouldEqual, http.StatusCreated)
			}

			Convey("Then the aggregate and truncated average are served", func() {
				w := s.do("GET", "/v1/facilities/1/ratings/2", "", "")
				var agg struct {
					TotalRatings uint64 `json:"total_ratings"`
					SumRatings   uint64 `json:"sum_ratings"`
				}
				value(w, &agg)
				So(agg.TotalRatings, ShouldEqual, 2)
				So(agg.SumRatings, ShouldEqual, 9)

				w = s.do("GET", "/v1/facilities/1/ratings/2/average", "", "")
				var avg uint64
				value(w, &avg)
				So(avg, ShouldEqual, 4)
			})

			Convey("Then an out of range rating is rejected", func() {
				w := s.do("POST", "/v1/feedback", "visitor", `{"facility_id":1,"category":2,"rating":7}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "invalid_argument")
			})
		})
	})
}

func TestServer_RegistryEndpoints(t *testing.T) {
	Convey("Given a registry API", t, func() {
		s := newTestServer()

		Convey("When the deployer hands over the feedback component", func() {
			So(s.do("PUT", "/v1/admin/feedback", "deployer", `{"admin":"moderator"}`).Code, ShouldEqual, http.StatusOK)

			Convey("Then the new administrator is reported", func() {
				w := s.do("GET", "/v1/admin/feedback", "", "")
				var admin string
				value(w, &admin)
				So(admin, ShouldEqual, "moderator")
			})
		})

		Convey("When the component is unknown", func() {
			So(s.do("GET", "/v1/admin/billing", "", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When health and stats are requested", func() {
			So(s.do("GET", "/healthz", "", "").Code, ShouldEqual, http.StatusOK)
			w := s.do("GET", "/stats", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("When no request id is sent", func() {
			w := s.do("GET", "/v1/clock", "", "")
			So(w.Header().Get(api.HeaderRequestID), ShouldNotBeEmpty)
		})
	})
}
