package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/crmscore/internal/adapters/http/api"
	service "github.com/okian/crmscore/internal/app"
	"github.com/okian/crmscore/internal/domain/model"
	"github.com/okian/crmscore/internal/domain/summary"
	"github.com/okian/crmscore/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type testServer struct {
	svc *service.Service
	mux *http.ServeMux
}

func newTestServer(ctx context.Context, opts ...api.ServerOption) *testServer {
	svc := service.New(service.WithWorkerCount(1), service.WithQueueSize(100))
	mux := http.NewServeMux()
	api.NewServer(svc, opts...).Register(ctx, mux)
	return &testServer{svc: svc, mux: mux}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestCalculators(t *testing.T) {
	Convey("Given the API server", t, func() {
		s := newTestServer(context.Background())

		Convey("When an entity is scored", func() {
			w := s.do(http.MethodPost, "/score", `{"revenue":2500000,"employees":150,"status":"client"}`)

			Convey("Then the breakdown is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["revenue_points"], ShouldEqual, 10.0)
				So(body["employee_points"], ShouldEqual, 30.0)
				So(body["status_points"], ShouldEqual, 30.0)
				So(body["score"], ShouldEqual, 70.0)
			})
		})

		Convey("When optional fields are missing", func() {
			w := s.do(http.MethodPost, "/score", `{"status":"prospect"}`)

			Convey("Then the band floors apply", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["score"], ShouldEqual, 35.0)
			})
		})

		Convey("When the score input is invalid", func() {
			negative := s.do(http.MethodPost, "/score", `{"revenue":-1,"status":"client"}`)
			unknown := s.do(http.MethodPost, "/score", `{"status":"qualified"}`)
			missing := s.do(http.MethodPost, "/score", `{"revenue":10}`)

			Convey("Then domain errors map to invalid_argument and shape errors to bad_request", func() {
				So(negative.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(negative)["code"], ShouldEqual, "invalid_argument")
				So(unknown.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(unknown)["code"], ShouldEqual, "invalid_argument")
				So(missing.Code, ShouldEqual, http.StatusBadRequest)
				body := decode(missing)
				So(body["code"], ShouldEqual, "bad_request")
				So(body["message"], ShouldContainSubstring, "status: required")
			})
		})

		Convey("When an opportunity is valued", func() {
			under := s.do(http.MethodPost, "/valuation", `{"value":45000000,"probability":75}`)
			over := s.do(http.MethodPost, "/valuation", `{"value":60000000,"probability":60}`)
			zero := s.do(http.MethodPost, "/valuation", `{"value":0,"probability":0}`)

			Convey("Then the weighted value and approval flag are returned", func() {
				So(under.Code, ShouldEqual, http.StatusOK)
				u := decode(under)
				So(u["weighted_value"], ShouldEqual, 33_750_000.0)
				So(u["requires_approval"], ShouldEqual, false)
				o := decode(over)
				So(o["weighted_value"], ShouldEqual, 36_000_000.0)
				So(o["requires_approval"], ShouldEqual, true)
				So(zero.Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When the valuation input is invalid", func() {
			w := s.do(http.MethodPost, "/valuation", `{"value":10,"probability":101}`)
			unknownField := s.do(http.MethodPost, "/valuation", `{"value":10,"probability":1,"currency":"XOF"}`)

			Convey("Then it is rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "invalid_argument")
				So(unknownField.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(unknownField)["code"], ShouldEqual, "bad_request")
			})
		})
	})
}

func TestRecordRoutes(t *testing.T) {
	Convey("Given the API server", t, func() {
		s := newTestServer(context.Background())

		Convey("When entities and opportunities are created", func() {
			acme := s.do(http.MethodPost, "/entities", `{"id":"acme","name":"Acme","revenue":2500000,"employees":150,"status":"client"}`)
			globex := s.do(http.MethodPost, "/entities", `{"id":"globex","name":"Globex","revenue":150000000,"employees":45,"status":"client"}`)
			deal := s.do(http.MethodPost, "/opportunities", `{"id":"deal","entity_id":"acme","title":"Renewal","value":60000000,"probability":60}`)

			Convey("Then the stored records carry derived fields", func() {
				So(acme.Code, ShouldEqual, http.StatusOK)
				So(decode(acme)["score"], ShouldEqual, 70.0)
				So(decode(globex)["score"], ShouldEqual, 90.0)
				So(deal.Code, ShouldEqual, http.StatusOK)
				d := decode(deal)
				So(d["requires_approval"], ShouldEqual, true)
				So(d["weighted_value"], ShouldEqual, 36_000_000.0)
			})

			Convey("Then they can be read back", func() {
				w := s.do(http.MethodGet, "/entities/acme", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["name"], ShouldEqual, "Acme")

				list := s.do(http.MethodGet, "/entities", "")
				var ents []model.Entity
				So(json.Unmarshal(list.Body.Bytes(), &ents), ShouldBeNil)
				So(ents, ShouldHaveLength, 2)

				opp := s.do(http.MethodGet, "/opportunities/deal", "")
				So(decode(opp)["entity_id"], ShouldEqual, "acme")
				opps := s.do(http.MethodGet, "/opportunities", "")
				So(opps.Body.String(), ShouldContainSubstring, `"weighted_value":36000000`)
			})

			Convey("Then the leaderboard and rank reflect the scores", func() {
				w := s.do(http.MethodGet, "/leaderboard?limit=10", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var entries []api.Entry
				So(json.Unmarshal(w.Body.Bytes(), &entries), ShouldBeNil)
				So(entries, ShouldHaveLength, 2)
				So(entries[0].EntityID, ShouldEqual, "globex")
				So(entries[0].Name, ShouldEqual, "Globex")

				page := s.do(http.MethodGet, "/leaderboard?limit=10&offset=1", "")
				So(page.Code, ShouldEqual, http.StatusOK)
				var rest []api.Entry
				So(json.Unmarshal(page.Body.Bytes(), &rest), ShouldBeNil)
				So(rest, ShouldHaveLength, 1)
				So(rest[0].EntityID, ShouldEqual, "acme")
				So(rest[0].Rank, ShouldEqual, 2)

				rank := s.do(http.MethodGet, "/rank/acme", "")
				So(rank.Code, ShouldEqual, http.StatusOK)
				So(decode(rank)["rank"], ShouldEqual, 2.0)
			})

			Convey("Then the summary aggregates them", func() {
				w := s.do(http.MethodGet, "/summary", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["entities"], ShouldEqual, 2.0)
				So(body["total_weighted_value"], ShouldEqual, 36_000_000.0)
				So(body["pending_approvals"], ShouldEqual, 1.0)
				So(body["average_score"], ShouldEqual, 80.0)
				So(body["total_value"], ShouldEqual, 60_000_000.0)
				So(body["top_prospects"], ShouldBeEmpty)
			})

			Convey("Then the pipeline report downloads as a workbook", func() {
				w := s.do(http.MethodGet, "/reports/pipeline.xlsx", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Disposition"), ShouldContainSubstring, "pipeline.xlsx")
				f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
				So(err, ShouldBeNil)
				defer func() { _ = f.Close() }()
				v, err := f.GetCellValue("Summary", "B8")
				So(err, ShouldBeNil)
				So(v, ShouldEqual, "36000000")
			})

			Convey("Then deleting the entity cascades", func() {
				w := s.do(http.MethodDelete, "/entities/acme", "")
				So(w.Code, ShouldEqual, http.StatusNoContent)
				So(s.do(http.MethodGet, "/opportunities/deal", "").Code, ShouldEqual, http.StatusNotFound)
				So(s.do(http.MethodGet, "/rank/acme", "").Code, ShouldEqual, http.StatusNotFound)
				So(s.do(http.MethodDelete, "/entities/acme", "").Code, ShouldEqual, http.StatusNotFound)
			})

			Convey("Then an opportunity can be deleted alone", func() {
				So(s.do(http.MethodDelete, "/opportunities/deal", "").Code, ShouldEqual, http.StatusNoContent)
				So(s.do(http.MethodGet, "/entities/acme", "").Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When records are missing or malformed", func() {
			missing := s.do(http.MethodGet, "/entities/ghost", "")
			noName := s.do(http.MethodPost, "/entities", `{"status":"client"}`)
			badJSON := s.do(http.MethodPost, "/opportunities", `{"title":`)
			noValue := s.do(http.MethodPost, "/opportunities", `{"title":"x","probability":10}`)

			Convey("Then errors carry a code and a message", func() {
				So(missing.Code, ShouldEqual, http.StatusNotFound)
				So(decode(missing)["code"], ShouldEqual, "not_found")
				So(noName.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(noName)["message"], ShouldContainSubstring, "name: required")
				So(badJSON.Code, ShouldEqual, http.StatusBadRequest)
				So(noValue.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(noValue)["message"], ShouldContainSubstring, "value: required")
			})
		})

		Convey("When an entity is created without id", func() {
			w := s.do(http.MethodPost, "/entities", `{"name":"Anon","status":"prospect"}`)

			Convey("Then the server assigns one", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["id"], ShouldNotBeEmpty)
			})
		})

		Convey("When the method is not routed", func() {
			w := s.do(http.MethodPut, "/entities/acme", `{}`)

			Convey("Then the mux rejects it", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})
	})
}

func TestStatusCase(t *testing.T) {
	Convey("Given the API server", t, func() {
		ctx := context.Background()
		s := newTestServer(ctx)

		Convey("When statuses arrive in mixed case or padded", func() {
			score := s.do(http.MethodPost, "/score", `{"revenue":2500000,"employees":150,"status":"Client"}`)
			upsert := s.do(http.MethodPost, "/entities", `{"id":"acme","name":"Acme","status":" PROSPECT "}`)

			Convey("Then they are accepted and stored lower-case", func() {
				So(score.Code, ShouldEqual, http.StatusOK)
				So(decode(score)["score"], ShouldEqual, 70.0)
				So(upsert.Code, ShouldEqual, http.StatusOK)
				body := decode(upsert)
				So(body["status"], ShouldEqual, "prospect")
				So(body["score"], ShouldEqual, 35.0)
			})
		})

		Convey("When an event carries a capitalised status", func() {
			So(s.svc.Start(ctx), ShouldBeNil)
			w := s.do(http.MethodPost, "/events", `{"event_id":"ev-case","kind":"entity.upsert","ts":"2025-03-01T10:00:00Z",`+
				`"entity":{"id":"initech","name":"Initech","status":"Client"}}`)
			So(s.svc.Stop(ctx), ShouldBeNil)

			Convey("Then the worker applies the normalised status", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				e, err := s.svc.GetEntity(ctx, "initech")
				So(err, ShouldBeNil)
				So(e.Status, ShouldEqual, model.StatusClient)
				So(e.Score, ShouldEqual, 50)
			})
		})

		Convey("When the status is unknown in any case", func() {
			w := s.do(http.MethodPost, "/entities", `{"name":"Hooli","status":"Partner"}`)

			Convey("Then invalid_argument is returned", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "invalid_argument")
			})
		})
	})
}

func TestLeaderboardLimits(t *testing.T) {
	Convey("Given a server with a leaderboard cap of 5", t, func() {
		s := newTestServer(context.Background(), api.WithMaxLeaderboardLimit(5))

		cases := []struct {
			query string
			code  string
		}{
			{"", "bad_request"},
			{"?limit=abc", "bad_request"},
			{"?limit=0", "bad_request"},
			{"?limit=6", "limit_exceeded"},
			{"?limit=5&offset=-1", "bad_request"},
			{"?limit=5&offset=x", "bad_request"},
		}
		for _, tc := range cases {
			Convey("Then "+tc.query+" is rejected with "+tc.code, func() {
				w := s.do(http.MethodGet, "/leaderboard"+tc.query, "")
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, tc.code)
			})
		}

		Convey("Then an empty leaderboard is an empty list", func() {
			w := s.do(http.MethodGet, "/leaderboard?limit=5", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
		})
	})
}

func TestEvents(t *testing.T) {
	Convey("Given a started API server", t, func() {
		ctx := context.Background()
		s := newTestServer(ctx)
		So(s.svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = s.svc.Stop(ctx) })

		event := `{"event_id":"ev-1","kind":"entity.upsert","ts":"2025-03-01T10:00:00Z",` +
			`"entity":{"id":"acme","name":"Acme","revenue":150000000,"employees":100,"status":"client"}}`

		Convey("When an event is posted twice", func() {
			first := s.do(http.MethodPost, "/events", event)
			second := s.do(http.MethodPost, "/events", event)

			Convey("Then it is accepted once and reported as duplicate after", func() {
				So(first.Code, ShouldEqual, http.StatusAccepted)
				So(decode(first)["status"], ShouldEqual, "accepted")
				So(second.Code, ShouldEqual, http.StatusOK)
				So(decode(second)["duplicate"], ShouldEqual, true)
			})

			Convey("Then the worker applies it", func() {
				So(s.svc.Stop(ctx), ShouldBeNil)
				w := s.do(http.MethodGet, "/rank/acme", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["score"], ShouldEqual, 100.0)
			})
		})

		Convey("When events are malformed", func() {
			noTS := s.do(http.MethodPost, "/events", `{"event_id":"ev-2","kind":"entity.delete","target_id":"a"}`)
			badTS := s.do(http.MethodPost, "/events", `{"event_id":"ev-3","kind":"entity.delete","target_id":"a","ts":"yesterday"}`)
			badKind := s.do(http.MethodPost, "/events", `{"event_id":"ev-4","kind":"entity.merge","ts":"2025-03-01T10:00:00Z"}`)
			badPayload := s.do(http.MethodPost, "/events", `{"event_id":"ev-5","kind":"opportunity.upsert","ts":"2025-03-01T10:00:00Z",`+
				`"opportunity":{"id":"o","title":"t","value":10,"probability":150}}`)
			noPayload := s.do(http.MethodPost, "/events", `{"event_id":"ev-6","kind":"entity.upsert","ts":"2025-03-01T10:00:00Z"}`)

			Convey("Then they are rejected and nothing is remembered", func() {
				So(noTS.Code, ShouldEqual, http.StatusBadRequest)
				So(badTS.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(badTS)["code"], ShouldEqual, "bad_request")
				So(badKind.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(badKind)["code"], ShouldEqual, "invalid_argument")
				So(badPayload.Code, ShouldEqual, http.StatusBadRequest)
				So(noPayload.Code, ShouldEqual, http.StatusBadRequest)
				So(s.svc.DedupeSize(), ShouldEqual, 0)
			})
		})

		Convey("When the service is stopped", func() {
			So(s.svc.Stop(ctx), ShouldBeNil)
			w := s.do(http.MethodPost, "/events", event)

			Convey("Then events are refused as unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})
	})
}

type stubSubmitter struct {
	api.Dependencies
	err error
}

func (s stubSubmitter) Submit(context.Context, model.Event) (bool, error) { return false, s.err }

func (s stubSubmitter) Summary(context.Context) (summary.Dashboard, error) {
	return summary.Dashboard{}, errors.New("boom")
}

func TestErrorMapping(t *testing.T) {
	Convey("Given a server whose dependencies fail", t, func() {
		mux := http.NewServeMux()
		api.NewServer(stubSubmitter{err: service.ErrBackpressure}).Register(context.Background(), mux)

		Convey("When an event meets a full queue", func() {
			req := httptest.NewRequest(http.MethodPost, "/events",
				strings.NewReader(`{"event_id":"e","kind":"entity.delete","target_id":"a","ts":"2025-03-01T10:00:00Z"}`))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then 429 backpressure is returned", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(decode(w)["code"], ShouldEqual, "backpressure")
			})
		})

		Convey("When an unexpected error happens", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/summary", http.NoBody))

			Convey("Then 500 internal_error is returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decode(w)["code"], ShouldEqual, "internal_error")
			})
		})
	})
}

func TestHealthAndStats(t *testing.T) {
	Convey("Given the API server", t, func() {
		s := newTestServer(context.Background())
		_ = s.do(http.MethodPost, "/score", `{"status":"client"}`)

		Convey("When metrics are scraped", func() {
			w := s.do(http.MethodGet, "/healthz", "")

			Convey("Then the custom registry is exposed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "crmscore_")
			})
		})

		Convey("When stats are requested", func() {
			w := s.do(http.MethodGet, "/stats", "")

			Convey("Then the service state is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["running"], ShouldEqual, false)
				So(body["entities"], ShouldEqual, 0.0)
			})
		})
	})
}

func TestErrorHelpers(t *testing.T) {
	Convey("Given the error helpers", t, func() {
		cause := errors.New("eof")
		err := api.WrapKind("api.op", api.ErrBadRequest, cause)

		Convey("Then kind and cause stay matchable", func() {
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: bad request: eof")
			So(api.NewKind("api.op", api.ErrBackpressure).Error(), ShouldEqual, "api.op: backpressure")
			So(errors.Is(api.Wrap("api.op", cause), cause), ShouldBeTrue)
		})
	})
}
