package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"Aurelius/internal/services/features"
	"Aurelius/internal/usecase"

	"github.com/labstack/echo/v4"
)

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*echo.Echo, *usecase.Progress, *usecase.ResultBook) {
	t.Helper()
	progress := usecase.NewProgress()
	book := usecase.NewResultBook()
	e := echo.New()
	NewStatusHandler(progress, book, nil).RegisterRoutes(e)
	return e, progress, book
}

func do(t *testing.T, e *echo.Echo, target string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v (%s)", target, err, rec.Body.String())
	}
	return rec.Code, env
}

func TestStatusReportsProgress(t *testing.T) {
	e, progress, _ := newTestServer(t)
	progress.Start("ingest", 3)
	progress.Finish(usecase.OutcomeOK, 10)
	progress.Finish(usecase.OutcomeEmpty, 0)

	code, env := do(t, e, "/api/status")
	if code != http.StatusOK || env.Status != http.StatusOK {
		t.Fatalf("unexpected status %d/%d", code, env.Status)
	}
	var snap usecase.ProgressSnapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Phase != "ingest" || snap.Total != 3 || snap.Done != 2 || snap.Succeeded != 1 || snap.Empty != 1 || snap.Rows != 10 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestResultsFilterAndLimit(t *testing.T) {
	e, _, book := newTestServer(t)
	book.Put(features.Summary{Table: "t1", Strategy: "equal_weighted", FinalValue: 1})
	book.Put(features.Summary{Table: "t1", Strategy: "market_cap_weighted", FinalValue: 2})
	book.Put(features.Summary{Table: "t2", Strategy: "equal_weighted", FinalValue: 3})

	_, env := do(t, e, "/api/results?strategy=equal_weighted&limit=1")
	var list struct {
		Rows  []features.Summary `json:"rows"`
		Total int64              `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 2 || len(list.Rows) != 1 || list.Rows[0].Table != "t1" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestResultsRejectsUnknownStrategy(t *testing.T) {
	e, _, _ := newTestServer(t)
	_, env := do(t, e, "/api/results?strategy=momentum")
	if env.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 envelope, got %d", env.Status)
	}
}

func TestResultNotFound(t *testing.T) {
	e, _, book := newTestServer(t)
	book.Put(features.Summary{Table: "t1", Strategy: "equal_weighted"})

	_, env := do(t, e, "/api/results/t1/equal_weighted")
	if env.Status != http.StatusOK {
		t.Fatalf("expected hit, got %d", env.Status)
	}
	_, env = do(t, e, "/api/results/t9/equal_weighted")
	if env.Status != http.StatusNotFound {
		t.Fatalf("expected 404 envelope, got %d", env.Status)
	}
}

func TestResultsValidationNamesQueryFields(t *testing.T) {
	e, _, book := newTestServer(t)
	book.Put(features.Summary{Table: "t1", Strategy: "equal_weighted"})

	cases := map[string]struct{ field, code string }{
		"/api/results?table=prices-joined": {"table", "ERR_TABLENAME"},
		"/api/results?limit=5000":          {"limit", "ERR_LTE"},
		"/api/results/1bad/equal_weighted": {"table", "ERR_TABLENAME"},
		"/api/results/t1/momentum":         {"strategy", "ERR_ONEOF"},
	}
	for target, want := range cases {
		_, env := do(t, e, target)
		if env.Status != http.StatusBadRequest {
			t.Errorf("%s: expected 400 envelope, got %d", target, env.Status)
			continue
		}
		var errs []struct {
			Code  string `json:"code"`
			Field string `json:"field"`
		}
		if err := json.Unmarshal(env.Data, &errs); err != nil {
			t.Fatalf("%s: decode errors: %v", target, err)
		}
		if len(errs) != 1 || errs[0].Field != want.field || errs[0].Code != want.code {
			t.Errorf("%s: unexpected errors %+v", target, errs)
		}
	}
}
