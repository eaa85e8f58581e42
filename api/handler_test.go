package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xraph/recur"
	"github.com/xraph/recur/api"
	"github.com/xraph/recur/event"
	"github.com/xraph/recur/id"
	"github.com/xraph/recur/signature"
	"github.com/xraph/recur/store"
	"github.com/xraph/recur/store/memory"
)

const org = "org_1"

// testServer creates a Handler backed by a memory store and returns the test
// server. The clock is fixed at 2024-01-10 with a two-week lookahead, so the
// read-path horizon is 2024-01-24.
func testServer(t *testing.T, opts ...api.HandlerOption) *httptest.Server {
	t.Helper()
	return testServerWithStore(t, memory.New(), opts...)
}

func testServerWithStore(t *testing.T, s store.Store, opts ...api.HandlerOption) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)

	r, err := recur.New(
		recur.WithStore(s),
		recur.WithLogger(logger),
		recur.WithClock(func() time.Time { return now }),
		recur.WithLookahead(14*24*time.Hour),
	)
	if err != nil {
		t.Fatalf("new recur: %v", err)
	}

	srv := httptest.NewServer(api.NewHandler(r, logger, opts...))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("%s %s: expected %d, got %d: %s",
			resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, b)
	}
}

// createWeekly creates a weekly series starting 2024-01-01 and returns the
// rule ID.
func createWeekly(t *testing.T, srv *httptest.Server) string {
	t.Helper()

	resp := doJSON(t, "POST", srv.URL+"/rules", map[string]any{
		"organization_id": org,
		"title":           "Team sync",
		"start_time":      "10:00",
		"end_time":        "10:30",
		"pattern":         "WEEKLY",
		"start_date":      "2024-01-01",
	})
	expectStatus(t, resp, http.StatusCreated)

	var created struct {
		Rule     map[string]any `json:"rule"`
		Template map[string]any `json:"template"`
	}
	decodeBody(t, resp, &created)

	if created.Template["is_base_template"] != true {
		t.Fatalf("expected template, got %v", created.Template)
	}
	if created.Rule["base_event_id"] != created.Template["id"] {
		t.Fatalf("rule does not point at its template: %v", created.Rule)
	}
	return created.Rule["id"].(string)
}

func listEvents(t *testing.T, srv *httptest.Server, query string) []map[string]any {
	t.Helper()

	resp := doJSON(t, "GET", srv.URL+"/orgs/"+org+"/events"+query, nil)
	expectStatus(t, resp, http.StatusOK)

	var events []map[string]any
	decodeBody(t, resp, &events)
	return events
}

func TestHealth(t *testing.T) {
	srv := testServer(t)

	resp := doJSON(t, "GET", srv.URL+"/health", nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

// --- Rules ---

func TestRules_CRUD(t *testing.T) {
	srv := testServer(t)
	ruleID := createWeekly(t, srv)

	resp := doJSON(t, "GET", srv.URL+"/rules/"+ruleID, nil)
	expectStatus(t, resp, http.StatusOK)
	var rule map[string]any
	decodeBody(t, resp, &rule)
	if rule["pattern"] != "WEEKLY" {
		t.Fatalf("expected WEEKLY, got %v", rule["pattern"])
	}

	resp = doJSON(t, "GET", srv.URL+"/orgs/"+org+"/rules", nil)
	expectStatus(t, resp, http.StatusOK)
	var rules []map[string]any
	decodeBody(t, resp, &rules)
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}

	resp = doJSON(t, "DELETE", srv.URL+"/rules/"+ruleID, nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = doJSON(t, "GET", srv.URL+"/rules/"+ruleID, nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = doJSON(t, "DELETE", srv.URL+"/rules/"+ruleID, nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestRules_CreateInvalid(t *testing.T) {
	srv := testServer(t)

	resp := doJSON(t, "POST", srv.URL+"/rules", map[string]any{
		"organization_id": org,
		"title":           "Bad",
		"pattern":         "FORTNIGHTLY",
		"start_date":      "2024-01-01",
	})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = doJSON(t, "POST", srv.URL+"/rules", "not an object")
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestRules_InvalidID(t *testing.T) {
	srv := testServer(t)

	resp := doJSON(t, "GET", srv.URL+"/rules/not-an-id", nil)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

// --- Events ---

func TestEvents_ListMaterializes(t *testing.T) {
	srv := testServer(t)
	createWeekly(t, srv)

	events := listEvents(t, srv, "")
	want := []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-22"}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, evt := range events {
		if got := evt["occurrence_date"].(string)[:10]; got != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got)
		}
	}

	if n := len(listEvents(t, srv, "?exclude_templates=true")); n != 3 {
		t.Fatalf("expected 3 instances, got %d", n)
	}
	if n := len(listEvents(t, srv, "?from=2024-01-10&to=2024-01-20")); n != 1 {
		t.Fatalf("expected 1 event in range, got %d", n)
	}
	if n := len(listEvents(t, srv, "?limit=2")); n != 2 {
		t.Fatalf("expected 2 events with limit, got %d", n)
	}
}

func TestEvents_BadQuery(t *testing.T) {
	srv := testServer(t)

	for _, q := range []string{"?from=yesterday", "?to=2024-13-01", "?rule_id=evt_nope"} {
		resp := doJSON(t, "GET", srv.URL+"/orgs/"+org+"/events"+q, nil)
		expectStatus(t, resp, http.StatusBadRequest)
		resp.Body.Close()
	}
}

func TestEvents_DeleteInstance(t *testing.T) {
	srv := testServer(t)
	createWeekly(t, srv)

	events := listEvents(t, srv, "?exclude_templates=true")
	victim := events[0]["id"].(string)

	resp := doJSON(t, "DELETE", srv.URL+"/events/"+victim, nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = doJSON(t, "GET", srv.URL+"/events/"+victim, nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	// The deleted instance is not regenerated by the next read.
	if n := len(listEvents(t, srv, "?exclude_templates=true")); n != 2 {
		t.Fatalf("expected 2 instances after delete, got %d", n)
	}
}

func TestEvents_Update(t *testing.T) {
	srv := testServer(t)
	createWeekly(t, srv)

	events := listEvents(t, srv, "?exclude_templates=true")
	target := events[0]["id"].(string)

	resp := doJSON(t, "PATCH", srv.URL+"/events/"+target, map[string]any{
		"title":    "Team sync (moved)",
		"location": "Room 2",
	})
	expectStatus(t, resp, http.StatusOK)
	var evt map[string]any
	decodeBody(t, resp, &evt)
	if evt["title"] != "Team sync (moved)" || evt["location"] != "Room 2" {
		t.Fatalf("patch not applied: %v", evt)
	}
	if evt["start_time"] != "10:00" {
		t.Fatalf("unpatched field changed: %v", evt["start_time"])
	}

	resp = doJSON(t, "GET", srv.URL+"/events/"+target, nil)
	expectStatus(t, resp, http.StatusOK)
	decodeBody(t, resp, &evt)
	if evt["title"] != "Team sync (moved)" {
		t.Fatalf("update not persisted: %v", evt["title"])
	}

	resp = doJSON(t, "PATCH", srv.URL+"/events/"+target, map[string]any{"end_time": "09:00"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = doJSON(t, "PATCH", srv.URL+"/events/"+target, "not an object")
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = doJSON(t, "PATCH", srv.URL+"/events/"+id.NewEventID().String(), map[string]any{"title": "x"})
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

// brokenStore fails every event read with a driver error.
type brokenStore struct {
	*memory.Store
}

func (brokenStore) GetEvent(context.Context, id.ID) (*event.Event, error) {
	return nil, errors.New("dial tcp 10.0.0.5:5432: connection refused")
}

func TestEvents_StoreFailureIsGeneric(t *testing.T) {
	srv := testServerWithStore(t, brokenStore{Store: memory.New()})

	resp := doJSON(t, "GET", srv.URL+"/events/"+id.NewEventID().String(), nil)
	expectStatus(t, resp, http.StatusInternalServerError)

	var body map[string]string
	decodeBody(t, resp, &body)
	if body["error"] != "internal server error" {
		t.Fatalf("expected generic error, got %q", body["error"])
	}
}

// --- Materialize ---

func TestMaterialize(t *testing.T) {
	srv := testServer(t)
	createWeekly(t, srv)

	resp := doJSON(t, "POST", srv.URL+"/orgs/"+org+"/materialize?horizon=2024-01-20", nil)
	expectStatus(t, resp, http.StatusOK)

	var res map[string]any
	decodeBody(t, resp, &res)
	if res["created"] != float64(2) {
		t.Fatalf("expected 2 created, got %v", res["created"])
	}
	if res["horizon"] != "2024-01-20" {
		t.Fatalf("expected horizon 2024-01-20, got %v", res["horizon"])
	}

	// Without a horizon the lookahead limit applies.
	resp = doJSON(t, "POST", srv.URL+"/orgs/"+org+"/materialize", nil)
	expectStatus(t, resp, http.StatusOK)
	decodeBody(t, resp, &res)
	if res["created"] != float64(1) || res["horizon"] != "2024-01-24" {
		t.Fatalf("expected 1 created up to 2024-01-24, got %v", res)
	}

	// Caught up: a second call finds nothing to do.
	resp = doJSON(t, "POST", srv.URL+"/orgs/"+org+"/materialize", nil)
	expectStatus(t, resp, http.StatusOK)
	decodeBody(t, resp, &res)
	if res["created"] != float64(0) {
		t.Fatalf("expected 0 created, got %v", res["created"])
	}
}

func TestMaterialize_HorizonBeyondLookahead(t *testing.T) {
	srv := testServer(t)
	createWeekly(t, srv)

	resp := doJSON(t, "POST", srv.URL+"/orgs/"+org+"/materialize?horizon=2999-12-31", nil)
	expectStatus(t, resp, http.StatusBadRequest)
	var body map[string]string
	decodeBody(t, resp, &body)
	if !strings.Contains(body["error"], "2024-01-24") {
		t.Fatalf("expected the lookahead limit in the error, got %q", body["error"])
	}

	// Nothing was written: the lookahead pass still has all three instances to do.
	resp = doJSON(t, "POST", srv.URL+"/orgs/"+org+"/materialize", nil)
	expectStatus(t, resp, http.StatusOK)
	var res map[string]any
	decodeBody(t, resp, &res)
	if res["created"] != float64(3) {
		t.Fatalf("expected 3 created, got %v", res["created"])
	}
}

func TestMaterialize_BadHorizon(t *testing.T) {
	srv := testServer(t)

	resp := doJSON(t, "POST", srv.URL+"/orgs/"+org+"/materialize?horizon=soon", nil)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

// --- Calendar ---

func TestCalendar(t *testing.T) {
	srv := testServer(t)
	createWeekly(t, srv)

	resp := doJSON(t, "GET", srv.URL+"/orgs/"+org+"/calendar.ics?name=Team", nil)
	expectStatus(t, resp, http.StatusOK)
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("expected text/calendar, got %q", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if n := strings.Count(string(body), "BEGIN:VEVENT"); n != 4 {
		t.Fatalf("expected 4 VEVENTs, got %d", n)
	}
	if !strings.Contains(string(body), "X-WR-CALNAME:Team") {
		t.Fatalf("expected calendar name in feed:\n%s", body)
	}
}

func TestMaterialize_RateLimited(t *testing.T) {
	srv := testServer(t, api.WithMaterializeLimit(2))

	for i := 0; i < 2; i++ {
		resp := doJSON(t, "POST", srv.URL+"/orgs/"+org+"/materialize", nil)
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}

	resp := doJSON(t, "POST", srv.URL+"/orgs/"+org+"/materialize", nil)
	expectStatus(t, resp, http.StatusTooManyRequests)
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	resp.Body.Close()

	// Buckets are per organization.
	resp = doJSON(t, "POST", srv.URL+"/orgs/org_2/materialize", nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestCalendar_FeedToken(t *testing.T) {
	const secret = "fsec_test"
	srv := testServer(t, api.WithFeedSecret(secret))
	createWeekly(t, srv)

	base := srv.URL + "/orgs/" + org + "/calendar.ics"

	resp := doJSON(t, "GET", base, nil)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = doJSON(t, "GET", base+"?token="+signature.FeedToken(secret, "org_2"), nil)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = doJSON(t, "GET", base+"?token="+signature.FeedToken(secret, org), nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}
