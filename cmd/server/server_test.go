package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Simplici0/liveprice/internal/db"
	"github.com/Simplici0/liveprice/internal/engine"
	"github.com/Simplici0/liveprice/internal/migrations"
	"github.com/Simplici0/liveprice/internal/pricing"
	"github.com/Simplici0/liveprice/internal/seed"
	"github.com/Simplici0/liveprice/internal/store"
)

const completeFlowJSON = `{
	"projectSetup": {
		"customerName": "Ada Lovelace",
		"customerEmail": "ada@example.com",
		"customerPhone": "555-0100",
		"buildingType": "residential",
		"serviceType": "exterior"
	},
	"areaOfWork": {
		"buildingHeightStories": 2,
		"totalSqft": 1500,
		"measurements": [{"label": "front", "sqft": 900}, {"label": "back", "sqft": 600}]
	},
	"scopeDetails": {"selectedServices": ["window_cleaning", "gutter_cleaning"]},
	"duration": {"estimatedHours": 6}
}`

func newTestServer(t *testing.T, debounce time.Duration) *server {
	t.Helper()
	ctx := context.Background()

	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := migrations.Up(database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	if _, err := seed.Run(ctx, database, nil, seed.Options{}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cards, err := store.LoadRateCards(ctx, database)
	if err != nil {
		t.Fatalf("load rate cards: %v", err)
	}

	cfg := engine.DefaultConfig()
	cfg.Debounce = debounce
	srv := newServer(cfg, cards, store.NewResults(database), zerolog.Nop())
	t.Cleanup(srv.engine.Close)
	return srv
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

// eventually polls cond until it holds or two seconds pass.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, time.Second)

	rr := do(t, srv.routes(), http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Fatalf("healthz = %d %s", rr.Code, rr.Body.String())
	}
}

func TestHandleServicesListsSeededCards(t *testing.T) {
	srv := newTestServer(t, time.Second)

	rr := do(t, srv.routes(), http.MethodGet, "/services", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	items := decodeBody[[]serviceItem](t, rr)
	if len(items) != len(pricing.DefaultRateCards()) {
		t.Fatalf("expected %d services, got %+v", len(pricing.DefaultRateCards()), items)
	}
	if items[0].Service != "gutter_cleaning" || items[0].DisplayName != "Gutter Cleaning" {
		t.Fatalf("services not sorted by key: %+v", items)
	}
}

func TestHandleEstimateCreatePricesAndPersists(t *testing.T) {
	srv := newTestServer(t, time.Second)
	h := srv.routes()

	rr := do(t, h, http.MethodPost, "/estimates", completeFlowJSON)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	created := decodeBody[estimateResponse](t, rr)
	if _, err := uuid.Parse(created.EstimateID); err != nil {
		t.Fatalf("estimate id %q is not a uuid: %v", created.EstimateID, err)
	}
	if rr.Header().Get("Location") != "/estimates/"+created.EstimateID+"/pricing" {
		t.Fatalf("unexpected Location %q", rr.Header().Get("Location"))
	}

	p := created.Pricing
	if p.Confidence != pricing.ConfidenceHigh || len(p.MissingData) != 0 {
		t.Fatalf("expected high confidence, got %s missing=%v", p.Confidence, p.MissingData)
	}
	if len(p.ServiceBreakdown) != 2 || p.ServiceBreakdown[0].Service != "window_cleaning" {
		t.Fatalf("unexpected breakdown: %+v", p.ServiceBreakdown)
	}
	if p.TotalCost <= 0 {
		t.Fatalf("expected positive total, got %v", p.TotalCost)
	}

	rec, err := srv.results.Latest(context.Background(), created.EstimateID)
	if err != nil {
		t.Fatalf("result not persisted: %v", err)
	}
	if rec.TotalCost != p.TotalCost {
		t.Fatalf("persisted total = %v, want %v", rec.TotalCost, p.TotalCost)
	}

	got := do(t, h, http.MethodGet, "/estimates/"+created.EstimateID+"/pricing", "")
	if got.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", got.Code)
	}
	if fetched := decodeBody[estimateResponse](t, got); fetched.Pricing.TotalCost != p.TotalCost {
		t.Fatalf("fetched total = %v, want %v", fetched.Pricing.TotalCost, p.TotalCost)
	}
}

func TestHandlePricingGetFallsBackToStore(t *testing.T) {
	srv := newTestServer(t, time.Second)
	h := srv.routes()

	rr := do(t, h, http.MethodPost, "/estimates/est-store/pricing", completeFlowJSON)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	want := decodeBody[estimateResponse](t, rr).Pricing.TotalCost

	srv.engine.Reset()
	if _, ok := srv.engine.Cached("est-store"); ok {
		t.Fatalf("cache should be empty after reset")
	}

	got := do(t, h, http.MethodGet, "/estimates/est-store/pricing", "")
	if got.Code != http.StatusOK {
		t.Fatalf("expected status 200 from store, got %d", got.Code)
	}
	if total := decodeBody[estimateResponse](t, got).Pricing.TotalCost; total != want {
		t.Fatalf("total = %v, want %v", total, want)
	}
}

func TestHandlePricingGetUnknownEstimate(t *testing.T) {
	srv := newTestServer(t, time.Second)

	rr := do(t, srv.routes(), http.MethodGet, "/estimates/nope/pricing", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestHandlersRejectBadBodies(t *testing.T) {
	srv := newTestServer(t, time.Second)
	h := srv.routes()

	for _, tc := range []struct {
		name, method, target, body string
	}{
		{"create empty", http.MethodPost, "/estimates", ""},
		{"calculate malformed", http.MethodPost, "/estimates/e1/pricing", `{"areaOfWork":`},
		{"update wrong type", http.MethodPost, "/estimates/e1/updates", `{"areaOfWork":{"totalSqft":"big"}}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, h, tc.method, tc.target, tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), "decode flow data") {
				t.Fatalf("unexpected error body: %s", rr.Body.String())
			}
		})
	}
}

func TestHandlePricingUpdateIsDebounced(t *testing.T) {
	srv := newTestServer(t, 30*time.Millisecond)
	h := srv.routes()

	for i := 0; i < 3; i++ {
		rr := do(t, h, http.MethodPost, "/estimates/est-live/updates?step=areaOfWork", completeFlowJSON)
		if rr.Code != http.StatusAccepted {
			t.Fatalf("expected status 202, got %d", rr.Code)
		}
		if resp := decodeBody[updateResponse](t, rr); !resp.Pending {
			t.Fatalf("expected pending update, got %+v", resp)
		}
	}

	eventually(t, func() bool {
		_, err := srv.results.Latest(context.Background(), "est-live")
		return err == nil
	}, "debounced result persisted")

	records, err := srv.results.List(context.Background(), "est-live", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one estimate in history, got %d", len(records))
	}
}

func TestHandleEstimatesList(t *testing.T) {
	srv := newTestServer(t, time.Second)
	h := srv.routes()

	for _, id := range []string{"roof-1", "gutter-1", "roof-2"} {
		if rr := do(t, h, http.MethodPost, "/estimates/"+id+"/pricing", completeFlowJSON); rr.Code != http.StatusOK {
			t.Fatalf("calculate %s: %d", id, rr.Code)
		}
	}

	rr := do(t, h, http.MethodGet, "/estimates?q=roof", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	records := decodeBody[[]store.Record](t, rr)
	if len(records) != 2 {
		t.Fatalf("expected 2 roof estimates, got %+v", records)
	}
	for _, r := range records {
		if !strings.HasPrefix(r.EstimateID, "roof-") {
			t.Fatalf("unexpected estimate %q", r.EstimateID)
		}
	}

	if bad := do(t, h, http.MethodGet, "/estimates?limit=zero", ""); bad.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for bad limit, got %d", bad.Code)
	}
}

func TestHandlePricingEventsStreamsUpdates(t *testing.T) {
	srv := newTestServer(t, 20*time.Millisecond)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/estimates/est-sse/events", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	if !lines.Scan() || !strings.HasPrefix(lines.Text(), ": subscribed est-sse") {
		t.Fatalf("expected subscription comment, got %q", lines.Text())
	}
	if srv.engine.Subscribers("est-sse") != 1 {
		t.Fatalf("expected one subscriber")
	}

	post, err := http.Post(ts.URL+"/estimates/est-sse/updates", "application/json", strings.NewReader(completeFlowJSON))
	if err != nil {
		t.Fatalf("post update: %v", err)
	}
	post.Body.Close()

	var event pricing.Result
	for lines.Scan() {
		line := lines.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			break
		}
	}
	if err := lines.Err(); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("read stream: %v", err)
	}
	if len(event.ServiceBreakdown) != 2 || event.Confidence != pricing.ConfidenceHigh {
		t.Fatalf("unexpected event: %+v", event)
	}

	cancel()
	eventually(t, func() bool { return srv.engine.Subscribers("est-sse") == 0 }, "subscription released")
}
