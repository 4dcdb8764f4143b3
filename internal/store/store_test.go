package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/Simplici0/liveprice/internal/db"
	"github.com/Simplici0/liveprice/internal/migrations"
	"github.com/Simplici0/liveprice/internal/pricing"
	"github.com/Simplici0/liveprice/internal/seed"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "store-test.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := migrations.Up(database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return database
}

// steppingClock returns a time one second later on every call.
func steppingClock() func() time.Time {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func sampleResult(total float64, conf pricing.Confidence) pricing.Result {
	return pricing.Result{
		TotalCost:  total,
		TotalHours: 4.5,
		TotalArea:  1200,
		ServiceBreakdown: []pricing.ServiceBreakdownEntry{
			{Service: "window_cleaning", DisplayName: "Window Cleaning", Cost: total, Hours: 4.5, Area: 1200, Confidence: conf},
		},
		Confidence:  conf,
		MissingData: []string{},
		Adjustments: []pricing.Adjustment{},
		LastUpdated: time.Date(2026, 3, 2, 8, 59, 0, 0, time.UTC),
	}
}

func TestLoadRateCards(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	if _, err := seed.Run(ctx, database, nil, seed.Options{}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := database.Exec(`UPDATE service_rates SET active = 0 WHERE service = 'roof_cleaning'`); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	cards, err := LoadRateCards(ctx, database)
	if err != nil {
		t.Fatalf("LoadRateCards: %v", err)
	}
	if got, want := len(cards), len(pricing.DefaultRateCards())-1; got != want {
		t.Fatalf("cards = %d, want %d", got, want)
	}
	if _, ok := cards["roof_cleaning"]; ok {
		t.Fatalf("inactive card loaded")
	}
	if got := cards.DisplayName("gutter_cleaning"); got != "Gutter Cleaning" {
		t.Fatalf("DisplayName = %q, want Gutter Cleaning", got)
	}
	if got := cards["window_cleaning"].MinimumCharge; got != 150 {
		t.Fatalf("MinimumCharge = %v, want 150", got)
	}
}

func TestResults_SaveAndLatest(t *testing.T) {
	ctx := context.Background()
	results := NewResults(openTestDB(t))
	results.now = steppingClock()

	if _, err := results.Save(ctx, "est-1", sampleResult(310, pricing.ConfidenceMedium)); err != nil {
		t.Fatalf("save first: %v", err)
	}
	want := sampleResult(409.2, pricing.ConfidenceHigh)
	saved, err := results.Save(ctx, "est-1", want)
	if err != nil {
		t.Fatalf("save second: %v", err)
	}
	if saved.ID == "" {
		t.Fatalf("expected generated record id")
	}

	got, err := results.Latest(ctx, "est-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.ID != saved.ID || got.TotalCost != 409.2 || got.Confidence != "high" {
		t.Fatalf("Latest = %+v, want second save", got)
	}
	if !reflect.DeepEqual(got.Result, want) {
		t.Fatalf("snapshot mismatch:\n got %+v\nwant %+v", got.Result, want)
	}
	if !got.CreatedAt.Equal(saved.CreatedAt) {
		t.Fatalf("CreatedAt = %s, want %s", got.CreatedAt, saved.CreatedAt)
	}
}

func TestResults_LatestNotFound(t *testing.T) {
	results := NewResults(openTestDB(t))

	_, err := results.Latest(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestResults_SaveRejectsEmptyID(t *testing.T) {
	results := NewResults(openTestDB(t))

	if _, err := results.Save(context.Background(), "  ", sampleResult(1, pricing.ConfidenceLow)); err == nil {
		t.Fatalf("expected error for empty estimate id")
	}
}

func TestResults_List(t *testing.T) {
	ctx := context.Background()
	results := NewResults(openTestDB(t))
	results.now = steppingClock()

	for _, s := range []struct {
		id    string
		total float64
	}{
		{"kitchen-a", 100},
		{"garage-b", 200},
		{"kitchen-a", 150},
		{"kitchen-c", 300},
	} {
		if _, err := results.Save(ctx, s.id, sampleResult(s.total, pricing.ConfidenceHigh)); err != nil {
			t.Fatalf("save %s: %v", s.id, err)
		}
	}

	all, err := results.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	gotIDs := make([]string, 0, len(all))
	for _, r := range all {
		gotIDs = append(gotIDs, r.EstimateID)
	}
	if want := []string{"kitchen-c", "kitchen-a", "garage-b"}; !reflect.DeepEqual(gotIDs, want) {
		t.Fatalf("ids = %v, want %v", gotIDs, want)
	}
	if all[1].TotalCost != 150 {
		t.Fatalf("kitchen-a total = %v, want latest 150", all[1].TotalCost)
	}

	filtered, err := results.List(ctx, "kitchen", 1)
	if err != nil {
		t.Fatalf("List filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].EstimateID != "kitchen-c" {
		t.Fatalf("filtered = %+v, want only kitchen-c", filtered)
	}
}
