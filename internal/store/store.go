// Package store persists rate cards and published pricing results in sqlite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Simplici0/liveprice/internal/pricing"
)

// ErrNotFound is returned when no result exists for an estimate.
var ErrNotFound = errors.New("result not found")

const (
	defaultListLimit = 50
	// Fixed width so text ordering matches time ordering.
	timeLayout       = "2006-01-02T15:04:05.000000000Z07:00"
)

// LoadRateCards reads the active service rate cards.
func LoadRateCards(ctx context.Context, db *sql.DB) (pricing.RateCards, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT service, display_name, labor_rate, sqft_per_hour, material_per_sqft,
		       waste_percent, equipment_hourly, overhead_percent, margin_percent,
		       minimum_charge, setup_hours
		FROM service_rates
		WHERE active = 1
		ORDER BY service
	`)
	if err != nil {
		return nil, fmt.Errorf("query service rates: %w", err)
	}
	defer rows.Close()

	cards := make([]pricing.RateCard, 0)
	for rows.Next() {
		var rc pricing.RateCard
		if err := rows.Scan(
			&rc.Service, &rc.DisplayName, &rc.LaborRate, &rc.SqftPerHour, &rc.MaterialPerSqft,
			&rc.WastePercent, &rc.EquipmentHourly, &rc.OverheadPercent, &rc.MarginPercent,
			&rc.MinimumCharge, &rc.SetupHours,
		); err != nil {
			return nil, fmt.Errorf("scan service rate: %w", err)
		}
		cards = append(cards, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate service rates: %w", err)
	}

	return pricing.NewRateCards(cards), nil
}

// Record is one stored result.
type Record struct {
	ID         string         `json:"id"`
	EstimateID string         `json:"estimateId"`
	TotalCost  float64        `json:"totalCost"`
	Confidence string         `json:"confidence"`
	CreatedAt  time.Time      `json:"createdAt"`
	Result     pricing.Result `json:"result"`
}

// Results keeps a history of published results per estimate.
type Results struct {
	db  *sql.DB
	now func() time.Time
}

// NewResults returns a result store backed by db.
func NewResults(db *sql.DB) *Results {
	return &Results{db: db, now: time.Now}
}

// Save appends r to the history of estimateID.
func (s *Results) Save(ctx context.Context, estimateID string, r pricing.Result) (Record, error) {
	if strings.TrimSpace(estimateID) == "" {
		return Record{}, fmt.Errorf("save result: empty estimate id")
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return Record{}, fmt.Errorf("encode result: %w", err)
	}

	rec := Record{
		ID:         uuid.NewString(),
		EstimateID: estimateID,
		TotalCost:  r.TotalCost,
		Confidence: string(r.Confidence),
		CreatedAt:  s.now().UTC(),
		Result:     r,
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO estimate_results (id, estimate_id, total_cost, confidence, result_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.EstimateID, rec.TotalCost, rec.Confidence, string(payload), rec.CreatedAt.Format(timeLayout)); err != nil {
		return Record{}, fmt.Errorf("insert estimate result: %w", err)
	}

	return rec, nil
}

// Latest returns the newest result stored for estimateID.
func (s *Results) Latest(ctx context.Context, estimateID string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, estimate_id, total_cost, confidence, created_at, result_json
		FROM estimate_results
		WHERE estimate_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, estimateID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("latest result for %q: %w", estimateID, ErrNotFound)
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List returns the newest result of every estimate whose id contains query,
// newest first. An empty query matches everything.
func (s *Results) List(ctx context.Context, query string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query = strings.TrimSpace(query)
	search := "%" + query + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.estimate_id, r.total_cost, r.confidence, r.created_at, r.result_json
		FROM estimate_results r
		WHERE (? = '' OR r.estimate_id LIKE ?)
		  AND r.rowid = (
			SELECT l.rowid FROM estimate_results l
			WHERE l.estimate_id = r.estimate_id
			ORDER BY l.created_at DESC, l.rowid DESC
			LIMIT 1
		  )
		ORDER BY r.created_at DESC, r.rowid DESC
		LIMIT ?
	`, query, search, limit)
	if err != nil {
		return nil, fmt.Errorf("query estimate results: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate estimate results: %w", err)
	}

	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		rec       Record
		createdAt string
		payload   string
	)
	if err := sc.Scan(&rec.ID, &rec.EstimateID, &rec.TotalCost, &rec.Confidence, &createdAt, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scan estimate result: %w", err)
	}

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Record{}, fmt.Errorf("parse result timestamp %q: %w", createdAt, err)
	}
	rec.CreatedAt = t

	if err := json.Unmarshal([]byte(payload), &rec.Result); err != nil {
		return Record{}, fmt.Errorf("decode result snapshot: %w", err)
	}
	return rec, nil
}
