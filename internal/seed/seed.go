package seed

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Simplici0/liveprice/internal/pricing"
)

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
	Updates int
}

// Options controls the seed.
type Options struct {
	// Overwrite rewrites existing rate cards with the given values. By
	// default rows edited by an operator are left alone.
	Overwrite bool
}

// Run stores cards in service_rates in an idempotent way. A nil cards
// slice seeds pricing.DefaultRateCards.
func Run(ctx context.Context, db *sql.DB, cards []pricing.RateCard, opts Options) (Stats, error) {
	if cards == nil {
		cards = pricing.DefaultRateCards()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	stats := Stats{}
	for _, rc := range cards {
		if err := ensureRateCard(ctx, tx, rc, opts.Overwrite, &stats); err != nil {
			_ = tx.Rollback()
			return Stats{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return stats, nil
}

func ensureRateCard(ctx context.Context, tx *sql.Tx, rc pricing.RateCard, overwrite bool, stats *Stats) error {
	if rc.Service == "" {
		return fmt.Errorf("seed rate card: empty service key")
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM service_rates WHERE service = ? LIMIT 1)`, rc.Service).Scan(&exists); err != nil {
		return fmt.Errorf("check rate card %s existence: %w", rc.Service, err)
	}

	if exists {
		if !overwrite {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE service_rates
			SET display_name = ?, labor_rate = ?, sqft_per_hour = ?, material_per_sqft = ?,
			    waste_percent = ?, equipment_hourly = ?, overhead_percent = ?, margin_percent = ?,
			    minimum_charge = ?, setup_hours = ?, active = 1, updated_at = CURRENT_TIMESTAMP
			WHERE service = ?
		`, rc.DisplayName, rc.LaborRate, rc.SqftPerHour, rc.MaterialPerSqft,
			rc.WastePercent, rc.EquipmentHourly, rc.OverheadPercent, rc.MarginPercent,
			rc.MinimumCharge, rc.SetupHours, rc.Service); err != nil {
			return fmt.Errorf("update rate card %s: %w", rc.Service, err)
		}
		stats.Updates++
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO service_rates (
			service,
			display_name,
			labor_rate,
			sqft_per_hour,
			material_per_sqft,
			waste_percent,
			equipment_hourly,
			overhead_percent,
			margin_percent,
			minimum_charge,
			setup_hours,
			active
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
	`, rc.Service, rc.DisplayName, rc.LaborRate, rc.SqftPerHour, rc.MaterialPerSqft,
		rc.WastePercent, rc.EquipmentHourly, rc.OverheadPercent, rc.MarginPercent,
		rc.MinimumCharge, rc.SetupHours); err != nil {
		return fmt.Errorf("insert rate card %s: %w", rc.Service, err)
	}
	stats.Inserts++
	return nil
}
