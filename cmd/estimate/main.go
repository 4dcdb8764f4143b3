// Command estimate prices wizard snapshots and manages the rate card database.
//
// Usage:
//
//	estimate calc --file flow.json
//	estimate migrate
//	estimate seed [--overwrite]
//	estimate services
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/Simplici0/liveprice/internal/db"
	"github.com/Simplici0/liveprice/internal/engine"
	"github.com/Simplici0/liveprice/internal/flow"
	"github.com/Simplici0/liveprice/internal/migrations"
	"github.com/Simplici0/liveprice/internal/pricing"
	"github.com/Simplici0/liveprice/internal/seed"
	"github.com/Simplici0/liveprice/internal/store"
)

var version = "dev"

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "estimate",
		Usage:     "Price estimation wizard snapshots from the command line",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Value:   "./dev.db",
				Usage:   "Path to the sqlite database",
				EnvVars: []string{"DB_PATH"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			lvl, err := zerolog.ParseLevel(c.String("log-level"))
			if err != nil {
				return fmt.Errorf("parse log level: %w", err)
			}
			logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr}).Level(lvl).With().Timestamp().Logger()
			c.Context = logger.WithContext(c.Context)
			return nil
		},
		Commands: []*cli.Command{
			calcCommand(),
			migrateCommand(),
			seedCommand(),
			servicesCommand(),
		},
	}
}

func calcCommand() *cli.Command {
	return &cli.Command{
		Name:  "calc",
		Usage: "Price a flow data JSON file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the flow data JSON (- for stdin)",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "defaults",
				Usage: "Use the built-in rate cards instead of the database",
			},
			&cli.StringFlag{
				Name:  "format",
				Value: "table",
				Usage: "Output format (table, json)",
			},
			&cli.IntFlag{
				Name:  "high-rise",
				Value: pricing.DefaultHeightRiskPolicy().ThresholdStories,
				Usage: "Stories at which the height risk premium starts",
			},
		},
		Action: func(c *cli.Context) error {
			log := zerolog.Ctx(c.Context)

			data, err := readFlow(c.String("file"), c.App.Reader)
			if err != nil {
				return err
			}

			cards := pricing.NewRateCards(pricing.DefaultRateCards())
			if !c.Bool("defaults") {
				cards, err = withDB(c, func(ctx context.Context, database *sql.DB) (pricing.RateCards, error) {
					return store.LoadRateCards(ctx, database)
				})
				if err != nil {
					return err
				}
			}

			cfg := engine.DefaultConfig()
			cfg.EnableLiveUpdates = false
			cfg.HeightRisk.ThresholdStories = c.Int("high-rise")
			e := engine.New(cfg, cards, engine.WithLogger(*log))
			defer e.Close()

			result := e.CalculateRealTimePricing(data, data.EstimateID)
			switch c.String("format") {
			case "json":
				enc := json.NewEncoder(c.App.Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			case "table":
				return printResult(c.App.Writer, result)
			default:
				return fmt.Errorf("unknown format %q", c.String("format"))
			}
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations",
		Action: func(c *cli.Context) error {
			v, err := withDB(c, func(_ context.Context, database *sql.DB) (int64, error) {
				if err := migrations.Up(database); err != nil {
					return 0, err
				}
				return migrations.Version(database)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "schema version %d\n", v)
			return nil
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Store the default rate cards",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "overwrite",
				Usage: "Reset existing rate cards to the defaults",
			},
		},
		Action: func(c *cli.Context) error {
			stats, err := withDB(c, func(ctx context.Context, database *sql.DB) (seed.Stats, error) {
				if err := migrations.Up(database); err != nil {
					return seed.Stats{}, err
				}
				return seed.Run(ctx, database, nil, seed.Options{Overwrite: c.Bool("overwrite")})
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "inserted %d, updated %d\n", stats.Inserts, stats.Updates)
			return nil
		},
	}
}

func servicesCommand() *cli.Command {
	return &cli.Command{
		Name:  "services",
		Usage: "List the active rate cards",
		Action: func(c *cli.Context) error {
			cards, err := withDB(c, func(ctx context.Context, database *sql.DB) (pricing.RateCards, error) {
				return store.LoadRateCards(ctx, database)
			})
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SERVICE\tNAME\tLABOR/H\tSQFT/H\tMINIMUM")
			for _, rc := range cards.Cards() {
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.0f\t%.2f\n", rc.Service, rc.DisplayName, rc.LaborRate, rc.SqftPerHour, rc.MinimumCharge)
			}
			return tw.Flush()
		},
	}
}

// withDB opens the --db database for the duration of fn.
func withDB[T any](c *cli.Context, fn func(context.Context, *sql.DB) (T, error)) (T, error) {
	var zero T

	database, err := db.Open(c.String("db"))
	if err != nil {
		return zero, err
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()

	return fn(ctx, database)
}

func readFlow(path string, stdin io.Reader) (flow.Data, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return flow.Data{}, fmt.Errorf("open flow file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var data flow.Data
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return flow.Data{}, fmt.Errorf("decode flow file: %w", err)
	}
	return data, nil
}

func printResult(w io.Writer, r pricing.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "SERVICE\tHOURS\tAREA\tCOST\tCONFIDENCE")
	for _, s := range r.ServiceBreakdown {
		fmt.Fprintf(tw, "%s\t%.2f\t%.0f\t%.2f\t%s\n", s.DisplayName, s.Hours, s.Area, s.Cost, s.Confidence)
	}
	for _, a := range r.Adjustments {
		fmt.Fprintf(tw, "  %s: %s\t\t\t%.2f\t\n", a.Type, a.Reason, a.Value)
	}
	fmt.Fprintf(tw, "TOTAL\t%.2f\t%.0f\t%.2f\t%s\n", r.TotalHours, r.TotalArea, r.TotalCost, r.Confidence)
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, m := range r.MissingData {
		fmt.Fprintf(w, "missing: %s\n", m)
	}
	return nil
}
