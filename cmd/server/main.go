package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Simplici0/liveprice/internal/config"
	"github.com/Simplici0/liveprice/internal/db"
	"github.com/Simplici0/liveprice/internal/engine"
	"github.com/Simplici0/liveprice/internal/migrations"
	"github.com/Simplici0/liveprice/internal/pricing"
	"github.com/Simplici0/liveprice/internal/seed"
	"github.com/Simplici0/liveprice/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg := config.Load(boot)
	log := cfg.Logger(os.Stderr)

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.IsDev() {
		if err := migrations.Up(database); err != nil {
			log.Fatal().Err(err).Msg("failed to run database migrations")
		}
		stats, err := seed.Run(ctx, database, nil, seed.Options{})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to seed rate cards")
		}
		log.Info().Int("inserts", stats.Inserts).Msg("seeded rate cards")
	}

	cards, err := store.LoadRateCards(ctx, database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load rate cards")
	}
	if len(cards) == 0 {
		log.Warn().Msg("no active rate cards; every service will be reported missing")
	}

	results := store.NewResults(database)
	srv := newServer(cfg.Engine(), cards, results, log)
	defer srv.engine.Close()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Str("addr", httpServer.Addr).Str("env", cfg.AppEnv).Msg("listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// newServer wires the pricing engine to the result store: every result the
// engine stores is also appended to the history.
func newServer(ec engine.Config, cards pricing.RateCards, results *store.Results, log zerolog.Logger) *server {
	s := &server{results: results, cards: cards, log: log}
	s.engine = engine.New(ec, cards,
		engine.WithLogger(log.With().Str("component", "engine").Logger()),
		engine.WithSink(s.persist),
	)
	return s
}
