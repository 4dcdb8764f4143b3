package config

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Simplici0/liveprice/internal/engine"
)

const (
	defaultAppEnv   = "dev"
	defaultDBPath   = "./dev.db"
	defaultPort     = "8080"
	defaultLogLevel = "info"
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	AppEnv             string
	DBPath             string
	Port               string
	LogLevel           zerolog.Level
	LiveUpdates        bool
	Debounce           time.Duration
	SkipUnrelatedSteps bool
	HighRiseStories    int
	MinPopulatedSteps  int
}

// Load reads the environment, after a best-effort .env load, and returns a
// populated Config. Invalid values are reported on log and replaced by
// their defaults.
func Load(log zerolog.Logger) Config {
	if err := loadDotEnv(".env"); err != nil {
		log.Warn().Err(err).Msg("ignoring .env")
	}
	return fromEnv(os.Getenv, log)
}

func fromEnv(getenv func(string) string, log zerolog.Logger) Config {
	e := envReader{getenv: getenv, log: log}
	engineDefaults := engine.DefaultConfig()

	cfg := Config{
		AppEnv:             e.str("APP_ENV", defaultAppEnv),
		DBPath:             e.str("DB_PATH", defaultDBPath),
		Port:               e.str("PORT", defaultPort),
		LogLevel:           e.level("LOG_LEVEL", defaultLogLevel),
		LiveUpdates:        e.boolean("LIVE_UPDATES", engineDefaults.EnableLiveUpdates),
		Debounce:           time.Duration(e.positiveInt("DEBOUNCE_MS", int(engineDefaults.Debounce/time.Millisecond))) * time.Millisecond,
		SkipUnrelatedSteps: e.boolean("SKIP_UNRELATED_STEPS", engineDefaults.SkipUnrelatedSteps),
		HighRiseStories:    e.positiveInt("HIGH_RISE_STORIES", engineDefaults.HeightRisk.ThresholdStories),
		MinPopulatedSteps:  e.positiveInt("MIN_POPULATED_STEPS", engineDefaults.Confidence.MinPopulatedSteps),
	}

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		log.Warn().Str("PORT", cfg.Port).Msg("PORT is not numeric, using default")
		cfg.Port = defaultPort
	}
	return cfg
}

// IsDev reports whether the app runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "", "dev", "development", "local":
		return true
	}
	return false
}

// Engine returns the pricing engine configuration.
func (c Config) Engine() engine.Config {
	ec := engine.DefaultConfig()
	ec.EnableLiveUpdates = c.LiveUpdates
	ec.Debounce = c.Debounce
	ec.SkipUnrelatedSteps = c.SkipUnrelatedSteps
	if c.HighRiseStories > 0 {
		ec.HeightRisk.ThresholdStories = c.HighRiseStories
	}
	if c.MinPopulatedSteps > 0 {
		ec.Confidence.MinPopulatedSteps = c.MinPopulatedSteps
	}
	return ec
}

// Logger builds the process logger: human readable in development, JSON
// lines otherwise.
func (c Config) Logger(w io.Writer) zerolog.Logger {
	if c.IsDev() {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(c.LogLevel).With().Timestamp().Logger()
}

type envReader struct {
	getenv func(string) string
	log    zerolog.Logger
}

func (e envReader) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e envReader) boolean(key string, def bool) bool {
	raw := strings.TrimSpace(e.getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		e.log.Warn().Str(key, raw).Bool("default", def).Msg("invalid boolean, using default")
		return def
	}
	return v
}

func (e envReader) positiveInt(key string, def int) int {
	raw := strings.TrimSpace(e.getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		e.log.Warn().Str(key, raw).Int("default", def).Msg("expected a positive integer, using default")
		return def
	}
	return v
}

func (e envReader) level(key, def string) zerolog.Level {
	raw := e.str(key, def)
	lvl, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil || lvl == zerolog.NoLevel {
		e.log.Warn().Str(key, raw).Msg("unknown log level, using info")
		return zerolog.InfoLevel
	}
	return lvl
}
