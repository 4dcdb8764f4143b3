package engine

import (
	"sync"

	"github.com/Simplici0/liveprice/internal/pricing"
)

var (
	sharedMu sync.Mutex
	shared   *Engine
)

// Shared returns the process-wide engine, creating it on first use. The
// first call fixes the configuration; later calls never change it. A nil
// cfg means DefaultConfig.
func Shared(cfg *Config, calc pricing.ServiceCalculator, opts ...Option) *Engine {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if shared == nil {
		c := DefaultConfig()
		if cfg != nil {
			c = *cfg
		}
		shared = New(c, calc, opts...)
		return shared
	}

	if cfg != nil {
		if want, _ := cfg.Normalize(); want != shared.cfg {
			shared.log.Warn().Msg("shared pricing engine already initialized; ignoring new configuration")
		}
	}
	return shared
}

// ResetShared closes and forgets the process-wide engine.
func ResetShared() {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if shared != nil {
		shared.Close()
		shared = nil
	}
}
