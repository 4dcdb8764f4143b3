package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Simplici0/liveprice/internal/pricing"
)

const (
	eventBuffer    = 8
	eventHeartbeat = 25 * time.Second
)

// handlePricingEvents streams every result published for the estimate as a
// server-sent event until the client goes away.
func (s *server) handlePricingEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	id := chi.URLParam(r, "id")

	updates := make(chan pricing.Result, eventBuffer)
	unsubscribe := s.engine.Subscribe(id, func(res pricing.Result) {
		select {
		case updates <- res:
		default:
			s.log.Warn().Str("estimate", id).Msg("dropping pricing event for slow client")
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ": subscribed %s\n\n", id)
	flusher.Flush()

	heartbeat := time.NewTicker(eventHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case res := <-updates:
			payload, err := json.Marshal(res)
			if err != nil {
				s.log.Error().Err(err).Str("estimate", id).Msg("encode pricing event")
				continue
			}
			fmt.Fprintf(w, "event: pricing\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
