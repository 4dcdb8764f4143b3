package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Simplici0/liveprice/internal/engine"
	"github.com/Simplici0/liveprice/internal/flow"
	"github.com/Simplici0/liveprice/internal/pricing"
	"github.com/Simplici0/liveprice/internal/store"
)

const maxBodyBytes = 1 << 20

type server struct {
	engine  *engine.Engine
	results *store.Results
	cards   pricing.RateCards
	log     zerolog.Logger
}

type serviceItem struct {
	Service       string  `json:"service"`
	DisplayName   string  `json:"displayName"`
	MinimumCharge float64 `json:"minimumCharge"`
}

type estimateResponse struct {
	EstimateID string         `json:"estimateId"`
	Pricing    pricing.Result `json:"pricing"`
}

type updateResponse struct {
	EstimateID string `json:"estimateId"`
	Pending    bool   `json:"pending"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/services", s.handleServices)
	r.Route("/estimates", func(r chi.Router) {
		r.Get("/", s.handleEstimatesList)
		r.Post("/", s.handleEstimateCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/pricing", s.handlePricingGet)
			r.Post("/pricing", s.handlePricingCalculate)
			r.Post("/updates", s.handlePricingUpdate)
			r.Get("/events", s.handlePricingEvents)
		})
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleServices(w http.ResponseWriter, r *http.Request) {
	cards := s.cards.Cards()
	items := make([]serviceItem, 0, len(cards))
	for _, rc := range cards {
		items = append(items, serviceItem{
			Service:       rc.Service,
			DisplayName:   s.cards.DisplayName(rc.Service),
			MinimumCharge: rc.MinimumCharge,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *server) handleEstimateCreate(w http.ResponseWriter, r *http.Request) {
	data, err := decodeFlow(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := uuid.NewString()
	data.EstimateID = id
	result := s.engine.CalculateRealTimePricing(data, id)

	w.Header().Set("Location", "/estimates/"+id+"/pricing")
	writeJSON(w, http.StatusCreated, estimateResponse{EstimateID: id, Pricing: result})
}

func (s *server) handlePricingCalculate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, err := decodeFlow(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := s.engine.CalculateRealTimePricing(data, id)
	writeJSON(w, http.StatusOK, estimateResponse{EstimateID: id, Pricing: result})
}

func (s *server) handlePricingUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, err := decodeFlow(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	step := flow.StepID(strings.TrimSpace(r.URL.Query().Get("step")))
	s.engine.UpdatePricing(data, id, step)

	writeJSON(w, http.StatusAccepted, updateResponse{EstimateID: id, Pending: s.engine.Pending(id)})
}

func (s *server) handlePricingGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if result, ok := s.engine.Cached(id); ok {
		writeJSON(w, http.StatusOK, estimateResponse{EstimateID: id, Pricing: result})
		return
	}

	rec, err := s.results.Latest(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no pricing for estimate")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("estimate", id).Msg("load latest result")
		writeError(w, http.StatusInternalServerError, "failed to load pricing")
		return
	}
	writeJSON(w, http.StatusOK, estimateResponse{EstimateID: id, Pricing: rec.Result})
}

func (s *server) handleEstimatesList(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.results.List(r.Context(), query, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("list results")
		writeError(w, http.StatusInternalServerError, "failed to load estimates")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// persist is the engine sink. It runs on the publishing goroutine.
func (s *server) persist(estimateID string, r pricing.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.results.Save(ctx, estimateID, r); err != nil {
		s.log.Error().Err(err).Str("estimate", estimateID).Msg("persist pricing result")
	}
}

func (s *server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func decodeFlow(w http.ResponseWriter, r *http.Request) (flow.Data, error) {
	var data flow.Data
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&data); err != nil {
		if errors.Is(err, io.EOF) {
			return flow.Data{}, fmt.Errorf("decode flow data: empty body")
		}
		return flow.Data{}, fmt.Errorf("decode flow data: %w", err)
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
