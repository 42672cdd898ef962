package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/wonny/backlab/internal/backtest"
	"github.com/wonny/backlab/internal/optimizer"
	"github.com/wonny/backlab/internal/pricedata"
	"github.com/wonny/backlab/internal/series"
	"github.com/wonny/backlab/internal/signal"
	"github.com/wonny/backlab/pkg/logger"
	"github.com/wonny/backlab/pkg/redis"
)

// OptimizeHandler handles parameter optimization API endpoints
type OptimizeHandler struct {
	provider  pricedata.Provider
	optimizer *optimizer.Optimizer
	cache     *redis.Cache
	cacheTTL  time.Duration
	timeout   time.Duration
	logger    *logger.Logger
}

// NewOptimizeHandler creates a new optimize handler
func NewOptimizeHandler(
	provider pricedata.Provider,
	opt *optimizer.Optimizer,
	cache *redis.Cache,
	cacheTTL time.Duration,
	timeout time.Duration,
	log *logger.Logger,
) *OptimizeHandler {
	return &OptimizeHandler{
		provider:  provider,
		optimizer: opt,
		cache:     cache,
		cacheTTL:  cacheTTL,
		timeout:   timeout,
		logger:    log,
	}
}

// OptimizeRequest represents an optimization batch request
type OptimizeRequest struct {
	FileID string `json:"file_id"`
	optimizer.Space
}

// Run executes one optimization batch. The body is the ranked result
// array itself, best combination first.
// POST /api/optimize/run
func (h *OptimizeHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FileID == "" {
		respondError(w, http.StatusBadRequest, "file_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	key, err := redis.RequestKey("optimize", req.FileID, req.Space)
	if err == nil {
		var cached []optimizer.Result
		if hit, _ := h.cache.Get(ctx, key, &cached); hit {
			h.logger.WithField("file_id", req.FileID).Debug("Optimize cache hit")
			respondJSON(w, http.StatusOK, cached)
			return
		}
	}

	ser, err := h.provider.Resolve(ctx, req.FileID)
	if err != nil {
		h.logger.WithError(err).WithField("file_id", req.FileID).Warn("Optimization failed")
		respondEngineError(w, err)
		return
	}

	results, err := h.optimizer.Run(ctx, ser, req.Space)
	if err != nil {
		h.logger.WithError(err).WithField("file_id", req.FileID).Warn("Optimization failed")
		respondEngineError(w, err)
		return
	}

	if key != "" {
		if err := h.cache.Set(ctx, key, results, h.cacheTTL); err != nil {
			h.logger.WithError(err).Warn("Optimize cache write failed")
		}
	}

	respondJSON(w, http.StatusOK, results)
}

// ChartRequest represents a chart overlay request
type ChartRequest struct {
	FileID    string `json:"file_id"`
	MAFast    int    `json:"ma_fast"`
	MASlow    int    `json:"ma_slow"`
	Limit     int    `json:"limit"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// ChartPoint is one row of the price chart with moving-average overlays.
// Averages are null until their window is warm.
type ChartPoint struct {
	Date   string   `json:"date"`
	Price  float64  `json:"price"`
	MAFast *float64 `json:"ma_fast"`
	MASlow *float64 `json:"ma_slow,omitempty"`
}

// ChartResponse represents a chart overlay response
type ChartResponse struct {
	Data   []ChartPoint `json:"data"`
	MAFast int          `json:"ma_fast"`
	MASlow int          `json:"ma_slow,omitempty"`
}

// Chart returns the price series with moving-average overlays for one
// parameter set, so a ranked result can be inspected visually
// POST /api/optimize/chart
func (h *OptimizeHandler) Chart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ChartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FileID == "" {
		respondError(w, http.StatusBadRequest, "file_id is required")
		return
	}
	if req.MAFast < 1 {
		respondError(w, http.StatusBadRequest, "ma_fast must be at least 1")
		return
	}

	ser, err := h.provider.Resolve(ctx, req.FileID)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	ser, err = filterWindow(ser, req.StartDate, req.EndDate)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	closes := ser.Closes()
	fast := signal.SMA(closes, req.MAFast)
	var slow []float64
	if req.MASlow > 0 {
		slow = signal.SMA(closes, req.MASlow)
	}

	points := make([]ChartPoint, ser.Len())
	for i, p := range ser.Points() {
		points[i] = ChartPoint{
			Date:   p.Date.Format("2006-01-02"),
			Price:  p.Close,
			MAFast: chartValue(fast[i]),
		}
		if slow != nil {
			points[i].MASlow = chartValue(slow[i])
		}
	}

	// Averages are computed over the full window first so a limited
	// chart still shows correct values at its left edge.
	if req.Limit > 0 && len(points) > req.Limit {
		points = points[len(points)-req.Limit:]
	}

	respondJSON(w, http.StatusOK, ChartResponse{
		Data:   points,
		MAFast: req.MAFast,
		MASlow: req.MASlow,
	})
}

func filterWindow(ser *series.Series, startDate, endDate string) (*series.Series, error) {
	var start, end time.Time
	var err error

	if startDate != "" {
		start, err = time.Parse("2006-01-02", startDate)
		if err != nil {
			return nil, fmt.Errorf("%w: bad start_date %q", backtest.ErrInvalidParameter, startDate)
		}
	}
	if endDate != "" {
		end, err = time.Parse("2006-01-02", endDate)
		if err != nil {
			return nil, fmt.Errorf("%w: bad end_date %q", backtest.ErrInvalidParameter, endDate)
		}
	}

	return ser.Filter(start, end)
}

// chartValue converts a warm-up NaN to a JSON null.
func chartValue(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
