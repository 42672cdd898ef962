package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/wonny/backlab/internal/backtest"
	"github.com/wonny/backlab/internal/pricedata"
	"github.com/wonny/backlab/pkg/logger"
	"github.com/wonny/backlab/pkg/redis"
)

// BacktestHandler handles backtest API endpoints
type BacktestHandler struct {
	provider pricedata.Provider
	cache    *redis.Cache
	cacheTTL time.Duration
	logger   *logger.Logger
}

// NewBacktestHandler creates a new backtest handler
func NewBacktestHandler(
	provider pricedata.Provider,
	cache *redis.Cache,
	cacheTTL time.Duration,
	log *logger.Logger,
) *BacktestHandler {
	return &BacktestHandler{
		provider: provider,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   log,
	}
}

// BacktestRequest represents a backtest run request
type BacktestRequest struct {
	FileID string `json:"file_id"`
	backtest.Params
}

// Run executes one backtest
// POST /api/backtest/run
func (h *BacktestHandler) Run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FileID == "" {
		respondError(w, http.StatusBadRequest, "file_id is required")
		return
	}

	key, err := redis.RequestKey("backtest", req.FileID, req.Params)
	if err == nil {
		var cached backtest.Result
		if hit, _ := h.cache.Get(ctx, key, &cached); hit {
			h.logger.WithField("file_id", req.FileID).Debug("Backtest cache hit")
			respondJSON(w, http.StatusOK, &cached)
			return
		}
	}

	ser, err := h.provider.Resolve(ctx, req.FileID)
	if err != nil {
		h.logger.WithError(err).WithField("file_id", req.FileID).Warn("Backtest failed")
		respondEngineError(w, err)
		return
	}

	engine := backtest.NewEngine(h.logger, nil)
	result, err := engine.Run(ctx, ser, req.Params)
	if err != nil {
		h.logger.WithError(err).WithField("file_id", req.FileID).Warn("Backtest failed")
		respondEngineError(w, err)
		return
	}

	if key != "" {
		if err := h.cache.Set(ctx, key, result, h.cacheTTL); err != nil {
			h.logger.WithError(err).Warn("Backtest cache write failed")
		}
	}

	respondJSON(w, http.StatusOK, result)
}
