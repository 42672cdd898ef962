package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wonny/backlab/internal/backtest"
	"github.com/wonny/backlab/internal/optimizer"
	"github.com/wonny/backlab/internal/pricedata"
	"github.com/wonny/backlab/internal/series"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondEngineError maps engine error taxonomy to HTTP status codes.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pricedata.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, backtest.ErrInvalidParameter),
		errors.Is(err, backtest.ErrInsufficientHistory),
		errors.Is(err, series.ErrInvalidRange),
		errors.Is(err, series.ErrEmpty):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, optimizer.ErrTimeout):
		respondError(w, http.StatusGatewayTimeout, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
