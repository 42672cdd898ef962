package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/backlab/internal/backtest"
	"github.com/wonny/backlab/internal/optimizer"
	"github.com/wonny/backlab/internal/pricedata"
	"github.com/wonny/backlab/internal/series"
	"github.com/wonny/backlab/pkg/config"
	"github.com/wonny/backlab/pkg/logger"
	"github.com/wonny/backlab/pkg/redis"
)

// stubProvider serves one in-memory series for a fixed file id.
type stubProvider struct {
	fileID string
	series *series.Series
}

func (s *stubProvider) Resolve(_ context.Context, fileID string) (*series.Series, error) {
	if fileID != s.fileID {
		return nil, fmt.Errorf("%w: %q", pricedata.ErrNotFound, fileID)
	}
	return s.series, nil
}

func newStubProvider(t *testing.T, closes ...float64) *stubProvider {
	t.Helper()

	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]series.Point, len(closes))
	for i, c := range closes {
		points[i] = series.Point{Date: first.AddDate(0, 0, i), Close: c}
	}

	ser, err := series.New(points)
	require.NoError(t, err)
	return &stubProvider{fileID: "test.csv", series: ser}
}

// noopCache builds a disabled redis cache so handler tests run without
// a redis server.
func noopCache(t *testing.T) *redis.Cache {
	t.Helper()

	client, err := redis.New(&config.Config{})
	require.NoError(t, err)
	return redis.NewCache(client, "test")
}

func postJSON(t *testing.T, handler http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestBacktestHandler_Run(t *testing.T) {
	provider := newStubProvider(t, 100, 110, 121)
	h := NewBacktestHandler(provider, noopCache(t), time.Minute, logger.NewNop())

	rec := postJSON(t, h.Run, map[string]interface{}{
		"file_id":       "test.csv",
		"initial_cash":  1000,
		"leverage":      1,
		"strategy_mode": "buy_and_hold",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var res backtest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 21.0, res.TotalReturn)
	assert.Len(t, res.EquityCurve, 3)
}

func TestBacktestHandler_Errors(t *testing.T) {
	provider := newStubProvider(t, 100, 110, 121)
	h := NewBacktestHandler(provider, noopCache(t), time.Minute, logger.NewNop())

	tests := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{
			name: "missing file id",
			body: map[string]interface{}{"initial_cash": 1000, "strategy_mode": "buy_and_hold"},
			want: http.StatusBadRequest,
		},
		{
			name: "unknown file",
			body: map[string]interface{}{"file_id": "other.csv", "initial_cash": 1000, "strategy_mode": "buy_and_hold"},
			want: http.StatusNotFound,
		},
		{
			name: "invalid params",
			body: map[string]interface{}{"file_id": "test.csv", "initial_cash": -5, "strategy_mode": "buy_and_hold"},
			want: http.StatusBadRequest,
		},
		{
			name: "insufficient history",
			body: map[string]interface{}{
				"file_id": "test.csv", "initial_cash": 1000,
				"strategy_mode": "dual_ma", "ma_fast": 20, "ma_slow": 60,
			},
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h.Run, tt.body)
			assert.Equal(t, tt.want, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func newOptimizeHandler(t *testing.T, provider pricedata.Provider) *OptimizeHandler {
	t.Helper()

	opt := optimizer.New(2, logger.NewNop())
	return NewOptimizeHandler(provider, opt, noopCache(t), time.Minute, time.Minute, logger.NewNop())
}

func TestOptimizeHandler_Run(t *testing.T) {
	provider := newStubProvider(t, 100, 105, 95, 110, 120, 90, 130, 125, 140, 135)
	h := newOptimizeHandler(t, provider)

	rec := postJSON(t, h.Run, map[string]interface{}{
		"file_id":        "test.csv",
		"strategy_modes": []string{"single_ma"},
		"ma_fast_range":  []int{2, 3},
		"initial_cash":   1000,
		"sort_by":        "total_return",
		"top_n":          5,
	})

	require.Equal(t, http.StatusOK, rec.Code)

	// The body is the ranked results themselves, not an envelope.
	var res []optimizer.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEmpty(t, res)
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].TotalReturn, res[i].TotalReturn)
	}
}

func TestOptimizeHandler_RunBadGrid(t *testing.T) {
	provider := newStubProvider(t, 100, 110)
	h := newOptimizeHandler(t, provider)

	rec := postJSON(t, h.Run, map[string]interface{}{
		"file_id": "test.csv",
		"sort_by": "vibes",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOptimizeHandler_Chart(t *testing.T) {
	provider := newStubProvider(t, 100, 110, 121)
	h := newOptimizeHandler(t, provider)

	rec := postJSON(t, h.Chart, map[string]interface{}{
		"file_id": "test.csv",
		"ma_fast": 2,
		"ma_slow": 3,
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var res ChartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Data, 3)

	assert.Equal(t, "2024-01-01", res.Data[0].Date)
	assert.Equal(t, 100.0, res.Data[0].Price)
	assert.Nil(t, res.Data[0].MAFast, "warm-up values are null")
	require.NotNil(t, res.Data[1].MAFast)
	assert.Equal(t, 105.0, *res.Data[1].MAFast)
	require.NotNil(t, res.Data[2].MASlow)
	assert.InDelta(t, 110.33, *res.Data[2].MASlow, 0.01)
}

func TestOptimizeHandler_ChartLimit(t *testing.T) {
	provider := newStubProvider(t, 100, 110, 121, 133, 146)
	h := newOptimizeHandler(t, provider)

	rec := postJSON(t, h.Chart, map[string]interface{}{
		"file_id": "test.csv",
		"ma_fast": 2,
		"limit":   2,
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var res ChartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Data, 2)

	// The tail is kept and averages reflect the full history.
	assert.Equal(t, "2024-01-04", res.Data[0].Date)
	require.NotNil(t, res.Data[0].MAFast)
	assert.Equal(t, 127.0, *res.Data[0].MAFast)
}

func TestOptimizeHandler_ChartValidation(t *testing.T) {
	provider := newStubProvider(t, 100, 110, 121)
	h := newOptimizeHandler(t, provider)

	rec := postJSON(t, h.Chart, map[string]interface{}{"file_id": "test.csv"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "ma_fast is required")

	rec = postJSON(t, h.Chart, map[string]interface{}{"file_id": "other.csv", "ma_fast": 2})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = postJSON(t, h.Chart, map[string]interface{}{
		"file_id": "test.csv", "ma_fast": 2, "start_date": "01/02/2024",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "start_date", "parse failures name the bad field")
}
