package pricedata

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/backlab/internal/series"
)

// PostgresProvider resolves file ids against a price_points table.
type PostgresProvider struct {
	db *pgxpool.Pool
}

// NewPostgresProvider creates a provider over the given pool.
func NewPostgresProvider(db *pgxpool.Pool) *PostgresProvider {
	return &PostgresProvider{db: db}
}

// Resolve loads the ordered series for a file id.
func (p *PostgresProvider) Resolve(ctx context.Context, fileID string) (*series.Series, error) {
	query := `
		SELECT trade_date, close
		FROM price_points
		WHERE file_id = $1
		ORDER BY trade_date
	`

	rows, err := p.db.Query(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("query price points: %w", err)
	}
	defer rows.Close()

	var points []series.Point
	for rows.Next() {
		var date time.Time
		var close float64
		if err := rows.Scan(&date, &close); err != nil {
			return nil, fmt.Errorf("scan price point: %w", err)
		}
		points = append(points, series.Point{Date: date, Close: close})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read price points: %w", err)
	}

	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, fileID)
	}

	return series.New(points)
}
