package pricedata

import (
	"context"
	"errors"

	"github.com/wonny/backlab/internal/series"
)

// ErrNotFound is returned when a file id does not resolve to a series.
var ErrNotFound = errors.New("price series not found")

// Provider resolves an opaque file id to an ordered price series. The
// engine never interprets the id; ingestion and editing of the
// underlying data live outside this module.
type Provider interface {
	Resolve(ctx context.Context, fileID string) (*series.Series, error)
}
