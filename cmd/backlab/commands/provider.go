package commands

import (
	"fmt"

	"github.com/wonny/backlab/internal/pricedata"
	"github.com/wonny/backlab/pkg/config"
	"github.com/wonny/backlab/pkg/database"
	"github.com/wonny/backlab/pkg/logger"
)

// newProvider builds the configured price data provider. The returned
// cleanup closes the database pool when the postgres source is used.
func newProvider(cfg *config.Config, log *logger.Logger) (pricedata.Provider, func(), error) {
	switch cfg.Data.Source {
	case "postgres":
		db, err := database.New(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		return pricedata.NewPostgresProvider(db.Pool), db.Close, nil

	default:
		return pricedata.NewCSVProvider(cfg.Data.Dir, log), func() {}, nil
	}
}
