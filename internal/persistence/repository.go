package persistence

import "dipsim/internal/models"

// StateRepository persists the progress of the latest run.
type StateRepository interface {
	// SaveState atomically saves the entire run state.
	SaveState(state *models.RunState) error

	// LoadState loads the run state from storage.
	// If no state is found, it should return (nil, nil).
	LoadState() (*models.RunState, error)
}

// BarRepository caches downloaded daily bars per source and symbol.
type BarRepository interface {
	SaveBars(series *models.CachedSeries) error

	// LoadBars returns (nil, nil) when nothing is cached for the pair.
	LoadBars(source, symbol string) (*models.CachedSeries, error)
}

// Repository is the local key-value store behind the ETL.
type Repository interface {
	StateRepository
	BarRepository

	// Close gracefully closes the connection to the database.
	Close() error
}
