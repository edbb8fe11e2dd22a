// Package state persists the links that were already posted.
package state

import (
	"fmt"

	"github.com/blackmichael/rss2bsky/internal/domain"
)

// Supported storage drivers.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Store is a domain.LinkStore that may hold resources.
type Store interface {
	domain.LinkStore
	Close() error
}

// Open returns the store for driver at path.
func Open(driver, path string) (Store, error) {
	switch driver {
	case DriverJSON, "":
		return NewJSONStore(path), nil
	case DriverSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown state driver %q", driver)
	}
}
