package cache

import (
	"fmt"
)

// NewStore creates a cache store for the configured driver.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemory(cfg), nil
	case DriverRedis:
		return NewRedis(cfg)
	case DriverSQLite:
		return nil, fmt.Errorf("sqlite cache store needs the shared database handle; wire it with NewWithStore")
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", cfg.Driver)
	}
}
