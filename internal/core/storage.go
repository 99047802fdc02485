package core

import (
	"fmt"
	"os"

	"fieldcore/internal/infra/persistence/memory"
	"fieldcore/internal/infra/persistence/sqlite"
	"fieldcore/pkg/domain"
)

// StorageDriver identifies a concrete store implementation.
type StorageDriver string

const (
	StorageMemory StorageDriver = "memory" // ephemeral, tests
	StorageSQLite StorageDriver = "sqlite" // embedded sqlite file (default)
)

// OpenSpecimenStore selects a backend using environment variables. Defaults
// to sqlite when unset.
//
//	FIELDCORE_STORAGE_DRIVER: memory|sqlite (default sqlite)
//	FIELDCORE_SQLITE_PATH: path to sqlite file (default ./fieldcore.db)
func OpenSpecimenStore() (domain.SpecimenStore, error) {
	driver := os.Getenv("FIELDCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(os.Getenv("FIELDCORE_SQLITE_PATH"))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
