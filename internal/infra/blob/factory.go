// Package blob selects a blob storage backend from the environment.
package blob

import (
	"context"
	"fmt"
	"os"

	"fieldcore/internal/infra/blob/core"
	"fieldcore/internal/infra/blob/fs"
	"fieldcore/internal/infra/blob/memory"
	"fieldcore/internal/infra/blob/s3"
)

// Open selects a core.Store implementation using environment variables.
//
//	FIELDCORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	FIELDCORE_BLOB_FS_ROOT: directory root when driver=fs (default ./fieldcore-blobs)
//	(S3 specific variables documented in the s3 package)
func Open(ctx context.Context) (core.Store, error) {
	driver := os.Getenv("FIELDCORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(core.DriverFilesystem)
	}
	switch core.Driver(driver) {
	case core.DriverFilesystem:
		return fs.New(os.Getenv("FIELDCORE_BLOB_FS_ROOT"))
	case core.DriverS3:
		return s3.OpenFromEnv(ctx)
	case core.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}
