// Package blob is the entry point for report artifact storage. Callers depend
// on Store; the infra backends are only constructed here.
package blob

import (
	"mitostat/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures an artifact write.
	PutOptions = core.PutOptions
	// Info describes stored artifact metadata.
	Info = core.Info
	// Store is the interface for artifact storage backends.
	Store = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	// ErrExists is returned when writing to a taken key.
	ErrExists = core.ErrExists
	// ErrNotFound is returned for unknown keys.
	ErrNotFound = core.ErrNotFound
)
