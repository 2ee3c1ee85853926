package environment

import "errors"

var (
	// ErrMasterRepositoryMissing is returned when the master repository is
	// absent and cannot be created, typically under noop mode.
	ErrMasterRepositoryMissing = errors.New("master repository does not exist")

	// ErrNotAvailable is returned when a named environment has no
	// corresponding branch in the master repository.
	ErrNotAvailable = errors.New("environment not available")

	// ErrNotInstalled is returned when an operation needs a live copy of an
	// environment that has not been deployed.
	ErrNotInstalled = errors.New("environment not installed")

	// ErrInvalidName is returned for environment names puppet cannot serve.
	ErrInvalidName = errors.New("invalid environment name")
)
