package tether

import "errors"

var (
	// ErrNotFound is returned when a binding, cache entry, or inconsistency
	// record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnknownBinding is returned when a transition targets a binding id
	// that is not present in the scope's memory index.
	ErrUnknownBinding = errors.New("unknown binding")

	// ErrConcurrencyConflict is returned when the optimistic version check
	// on a binding status write fails.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrNotInitialized is returned when a query or transition targets a
	// scope whose engine has not completed Initialize.
	ErrNotInitialized = errors.New("engine not initialized")

	// ErrDuplicateID is returned when registering a binding with an id that
	// already exists.
	ErrDuplicateID = errors.New("duplicate id")
)
