package domain

import "errors"

var (
	// ErrInvalidAmount is returned when a caller passes a non-positive or
	// non-finite credit amount. This indicates a caller bug; the engine
	// treats the operation as a no-op.
	ErrInvalidAmount = errors.New("invalid time amount")
	// ErrInvalidPenalty is returned for non-positive penalty points.
	ErrInvalidPenalty = errors.New("invalid penalty points")
	// ErrDayNotFound indicates the archive has no row for the requested day.
	ErrDayNotFound = errors.New("day not found in archive")
)
