package services

import "errors"

// Service-level errors the HTTP layer maps onto status codes.
var (
	// Data access errors
	ErrNoRunAvailable = errors.New("no completed run available")
	ErrNoDataInRange  = errors.New("no rows in requested range")

	// File errors
	ErrFileNotFound    = errors.New("file not found")
	ErrInvalidFileType = errors.New("invalid file type")

	// Refresh errors
	ErrRefreshRunning = errors.New("refresh already running")

	// General errors
	ErrInvalidInput = errors.New("invalid input")
)
