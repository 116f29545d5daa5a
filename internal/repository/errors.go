package repository

import "errors"

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStaleTimestamp    = errors.New("telemetry timestamp not after latest event")
)
