package service

import "errors"

// Error taxonomy surfaced by the orchestrator. PartialScoring is not an
// error: it is a degraded-confidence flag carried on scoring output.
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrNoFeasibleRoute     = errors.New("no feasible route")
	ErrInsufficientData    = errors.New("insufficient data")
	ErrNotFound            = errors.New("not found")
	ErrInvalidStatus       = errors.New("invalid status transition")
	ErrPermissionDenied    = errors.New("permission denied")
)
