package model

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrConfigNotFound is returned when a tenant has no policy entry
	ErrConfigNotFound = goerr.New("tenant config not found")

	// ErrStorageWrite indicates a persistence write failure
	ErrStorageWrite = goerr.New("storage write failed")

	// ErrStorageRead indicates a persistence read failure
	ErrStorageRead = goerr.New("storage read failed")

	// ErrSchedulingConflict is returned when a meeting slot is already taken
	ErrSchedulingConflict = goerr.New("scheduling conflict")

	// ErrCollaboratorFailure indicates the conversational agent call failed or timed out
	ErrCollaboratorFailure = goerr.New("collaborator failure")

	// ErrSessionNotFound is returned for operations on an unregistered session key
	ErrSessionNotFound = goerr.New("session not found")

	ErrInvalidStatus = goerr.New("invalid qualification status")
	ErrInvalidSlot   = goerr.New("invalid meeting slot")
)
