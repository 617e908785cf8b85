package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, codecs and relays return
// these (optionally wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: record does not exist in the backing store
//   - ErrConflict: a concurrent writer won an optimistic transaction
//   - ErrExpired: signed cookie or login attempt is past its expiry
//   - ErrInvalidState: record or token is malformed for the requested operation
//   - ErrUnavailable: backend or external sink cannot be reached
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
