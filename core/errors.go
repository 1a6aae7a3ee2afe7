package core

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrNonceInvalid     = errors.New("nonce invalid or already used")
	ErrDomainMismatch   = errors.New("domain mismatch")
	ErrChainMismatch    = errors.New("chain id mismatch")
	ErrMalformedMessage = errors.New("malformed sign-in message")
	ErrConflict         = errors.New("model with this hash already exists")
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrUpstreamStorage  = errors.New("storage upstream failed")
	ErrPersistence      = errors.New("persistence failed")
)

// ConflictError is returned when a model hash is already registered
type ConflictError struct {
	ExistingID string
	Hash       string
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: hash %s is registered as %s", ErrConflict, e.Hash, e.ExistingID)
}

// Is lets errors.Is(err, ErrConflict) match a ConflictError
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Validationf builds an ErrValidation naming the violated precondition
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
