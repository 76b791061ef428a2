package service

import (
	"errors"

	"github.com/shinyyama/farm-market-backend/internal/repository"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrPaymentProvider   = errors.New("payment provider error")
)

// storeErr maps repository errors onto service errors; anything else passes through.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case repository.IsNotFound(err):
		return ErrNotFound
	case repository.IsDuplicate(err), errors.Is(err, repository.ErrStaleWrite):
		return ErrConflict
	}
	return err
}
