package service

import (
	"errors"
	"fmt"

	"github.com/rongwang/library-rental/internal/ledger"
)

// Domain errors. All of them are recoverable and reported to the caller.
var (
	ErrInvalidAmount       = ledger.ErrInvalidAmount
	ErrInsufficientFunds   = ledger.ErrInsufficientFunds
	ErrBookNotFound        = errors.New("book not found")
	ErrCategoryNotFound    = errors.New("category not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAlreadyReturned     = errors.New("book already returned")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserExists          = errors.New("user with this username or email already exists")
	ErrCategoryExists      = errors.New("category already exists")
	ErrInvalidCredentials  = errors.New("invalid username or password")
)

// ValidationError reports malformed input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsDomainError reports whether err is one of the errors above
func IsDomainError(err error) bool {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return true
	}

	for _, target := range []error{
		ErrInvalidAmount, ErrInsufficientFunds, ErrBookNotFound, ErrCategoryNotFound,
		ErrTransactionNotFound, ErrAlreadyReturned, ErrUserNotFound, ErrUserExists,
		ErrCategoryExists, ErrInvalidCredentials,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
