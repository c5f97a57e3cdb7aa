// Package ledger owns every change to an account balance.
//
// Debit and Credit run inside a repository unit of work: the account row is
// locked first, so two operations on the same account never both act on the
// same balance, and the new balance is written before the call returns.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rongwang/library-rental/internal/models"
	"github.com/rongwang/library-rental/internal/repository"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
)

// CurrencyPlaces is the number of decimal places amounts may carry
const CurrencyPlaces = 2

// MaxAmount is the largest amount accepted for a single operation
var MaxAmount = decimal.RequireFromString("99999999.99")

// MaxBalance is the largest balance an account may hold, the NUMERIC(12, 2) column limit
var MaxBalance = decimal.RequireFromString("9999999999.99")

// Exponents outside this window are rejected before any rescaling, which
// costs time proportional to the exponent.
const (
	minExponent = -(CurrencyPlaces + 8)
	maxExponent = 10
)

// SaneExponent reports whether amount carries an exponent small enough to
// compare and round cheaply. Every valid amount does.
func SaneExponent(amount decimal.Decimal) bool {
	e := amount.Exponent()
	return e >= minExponent && e <= maxExponent
}

// ValidateAmount checks that amount is positive, within MaxAmount and has at most two decimal places
func ValidateAmount(amount decimal.Decimal) error {
	if !SaneExponent(amount) {
		return fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if !amount.Equal(amount.Round(CurrencyPlaces)) {
		return fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, CurrencyPlaces)
	}
	if amount.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: must not exceed %s", ErrInvalidAmount, MaxAmount.StringFixed(CurrencyPlaces))
	}

	return nil
}

// Ledger applies debits and credits to accounts
type Ledger struct {
	now func() time.Time
}

// New creates a Ledger. A nil clock means time.Now.
func New(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{now: now}
}

// Debit subtracts amount from the balance of userID and returns the new balance.
// Nothing is written when the balance is lower than amount.
func (l *Ledger) Debit(ctx context.Context, tx repository.Tx, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}

	account, err := l.lock(ctx, tx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	if account.Balance.LessThan(amount) {
		return decimal.Zero, ErrInsufficientFunds
	}

	return l.apply(ctx, tx, userID, account.Balance.Sub(amount))
}

// Credit adds amount to the balance of userID and returns the new balance
func (l *Ledger) Credit(ctx context.Context, tx repository.Tx, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}

	account, err := l.lock(ctx, tx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	return l.apply(ctx, tx, userID, account.Balance.Add(amount))
}

// Balance returns the current balance of userID, holding the account lock
func (l *Ledger) Balance(ctx context.Context, tx repository.Tx, userID string) (decimal.Decimal, error) {
	account, err := l.lock(ctx, tx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	return account.Balance, nil
}

func (l *Ledger) lock(ctx context.Context, tx repository.Tx, userID string) (*models.Account, error) {
	account, err := tx.LockAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("locking account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	return account, nil
}

func (l *Ledger) apply(ctx context.Context, tx repository.Tx, userID string, balance decimal.Decimal) (decimal.Decimal, error) {
	if balance.IsNegative() {
		return decimal.Zero, ErrInsufficientFunds
	}
	if balance.GreaterThan(MaxBalance) {
		return decimal.Zero, fmt.Errorf("%w: balance would exceed %s", ErrInvalidAmount, MaxBalance.StringFixed(CurrencyPlaces))
	}

	if err := tx.UpdateBalance(ctx, userID, balance, l.now().UTC()); err != nil {
		return decimal.Zero, fmt.Errorf("updating balance: %w", err)
	}

	return balance, nil
}
