package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rongwang/library-rental/internal/ledger"
	"github.com/rongwang/library-rental/internal/metrics"
	"github.com/rongwang/library-rental/internal/models"
	"github.com/rongwang/library-rental/internal/notify"
	"github.com/rongwang/library-rental/internal/repository"
	"github.com/shopspring/decimal"
)

// Borrow charges the current price of the book to the user and records the loan.
// Either the debit and the transaction are both committed or neither is.
func (s *DefaultService) Borrow(ctx context.Context, userID, bookID string) (*models.Transaction, error) {
	transaction, book, err := s.borrow(ctx, userID, bookID)
	s.recordResult(metricBorrows, err)
	if err != nil {
		return nil, err
	}

	s.sendConfirmation(ctx, userID, func(to notify.Recipient) notify.Message {
		return notify.BorrowMessage(to, book.Title, transaction.Amount, transaction.BorrowDate)
	})

	return transaction, nil
}

func (s *DefaultService) borrow(ctx context.Context, userID, bookID string) (*models.Transaction, *models.Book, error) {
	// the price is read once, the loan is charged exactly this amount
	book, err := s.getBook(ctx, bookID)
	if err != nil {
		return nil, nil, err
	}
	price := book.BorrowingPrice

	var transaction *models.Transaction
	err = s.repo.RunInTx(ctx, func(tx repository.Tx) error {
		balance, err := s.charge(ctx, tx, userID, price)
		if err != nil {
			return err
		}

		t := &models.Transaction{
			UserID:       userID,
			BookID:       book.ID,
			Amount:       price,
			BalanceAfter: balance,
			BorrowDate:   s.now().UTC(),
		}
		if err := tx.CreateTransaction(ctx, t); err != nil {
			return fmt.Errorf("error creating transaction: %w", err)
		}

		if err := tx.AddBorrowedBook(ctx, userID, book.ID); err != nil {
			return fmt.Errorf("error adding borrowed book: %w", err)
		}

		transaction = t
		return nil
	})
	if err != nil {
		return nil, nil, translateLedgerError(err)
	}

	return transaction, book, nil
}

// charge debits price, free books only lock the account
func (s *DefaultService) charge(ctx context.Context, tx repository.Tx, userID string, price decimal.Decimal) (decimal.Decimal, error) {
	if price.IsZero() {
		return s.ledger.Balance(ctx, tx, userID)
	}
	return s.ledger.Debit(ctx, tx, userID, price)
}

// Return gives a borrowed book back and refunds the amount charged at borrow time.
// Only the owner of the transaction may return it; for anyone else it does not exist.
func (s *DefaultService) Return(ctx context.Context, userID, transactionID string) (*models.Transaction, error) {
	transaction, err := s.returnBook(ctx, userID, transactionID)
	s.recordResult(metricReturns, err)
	if err != nil {
		return nil, err
	}

	title := transaction.BookID
	if book, err := s.repo.GetBook(ctx, transaction.BookID); err == nil && book != nil {
		title = book.Title
	}

	s.sendConfirmation(ctx, userID, func(to notify.Recipient) notify.Message {
		return notify.ReturnMessage(to, title, transaction.Amount, *transaction.ReturnDate)
	})

	return transaction, nil
}

func (s *DefaultService) returnBook(ctx context.Context, userID, transactionID string) (*models.Transaction, error) {
	var transaction *models.Transaction
	err := s.repo.RunInTx(ctx, func(tx repository.Tx) error {
		t, err := tx.LockTransaction(ctx, transactionID)
		if err != nil {
			return fmt.Errorf("error getting transaction: %w", err)
		}

		if t == nil || t.UserID != userID {
			return ErrTransactionNotFound
		}

		if t.Returned() {
			return ErrAlreadyReturned
		}

		var balance decimal.Decimal
		if t.Amount.IsPositive() {
			balance, err = s.ledger.Credit(ctx, tx, userID, t.Amount)
		} else {
			balance, err = s.ledger.Balance(ctx, tx, userID)
		}
		if err != nil {
			return err
		}

		returnDate := s.now().UTC()
		if returnDate.Before(t.BorrowDate) {
			returnDate = t.BorrowDate
		}

		if err := tx.MarkReturned(ctx, t.ID, returnDate, balance); err != nil {
			return fmt.Errorf("error marking transaction returned: %w", err)
		}

		if err := tx.RemoveBorrowedBook(ctx, userID, t.BookID); err != nil {
			return fmt.Errorf("error removing borrowed book: %w", err)
		}

		t.ReturnDate = &returnDate
		t.BalanceAfter = balance
		transaction = t
		return nil
	})
	if err != nil {
		return nil, translateLedgerError(err)
	}

	return transaction, nil
}

// Deposit adds money to the account of userID and keeps an audit record of it
func (s *DefaultService) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*models.Deposit, error) {
	deposit, err := s.deposit(ctx, userID, amount)
	s.recordResult(metricDeposits, err)
	if err != nil {
		return nil, err
	}

	s.sendConfirmation(ctx, userID, func(to notify.Recipient) notify.Message {
		return notify.DepositMessage(to, deposit.Amount, deposit.BalanceAfter, deposit.CreatedAt)
	})

	return deposit, nil
}

func (s *DefaultService) deposit(ctx context.Context, userID string, amount decimal.Decimal) (*models.Deposit, error) {
	if err := ledger.ValidateAmount(amount); err != nil {
		return nil, err
	}

	var deposit *models.Deposit
	err := s.repo.RunInTx(ctx, func(tx repository.Tx) error {
		balance, err := s.ledger.Credit(ctx, tx, userID, amount)
		if err != nil {
			return err
		}

		d := &models.Deposit{
			UserID:       userID,
			Amount:       amount,
			BalanceAfter: balance,
			CreatedAt:    s.now().UTC(),
		}
		if err := tx.CreateDeposit(ctx, d); err != nil {
			return fmt.Errorf("error recording deposit: %w", err)
		}

		deposit = d
		return nil
	})
	if err != nil {
		return nil, translateLedgerError(err)
	}

	return deposit, nil
}

func (s *DefaultService) GetTransaction(ctx context.Context, userID, transactionID string) (*models.Transaction, error) {
	transaction, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("error getting transaction: %w", err)
	}

	if transaction == nil || transaction.UserID != userID {
		return nil, ErrTransactionNotFound
	}

	return transaction, nil
}

func (s *DefaultService) ListUserTransactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	transactions, err := s.repo.ListUserTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing transactions: %w", err)
	}

	return transactions, nil
}

// BorrowHistory lists the loans of userID, newest first, with book titles
func (s *DefaultService) BorrowHistory(ctx context.Context, userID string) ([]models.HistoryEntry, error) {
	entries, err := s.repo.BorrowHistory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting borrow history: %w", err)
	}

	return entries, nil
}

func (s *DefaultService) ListDeposits(ctx context.Context, userID string) ([]models.Deposit, error) {
	deposits, err := s.repo.ListDeposits(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing deposits: %w", err)
	}

	return deposits, nil
}

// sendConfirmation publishes a message built for userID. It runs after commit
// and cannot fail the operation.
func (s *DefaultService) sendConfirmation(ctx context.Context, userID string, build func(notify.Recipient) notify.Message) {
	ctx = context.WithoutCancel(ctx)

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil || user == nil {
		s.logger.Warn("notification skipped, recipient lookup failed", "user_id", userID, "error", err)
		return
	}

	s.publisher.Publish(build(notify.Recipient{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	}))
}

func translateLedgerError(err error) error {
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return ErrUserNotFound
	}
	return err
}

const (
	metricBorrows = iota
	metricReturns
	metricDeposits
)

func (s *DefaultService) recordResult(kind int, err error) {
	if s.metrics == nil {
		return
	}

	var counter *prometheus.CounterVec
	switch kind {
	case metricBorrows:
		counter = s.metrics.Borrows
	case metricReturns:
		counter = s.metrics.Returns
	default:
		counter = s.metrics.Deposits
	}

	switch {
	case err == nil:
		counter.WithLabelValues(metrics.ResultOK).Inc()
	case IsDomainError(err):
		counter.WithLabelValues(metrics.ResultRejected).Inc()
	default:
		counter.WithLabelValues(metrics.ResultError).Inc()
	}
}
