package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rongwang/library-rental/internal/models"
	"github.com/shopspring/decimal"
)

// ErrDuplicate is returned when a unique constraint (username, email, category name) is violated
var ErrDuplicate = errors.New("duplicate record")

// Repository interface defines the methods that any repository implementation must satisfy.
// Lookups of a single record return nil, nil when the record does not exist.
type Repository interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetAccount(ctx context.Context, userID string) (*models.Account, error)

	// Catalog operations
	CreateCategory(ctx context.Context, category *models.Category) error
	GetCategory(ctx context.Context, id string) (*models.Category, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateBook(ctx context.Context, book *models.Book, categoryIDs []string) error
	GetBook(ctx context.Context, id string) (*models.Book, error)
	// UpdateBookPrice returns false when the book does not exist
	UpdateBookPrice(ctx context.Context, id string, price decimal.Decimal) (bool, error)
	ListBooks(ctx context.Context, categoryID string) ([]models.Book, error)
	CategoriesOf(ctx context.Context, bookID string) ([]models.Category, error)
	HasBorrowed(ctx context.Context, userID, bookID string) (bool, error)

	// Review operations
	CreateReview(ctx context.Context, review *models.Review) error
	ListReviews(ctx context.Context, bookID string) ([]models.Review, error)

	// Transaction log read side
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	ListUserTransactions(ctx context.Context, userID string) ([]models.Transaction, error)
	BorrowHistory(ctx context.Context, userID string) ([]models.HistoryEntry, error)
	ListDeposits(ctx context.Context, userID string) ([]models.Deposit, error)

	// RunInTx runs fn as a single unit of work. Nothing fn writes is visible
	// to others unless fn returns nil; row locks taken through Tx are held
	// until RunInTx returns.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	Ping(ctx context.Context) error
}

// Tx is the write side used by the ledger and the borrowing workflow
type Tx interface {
	// LockAccount returns the account and holds it exclusively for the rest of the unit of work
	LockAccount(ctx context.Context, userID string) (*models.Account, error)
	UpdateBalance(ctx context.Context, userID string, balance decimal.Decimal, at time.Time) error

	CreateTransaction(ctx context.Context, transaction *models.Transaction) error
	// LockTransaction returns the transaction and holds it exclusively for the rest of the unit of work
	LockTransaction(ctx context.Context, id string) (*models.Transaction, error)
	MarkReturned(ctx context.Context, id string, returnDate time.Time, balanceAfter decimal.Decimal) error

	AddBorrowedBook(ctx context.Context, userID, bookID string) error
	// RemoveBorrowedBook drops the book from the borrowed set unless the user
	// still has another open transaction for it
	RemoveBorrowedBook(ctx context.Context, userID, bookID string) error

	CreateDeposit(ctx context.Context, deposit *models.Deposit) error
}
