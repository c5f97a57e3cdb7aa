package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction states
const (
	StatusBorrowed = "borrowed"
	StatusReturned = "returned"
)

// User represents a registered library member
type User struct {
	ID        string    `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Email     string    `db:"email" json:"email"`
	Password  string    `db:"password" json:"-"` // Password hash, not returned in JSON
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Account holds the balance of a user. It is created together with the user.
type Account struct {
	UserID        string          `db:"user_id" json:"userId"`
	Balance       decimal.Decimal `db:"balance" json:"balance"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
	BorrowedBooks []string        `db:"-" json:"borrowedBooks"`
}

// Category groups books
type Category struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Book is a catalog entry that can be borrowed for its borrowing price
type Book struct {
	ID             string          `db:"id" json:"id"`
	Title          string          `db:"title" json:"title"`
	Description    string          `db:"description" json:"description"`
	Image          string          `db:"image" json:"image"`
	BorrowingPrice decimal.Decimal `db:"borrowing_price" json:"borrowingPrice"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	Categories     []Category      `db:"-" json:"categories"`
}

// BookDetail is a book together with its reviews, as seen by one user
type BookDetail struct {
	Book
	Reviews     []Review `json:"reviews"`
	HasBorrowed bool     `json:"hasBorrowed"`
}

// Transaction records a single borrow and its eventual return
type Transaction struct {
	ID           string          `db:"id" json:"id"`
	UserID       string          `db:"user_id" json:"userId"`
	BookID       string          `db:"book_id" json:"bookId"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	BalanceAfter decimal.Decimal `db:"balance_after" json:"balanceAfter"`
	BorrowDate   time.Time       `db:"borrow_date" json:"borrowDate"`
	ReturnDate   *time.Time      `db:"return_date" json:"returnDate"`
}

// Returned reports whether the book of this transaction was given back
func (t *Transaction) Returned() bool {
	return t.ReturnDate != nil
}

// Status returns StatusBorrowed or StatusReturned
func (t *Transaction) Status() string {
	if t.Returned() {
		return StatusReturned
	}
	return StatusBorrowed
}

// HistoryEntry is a transaction joined with the title of its book
type HistoryEntry struct {
	Transaction
	BookTitle string `db:"book_title" json:"bookTitle"`
	State     string `db:"-" json:"status"`
}

// Deposit is the audit record of money added to an account
type Deposit struct {
	ID           string          `db:"id" json:"id"`
	UserID       string          `db:"user_id" json:"userId"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	BalanceAfter decimal.Decimal `db:"balance_after" json:"balanceAfter"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
}

// Review is a free-text opinion about a book
type Review struct {
	ID        string    `db:"id" json:"id"`
	BookID    string    `db:"book_id" json:"bookId"`
	UserID    string    `db:"user_id" json:"userId"`
	Text      string    `db:"review" json:"review"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
