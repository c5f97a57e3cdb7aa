package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rongwang/library-rental/internal/models"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		db:      db,
		dialect: goqu.Dialect("postgres"),
	}
}

// GetDB returns the underlying database connection
func (r *PostgresRepository) GetDB() *sqlx.DB {
	return r.db
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// User repository methods
func (r *PostgresRepository) CreateUser(ctx context.Context, user *models.User) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// Generate a new UUID if not provided
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.Username, user.Email, user.Password, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return translateError(err)
	}

	// Every user gets an account with zero balance
	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (user_id, balance, updated_at) VALUES ($1, 0, $2)`,
		user.ID, now)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getUser(ctx, `SELECT * FROM users WHERE username = $1`, username)
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, `SELECT * FROM users WHERE email = $1`, email)
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return r.getUser(ctx, `SELECT * FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) getUser(ctx context.Context, query string, arg string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, err
	}

	return &user, nil
}

func (r *PostgresRepository) GetAccount(ctx context.Context, userID string) (*models.Account, error) {
	var account models.Account
	err := r.db.GetContext(ctx, &account,
		`SELECT user_id, balance, updated_at FROM accounts WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	account.BorrowedBooks = []string{}
	err = r.db.SelectContext(ctx, &account.BorrowedBooks,
		`SELECT book_id FROM borrowed_books WHERE user_id = $1 ORDER BY book_id`, userID)
	if err != nil {
		return nil, err
	}

	return &account, nil
}

// Catalog repository methods
func (r *PostgresRepository) CreateCategory(ctx context.Context, category *models.Category) error {
	if category.ID == "" {
		category.ID = uuid.New().String()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, name) VALUES ($1, $2)`, category.ID, category.Name)

	return translateError(err)
}

func (r *PostgresRepository) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	var category models.Category
	err := r.db.GetContext(ctx, &category, `SELECT id, name FROM categories WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &category, nil
}

func (r *PostgresRepository) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	err := r.db.SelectContext(ctx, &categories, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}

	return categories, nil
}

func (r *PostgresRepository) CreateBook(ctx context.Context, book *models.Book, categoryIDs []string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if book.ID == "" {
		book.ID = uuid.New().String()
	}
	book.CreatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO books (id, title, description, image, borrowing_price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, book.ID, book.Title, book.Description, book.Image, book.BorrowingPrice, book.CreatedAt)
	if err != nil {
		return err
	}

	for _, categoryID := range categoryIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO book_categories (book_id, category_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			book.ID, categoryID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *PostgresRepository) GetBook(ctx context.Context, id string) (*models.Book, error) {
	var book models.Book
	err := r.db.GetContext(ctx, &book, `
		SELECT id, title, description, image, borrowing_price, created_at
		FROM books WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Book not found
		}
		return nil, err
	}

	book.Categories, err = r.CategoriesOf(ctx, id)
	if err != nil {
		return nil, err
	}

	return &book, nil
}

func (r *PostgresRepository) UpdateBookPrice(ctx context.Context, id string, price decimal.Decimal) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE books SET borrowing_price = $1 WHERE id = $2`, price, id)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

// ListBooks returns all books ordered by title, restricted to one category when categoryID is set
func (r *PostgresRepository) ListBooks(ctx context.Context, categoryID string) ([]models.Book, error) {
	ds := r.dialect.
		From(goqu.T("books").As("b")).
		Select("b.id", "b.title", "b.description", "b.image", "b.borrowing_price", "b.created_at").
		Order(goqu.I("b.title").Asc(), goqu.I("b.id").Asc())

	if categoryID != "" {
		ds = ds.
			Join(goqu.T("book_categories").As("bc"), goqu.On(goqu.Ex{"bc.book_id": goqu.I("b.id")})).
			Where(goqu.Ex{"bc.category_id": categoryID})
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building book query: %w", err)
	}

	books := []models.Book{}
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, err
	}

	if err := r.attachCategories(ctx, books); err != nil {
		return nil, err
	}

	return books, nil
}

type bookCategoryRow struct {
	BookID string `db:"book_id"`
	models.Category
}

// attachCategories loads the categories of all books with one query
func (r *PostgresRepository) attachCategories(ctx context.Context, books []models.Book) error {
	if len(books) == 0 {
		return nil
	}

	ids := make([]string, len(books))
	for i := range books {
		ids[i] = books[i].ID
		books[i].Categories = []models.Category{}
	}

	query, args, err := r.dialect.
		From(goqu.T("book_categories").As("bc")).
		Join(goqu.T("categories").As("c"), goqu.On(goqu.Ex{"c.id": goqu.I("bc.category_id")})).
		Select("bc.book_id", "c.id", "c.name").
		Where(goqu.Ex{"bc.book_id": ids}).
		Order(goqu.I("c.name").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("building category query: %w", err)
	}

	var rows []bookCategoryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return err
	}

	index := make(map[string]int, len(books))
	for i := range books {
		index[books[i].ID] = i
	}
	for _, row := range rows {
		i := index[row.BookID]
		books[i].Categories = append(books[i].Categories, row.Category)
	}

	return nil
}

func (r *PostgresRepository) CategoriesOf(ctx context.Context, bookID string) ([]models.Category, error) {
	categories := []models.Category{}
	err := r.db.SelectContext(ctx, &categories, `
		SELECT c.id, c.name FROM categories c
		JOIN book_categories bc ON bc.category_id = c.id
		WHERE bc.book_id = $1
		ORDER BY c.name
	`, bookID)
	if err != nil {
		return nil, err
	}

	return categories, nil
}

func (r *PostgresRepository) HasBorrowed(ctx context.Context, userID, bookID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM borrowed_books WHERE user_id = $1 AND book_id = $2)`,
		userID, bookID)

	return exists, err
}

// Review repository methods
func (r *PostgresRepository) CreateReview(ctx context.Context, review *models.Review) error {
	if review.ID == "" {
		review.ID = uuid.New().String()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reviews (id, book_id, user_id, review, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, review.ID, review.BookID, review.UserID, review.Text, review.CreatedAt)

	return err
}

func (r *PostgresRepository) ListReviews(ctx context.Context, bookID string) ([]models.Review, error) {
	reviews := []models.Review{}
	err := r.db.SelectContext(ctx, &reviews, `
		SELECT id, book_id, user_id, review, created_at FROM reviews
		WHERE book_id = $1
		ORDER BY created_at ASC
	`, bookID)
	if err != nil {
		return nil, err
	}

	return reviews, nil
}

// Transaction log read methods
func (r *PostgresRepository) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var transaction models.Transaction
	err := r.db.GetContext(ctx, &transaction, `SELECT * FROM transactions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Transaction not found
		}
		return nil, err
	}

	return &transaction, nil
}

func (r *PostgresRepository) ListUserTransactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	transactions := []models.Transaction{}
	err := r.db.SelectContext(ctx, &transactions, `
		SELECT * FROM transactions
		WHERE user_id = $1
		ORDER BY borrow_date DESC, id
	`, userID)
	if err != nil {
		return nil, err
	}

	return transactions, nil
}

func (r *PostgresRepository) BorrowHistory(ctx context.Context, userID string) ([]models.HistoryEntry, error) {
	query, args, err := r.dialect.
		From(goqu.T("transactions").As("t")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.Ex{"b.id": goqu.I("t.book_id")})).
		Select(
			"t.id", "t.user_id", "t.book_id", "t.amount", "t.balance_after",
			"t.borrow_date", "t.return_date", goqu.I("b.title").As("book_title"),
		).
		Where(goqu.Ex{"t.user_id": userID}).
		Order(goqu.I("t.borrow_date").Desc(), goqu.I("t.id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building history query: %w", err)
	}

	entries := []models.HistoryEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].State = entries[i].Transaction.Status()
	}

	return entries, nil
}

func (r *PostgresRepository) ListDeposits(ctx context.Context, userID string) ([]models.Deposit, error) {
	deposits := []models.Deposit{}
	err := r.db.SelectContext(ctx, &deposits, `
		SELECT id, user_id, amount, balance_after, created_at FROM deposits
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}

	return deposits, nil
}

// RunInTx runs fn inside a database transaction
func (r *PostgresRepository) RunInTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(&postgresTx{tx: tx}); err != nil {
		return err
	}

	return tx.Commit()
}

// postgresTx implements Tx with row level locks
type postgresTx struct {
	tx *sqlx.Tx
}

func (t *postgresTx) LockAccount(ctx context.Context, userID string) (*models.Account, error) {
	var account models.Account
	err := t.tx.GetContext(ctx, &account,
		`SELECT user_id, balance, updated_at FROM accounts WHERE user_id = $1 FOR UPDATE`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &account, nil
}

func (t *postgresTx) UpdateBalance(ctx context.Context, userID string, balance decimal.Decimal, at time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, updated_at = $2 WHERE user_id = $3`,
		balance, at, userID)

	return err
}

func (t *postgresTx) CreateTransaction(ctx context.Context, transaction *models.Transaction) error {
	if transaction.ID == "" {
		transaction.ID = uuid.New().String()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, book_id, amount, balance_after, borrow_date, return_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, transaction.ID, transaction.UserID, transaction.BookID, transaction.Amount,
		transaction.BalanceAfter, transaction.BorrowDate, transaction.ReturnDate)

	return err
}

func (t *postgresTx) LockTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var transaction models.Transaction
	err := t.tx.GetContext(ctx, &transaction, `SELECT * FROM transactions WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &transaction, nil
}

func (t *postgresTx) MarkReturned(ctx context.Context, id string, returnDate time.Time, balanceAfter decimal.Decimal) error {
	// the return_date guard keeps a returned transaction immutable
	res, err := t.tx.ExecContext(ctx, `
		UPDATE transactions SET return_date = $1, balance_after = $2
		WHERE id = $3 AND return_date IS NULL
	`, returnDate, balanceAfter, id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("transaction %s was not open", id)
	}

	return nil
}

func (t *postgresTx) AddBorrowedBook(ctx context.Context, userID, bookID string) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO borrowed_books (user_id, book_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, bookID)

	return err
}

func (t *postgresTx) RemoveBorrowedBook(ctx context.Context, userID, bookID string) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM borrowed_books
		WHERE user_id = $1 AND book_id = $2
		AND NOT EXISTS (
			SELECT 1 FROM transactions
			WHERE user_id = $1 AND book_id = $2 AND return_date IS NULL
		)
	`, userID, bookID)

	return err
}

func (t *postgresTx) CreateDeposit(ctx context.Context, deposit *models.Deposit) error {
	if deposit.ID == "" {
		deposit.ID = uuid.New().String()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO deposits (id, user_id, amount, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, deposit.ID, deposit.UserID, deposit.Amount, deposit.BalanceAfter, deposit.CreatedAt)

	return err
}

// translateError maps unique violations of either driver to ErrDuplicate
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}

	return err
}
