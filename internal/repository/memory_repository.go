package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rongwang/library-rental/internal/models"
	"github.com/shopspring/decimal"
)

// MemoryRepository implements the Repository interface in process memory.
// Accounts and transactions locked through a Tx stay locked until the unit of
// work ends, so operations on one account serialize while different accounts
// proceed in parallel.
type MemoryRepository struct {
	mu sync.RWMutex

	users          map[string]models.User
	accounts       map[string]models.Account
	categories     map[string]models.Category
	books          map[string]models.Book
	bookCategories map[string][]string
	borrowed       map[string]map[string]struct{}
	transactions   map[string]models.Transaction
	deposits       []models.Deposit
	reviews        []models.Review

	locksMu          sync.Mutex
	accountLocks     map[string]*sync.Mutex
	transactionLocks map[string]*sync.Mutex
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:            make(map[string]models.User),
		accounts:         make(map[string]models.Account),
		categories:       make(map[string]models.Category),
		books:            make(map[string]models.Book),
		bookCategories:   make(map[string][]string),
		borrowed:         make(map[string]map[string]struct{}),
		transactions:     make(map[string]models.Transaction),
		accountLocks:     make(map[string]*sync.Mutex),
		transactionLocks: make(map[string]*sync.Mutex),
	}
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// User repository methods
func (r *MemoryRepository) CreateUser(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Username == user.Username {
			return fmt.Errorf("%w: users_username_key", ErrDuplicate)
		}
		if existing.Email == user.Email {
			return fmt.Errorf("%w: users_email_key", ErrDuplicate)
		}
	}

	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	r.users[user.ID] = *user
	r.accounts[user.ID] = models.Account{UserID: user.ID, Balance: decimal.Zero, UpdatedAt: now}

	return nil
}

func (r *MemoryRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findUser(func(u models.User) bool { return u.Username == username }), nil
}

func (r *MemoryRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findUser(func(u models.User) bool { return u.Email == email }), nil
}

func (r *MemoryRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return r.findUser(func(u models.User) bool { return u.ID == id }), nil
}

func (r *MemoryRepository) findUser(match func(models.User) bool) *models.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if match(u) {
			found := u
			return &found
		}
	}

	return nil
}

func (r *MemoryRepository) GetAccount(ctx context.Context, userID string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[userID]
	if !ok {
		return nil, nil
	}

	account.BorrowedBooks = []string{}
	for bookID := range r.borrowed[userID] {
		account.BorrowedBooks = append(account.BorrowedBooks, bookID)
	}
	sort.Strings(account.BorrowedBooks)

	return &account, nil
}

// Catalog repository methods
func (r *MemoryRepository) CreateCategory(ctx context.Context, category *models.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.categories {
		if existing.Name == category.Name {
			return fmt.Errorf("%w: categories_name_key", ErrDuplicate)
		}
	}

	if category.ID == "" {
		category.ID = uuid.New().String()
	}
	r.categories[category.ID] = *category

	return nil
}

func (r *MemoryRepository) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	category, ok := r.categories[id]
	if !ok {
		return nil, nil
	}

	return &category, nil
}

func (r *MemoryRepository) ListCategories(ctx context.Context) ([]models.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	categories := make([]models.Category, 0, len(r.categories))
	for _, c := range r.categories {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })

	return categories, nil
}

func (r *MemoryRepository) CreateBook(ctx context.Context, book *models.Book, categoryIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if book.ID == "" {
		book.ID = uuid.New().String()
	}
	book.CreatedAt = time.Now().UTC()

	stored := *book
	stored.Categories = nil
	r.books[book.ID] = stored

	seen := make(map[string]struct{}, len(categoryIDs))
	ids := make([]string, 0, len(categoryIDs))
	for _, id := range categoryIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	r.bookCategories[book.ID] = ids

	return nil
}

func (r *MemoryRepository) GetBook(ctx context.Context, id string) (*models.Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	book, ok := r.books[id]
	if !ok {
		return nil, nil
	}
	book.Categories = r.categoriesOfLocked(id)

	return &book, nil
}

func (r *MemoryRepository) UpdateBookPrice(ctx context.Context, id string, price decimal.Decimal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	book, ok := r.books[id]
	if !ok {
		return false, nil
	}
	book.BorrowingPrice = price
	r.books[id] = book

	return true, nil
}

func (r *MemoryRepository) ListBooks(ctx context.Context, categoryID string) ([]models.Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	books := []models.Book{}
	for id, book := range r.books {
		if categoryID != "" && !contains(r.bookCategories[id], categoryID) {
			continue
		}
		book.Categories = r.categoriesOfLocked(id)
		books = append(books, book)
	}
	sort.Slice(books, func(i, j int) bool {
		if books[i].Title != books[j].Title {
			return books[i].Title < books[j].Title
		}
		return books[i].ID < books[j].ID
	})

	return books, nil
}

func (r *MemoryRepository) CategoriesOf(ctx context.Context, bookID string) ([]models.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.categoriesOfLocked(bookID), nil
}

func (r *MemoryRepository) categoriesOfLocked(bookID string) []models.Category {
	categories := []models.Category{}
	for _, id := range r.bookCategories[bookID] {
		if c, ok := r.categories[id]; ok {
			categories = append(categories, c)
		}
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })

	return categories
}

func (r *MemoryRepository) HasBorrowed(ctx context.Context, userID, bookID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.borrowed[userID][bookID]
	return ok, nil
}

// Review repository methods
func (r *MemoryRepository) CreateReview(ctx context.Context, review *models.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if review.ID == "" {
		review.ID = uuid.New().String()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	r.reviews = append(r.reviews, *review)

	return nil
}

func (r *MemoryRepository) ListReviews(ctx context.Context, bookID string) ([]models.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reviews := []models.Review{}
	for _, review := range r.reviews {
		if review.BookID == bookID {
			reviews = append(reviews, review)
		}
	}

	return reviews, nil
}

// Transaction log read methods
func (r *MemoryRepository) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	transaction, ok := r.transactions[id]
	if !ok {
		return nil, nil
	}

	return &transaction, nil
}

func (r *MemoryRepository) ListUserTransactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	transactions := []models.Transaction{}
	for _, t := range r.transactions {
		if t.UserID == userID {
			transactions = append(transactions, t)
		}
	}
	sortTransactions(transactions)

	return transactions, nil
}

func (r *MemoryRepository) BorrowHistory(ctx context.Context, userID string) ([]models.HistoryEntry, error) {
	transactions, err := r.ListUserTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]models.HistoryEntry, 0, len(transactions))
	for _, t := range transactions {
		entries = append(entries, models.HistoryEntry{
			Transaction: t,
			BookTitle:   r.books[t.BookID].Title,
			State:       t.Status(),
		})
	}

	return entries, nil
}

func (r *MemoryRepository) ListDeposits(ctx context.Context, userID string) ([]models.Deposit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	deposits := []models.Deposit{}
	for i := len(r.deposits) - 1; i >= 0; i-- {
		if r.deposits[i].UserID == userID {
			deposits = append(deposits, r.deposits[i])
		}
	}

	return deposits, nil
}

// RunInTx runs fn against a memoryTx. Writes are buffered and applied
// together only when fn succeeds.
func (r *MemoryRepository) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memoryTx{repo: r, held: make(map[*sync.Mutex]struct{})}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, op := range tx.ops {
		op()
	}

	return nil
}

func (r *MemoryRepository) lockFor(locks map[string]*sync.Mutex, key string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	m, ok := locks[key]
	if !ok {
		m = &sync.Mutex{}
		locks[key] = m
	}

	return m
}

func (r *MemoryRepository) openTransactionsLocked(userID, bookID string) int {
	n := 0
	for _, t := range r.transactions {
		if t.UserID == userID && t.BookID == bookID && t.ReturnDate == nil {
			n++
		}
	}

	return n
}

// memoryTx implements Tx on top of MemoryRepository
type memoryTx struct {
	repo *MemoryRepository
	held map[*sync.Mutex]struct{}
	// order of acquisition, released in reverse
	order []*sync.Mutex
	ops   []func()
}

func (t *memoryTx) acquire(m *sync.Mutex) {
	if _, ok := t.held[m]; ok {
		return
	}
	m.Lock()
	t.held[m] = struct{}{}
	t.order = append(t.order, m)
}

func (t *memoryTx) release() {
	for i := len(t.order) - 1; i >= 0; i-- {
		t.order[i].Unlock()
	}
	t.order = nil
}

func (t *memoryTx) LockAccount(ctx context.Context, userID string) (*models.Account, error) {
	t.acquire(t.repo.lockFor(t.repo.accountLocks, userID))

	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()

	account, ok := t.repo.accounts[userID]
	if !ok {
		return nil, nil
	}

	return &account, nil
}

func (t *memoryTx) UpdateBalance(ctx context.Context, userID string, balance decimal.Decimal, at time.Time) error {
	t.ops = append(t.ops, func() {
		account := t.repo.accounts[userID]
		account.Balance = balance
		account.UpdatedAt = at
		t.repo.accounts[userID] = account
	})

	return nil
}

func (t *memoryTx) CreateTransaction(ctx context.Context, transaction *models.Transaction) error {
	if transaction.ID == "" {
		transaction.ID = uuid.New().String()
	}

	stored := *transaction
	t.ops = append(t.ops, func() {
		t.repo.transactions[stored.ID] = stored
	})

	return nil
}

func (t *memoryTx) LockTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	t.acquire(t.repo.lockFor(t.repo.transactionLocks, id))

	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()

	transaction, ok := t.repo.transactions[id]
	if !ok {
		return nil, nil
	}

	return &transaction, nil
}

func (t *memoryTx) MarkReturned(ctx context.Context, id string, returnDate time.Time, balanceAfter decimal.Decimal) error {
	t.ops = append(t.ops, func() {
		transaction, ok := t.repo.transactions[id]
		if !ok || transaction.ReturnDate != nil {
			return
		}
		returned := returnDate
		transaction.ReturnDate = &returned
		transaction.BalanceAfter = balanceAfter
		t.repo.transactions[id] = transaction
	})

	return nil
}

func (t *memoryTx) AddBorrowedBook(ctx context.Context, userID, bookID string) error {
	t.ops = append(t.ops, func() {
		set, ok := t.repo.borrowed[userID]
		if !ok {
			set = make(map[string]struct{})
			t.repo.borrowed[userID] = set
		}
		set[bookID] = struct{}{}
	})

	return nil
}

func (t *memoryTx) RemoveBorrowedBook(ctx context.Context, userID, bookID string) error {
	t.ops = append(t.ops, func() {
		if t.repo.openTransactionsLocked(userID, bookID) > 0 {
			return
		}
		delete(t.repo.borrowed[userID], bookID)
	})

	return nil
}

func (t *memoryTx) CreateDeposit(ctx context.Context, deposit *models.Deposit) error {
	if deposit.ID == "" {
		deposit.ID = uuid.New().String()
	}

	stored := *deposit
	t.ops = append(t.ops, func() {
		t.repo.deposits = append(t.repo.deposits, stored)
	})

	return nil
}

func sortTransactions(transactions []models.Transaction) {
	sort.Slice(transactions, func(i, j int) bool {
		if !transactions[i].BorrowDate.Equal(transactions[j].BorrowDate) {
			return transactions[i].BorrowDate.After(transactions[j].BorrowDate)
		}
		return transactions[i].ID < transactions[j].ID
	})
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}

	return false
}
