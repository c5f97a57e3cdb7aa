package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rongwang/library-rental/internal/models"
	"github.com/rongwang/library-rental/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// contractTests run against every Repository implementation
func contractTests(t *testing.T, newRepo func(t *testing.T) repository.Repository) {
	t.Run("UsersAndAccounts", func(t *testing.T) { testUsersAndAccounts(t, newRepo(t)) })
	t.Run("Catalog", func(t *testing.T) { testCatalog(t, newRepo(t)) })
	t.Run("UnitOfWork", func(t *testing.T) { testUnitOfWork(t, newRepo(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newRepo(t)) })
	t.Run("BorrowedSet", func(t *testing.T) { testBorrowedSet(t, newRepo(t)) })
	t.Run("AccountLockSerializes", func(t *testing.T) { testAccountLockSerializes(t, newRepo(t)) })
}

func suffix() string {
	return uuid.New().String()[:8]
}

func createUser(t *testing.T, repo repository.Repository) *models.User {
	t.Helper()

	name := "user-" + suffix()
	user := &models.User{
		ID:       uuid.New().String(),
		Username: name,
		Email:    name + "@example.com",
		Password: "hash",
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))

	return user
}

func createBook(t *testing.T, repo repository.Repository, title string, categoryIDs ...string) *models.Book {
	t.Helper()

	book := &models.Book{Title: title, BorrowingPrice: decimal.RequireFromString("2.50")}
	require.NoError(t, repo.CreateBook(context.Background(), book, categoryIDs))

	return book
}

func testUsersAndAccounts(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	user := createUser(t, repo)

	byName, err := repo.GetUserByUsername(ctx, user.Username)
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, user.ID, byName.ID)

	byEmail, err := repo.GetUserByEmail(ctx, user.Email)
	require.NoError(t, err)
	require.NotNil(t, byEmail)

	missing, err := repo.GetUserByID(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, missing)

	account, err := repo.GetAccount(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.True(t, account.Balance.IsZero())
	assert.Empty(t, account.BorrowedBooks)

	dup := &models.User{ID: uuid.New().String(), Username: user.Username, Email: "x-" + user.Email, Password: "hash"}
	assert.ErrorIs(t, repo.CreateUser(ctx, dup), repository.ErrDuplicate)
}

func testCatalog(t *testing.T, repo repository.Repository) {
	ctx := context.Background()

	category := &models.Category{Name: "cat-" + suffix()}
	require.NoError(t, repo.CreateCategory(ctx, category))
	assert.NotEmpty(t, category.ID)
	assert.ErrorIs(t, repo.CreateCategory(ctx, &models.Category{Name: category.Name}), repository.ErrDuplicate)

	tagged := createBook(t, repo, "Tagged "+suffix(), category.ID)
	createBook(t, repo, "Untagged "+suffix())

	books, err := repo.ListBooks(ctx, category.ID)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, tagged.ID, books[0].ID)
	require.Len(t, books[0].Categories, 1)
	assert.Equal(t, category.Name, books[0].Categories[0].Name)

	books, err = repo.ListBooks(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Empty(t, books)

	found, err := repo.UpdateBookPrice(ctx, tagged.ID, decimal.RequireFromString("9.99"))
	require.NoError(t, err)
	assert.True(t, found)

	book, err := repo.GetBook(ctx, tagged.ID)
	require.NoError(t, err)
	require.NotNil(t, book)
	assert.True(t, book.BorrowingPrice.Equal(decimal.RequireFromString("9.99")))

	found, err = repo.UpdateBookPrice(ctx, uuid.New().String(), decimal.RequireFromString("1"))
	require.NoError(t, err)
	assert.False(t, found)

	user := createUser(t, repo)
	review := &models.Review{BookID: tagged.ID, UserID: user.ID, Text: "Fine", CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.CreateReview(ctx, review))

	reviews, err := repo.ListReviews(ctx, tagged.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, "Fine", reviews[0].Text)
}

func testUnitOfWork(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	user := createUser(t, repo)
	book := createBook(t, repo, "Loaned "+suffix())
	now := time.Now().UTC().Truncate(time.Microsecond)

	transaction := &models.Transaction{
		UserID:       user.ID,
		BookID:       book.ID,
		Amount:       decimal.RequireFromString("2.50"),
		BalanceAfter: decimal.RequireFromString("7.50"),
		BorrowDate:   now,
	}

	err := repo.RunInTx(ctx, func(tx repository.Tx) error {
		account, err := tx.LockAccount(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, account)

		if err := tx.UpdateBalance(ctx, user.ID, decimal.RequireFromString("7.50"), now); err != nil {
			return err
		}
		if err := tx.CreateTransaction(ctx, transaction); err != nil {
			return err
		}
		return tx.AddBorrowedBook(ctx, user.ID, book.ID)
	})
	require.NoError(t, err)

	account, err := repo.GetAccount(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.RequireFromString("7.50")))
	assert.Equal(t, []string{book.ID}, account.BorrowedBooks)

	stored, err := repo.GetTransaction(ctx, transaction.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Nil(t, stored.ReturnDate)

	history, err := repo.BorrowHistory(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, book.Title, history[0].BookTitle)
	assert.Equal(t, models.StatusBorrowed, history[0].State)

	returnDate := now.Add(time.Hour)
	err = repo.RunInTx(ctx, func(tx repository.Tx) error {
		locked, err := tx.LockTransaction(ctx, transaction.ID)
		require.NoError(t, err)
		require.NotNil(t, locked)

		if err := tx.MarkReturned(ctx, transaction.ID, returnDate, decimal.RequireFromString("10")); err != nil {
			return err
		}
		return tx.RemoveBorrowedBook(ctx, user.ID, book.ID)
	})
	require.NoError(t, err)

	stored, err = repo.GetTransaction(ctx, transaction.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReturnDate)
	assert.True(t, stored.ReturnDate.Equal(returnDate))

	has, err := repo.HasBorrowed(ctx, user.ID, book.ID)
	require.NoError(t, err)
	assert.False(t, has)
}

func testRollback(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	user := createUser(t, repo)

	boom := errors.New("boom")
	err := repo.RunInTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.LockAccount(ctx, user.ID); err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, user.ID, decimal.RequireFromString("100"), time.Now()); err != nil {
			return err
		}
		if err := tx.CreateDeposit(ctx, &models.Deposit{
			UserID:       user.ID,
			Amount:       decimal.RequireFromString("100"),
			BalanceAfter: decimal.RequireFromString("100"),
			CreatedAt:    time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	account, err := repo.GetAccount(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, account.Balance.IsZero())

	deposits, err := repo.ListDeposits(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, deposits)
}

func testBorrowedSet(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	user := createUser(t, repo)
	book := createBook(t, repo, "Twice "+suffix())

	var ids []string
	for i := 0; i < 2; i++ {
		transaction := &models.Transaction{UserID: user.ID, BookID: book.ID, BorrowDate: time.Now().UTC()}
		require.NoError(t, repo.RunInTx(ctx, func(tx repository.Tx) error {
			if err := tx.CreateTransaction(ctx, transaction); err != nil {
				return err
			}
			return tx.AddBorrowedBook(ctx, user.ID, book.ID)
		}))
		ids = append(ids, transaction.ID)
	}

	returnOne := func(id string) {
		require.NoError(t, repo.RunInTx(ctx, func(tx repository.Tx) error {
			if err := tx.MarkReturned(ctx, id, time.Now().UTC(), decimal.Zero); err != nil {
				return err
			}
			return tx.RemoveBorrowedBook(ctx, user.ID, book.ID)
		}))
	}

	returnOne(ids[0])
	has, err := repo.HasBorrowed(ctx, user.ID, book.ID)
	require.NoError(t, err)
	assert.True(t, has, "Another loan of the book is still open")

	returnOne(ids[1])
	has, err = repo.HasBorrowed(ctx, user.ID, book.ID)
	require.NoError(t, err)
	assert.False(t, has)
}

func testAccountLockSerializes(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	user := createUser(t, repo)

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.RunInTx(ctx, func(tx repository.Tx) error {
				account, err := tx.LockAccount(ctx, user.ID)
				if err != nil {
					return err
				}
				return tx.UpdateBalance(ctx, user.ID, account.Balance.Add(decimal.NewFromInt(1)), time.Now())
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	account, err := repo.GetAccount(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(workers)), "got %s", account.Balance)
}

func TestMemoryRepository(t *testing.T) {
	contractTests(t, func(t *testing.T) repository.Repository {
		return repository.NewMemoryRepository()
	})
}
