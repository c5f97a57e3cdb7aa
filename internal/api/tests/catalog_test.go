package api_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/rongwang/library-rental/internal/api/testutils"
	"github.com/rongwang/library-rental/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	auth := testutils.AuthHeaders(testCtx.TestUserJWT)

	// Create categories
	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/categories",
		models.CreateCategoryRequest{Name: "Fiction"}, auth)
	require.Equal(t, http.StatusCreated, w.Code)
	var fiction models.Category
	testutils.DecodeBody(t, w, &fiction)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/categories",
		models.CreateCategoryRequest{Name: "Science"}, auth)
	require.Equal(t, http.StatusCreated, w.Code)
	var science models.Category
	testutils.DecodeBody(t, w, &science)

	// Duplicate category
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/categories",
		models.CreateCategoryRequest{Name: "Fiction"}, auth)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Create books
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/books", models.CreateBookRequest{
		Title:          "Dune",
		BorrowingPrice: decimal.RequireFromString("20.00"),
		CategoryIDs:    []string{fiction.ID, science.ID},
	}, auth)
	require.Equal(t, http.StatusCreated, w.Code)
	var dune models.Book
	testutils.DecodeBody(t, w, &dune)
	assert.Len(t, dune.Categories, 2)

	testCtx.CreateTestBook(t, "Cosmos", "5.50", science.ID)

	t.Run("ListAll", func(t *testing.T) {
		w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/books", nil, auth)
		assert.Equal(t, http.StatusOK, w.Code)

		var books []models.Book
		testutils.DecodeBody(t, w, &books)
		assert.Len(t, books, 2)
	})

	t.Run("FilterByCategory", func(t *testing.T) {
		w := testutils.PerformRequest(testCtx.Router, http.MethodGet,
			fmt.Sprintf("/api/books?category=%s", fiction.ID), nil, auth)
		assert.Equal(t, http.StatusOK, w.Code)

		var books []models.Book
		testutils.DecodeBody(t, w, &books)
		require.Len(t, books, 1)
		assert.Equal(t, "Dune", books[0].Title)
	})

	t.Run("UnknownCategoryIsEmpty", func(t *testing.T) {
		w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/books?category=missing", nil, auth)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "[]", w.Body.String())
	})

	t.Run("BookWithUnknownCategory", func(t *testing.T) {
		w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/books", models.CreateBookRequest{
			Title:          "Orphan",
			BorrowingPrice: decimal.RequireFromString("1"),
			CategoryIDs:    []string{"missing"},
		}, auth)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("NegativePrice", func(t *testing.T) {
		w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/books", models.CreateBookRequest{
			Title:          "Refund Machine",
			BorrowingPrice: decimal.RequireFromString("-1"),
		}, auth)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("BookDetail", func(t *testing.T) {
		w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/books/"+dune.ID, nil, auth)
		assert.Equal(t, http.StatusOK, w.Code)

		var detail models.BookDetail
		testutils.DecodeBody(t, w, &detail)
		assert.Equal(t, "Dune", detail.Title)
		assert.True(t, detail.BorrowingPrice.Equal(decimal.RequireFromString("20")))
		assert.False(t, detail.HasBorrowed)
	})

	t.Run("MissingBook", func(t *testing.T) {
		w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/books/missing", nil, auth)
		assert.Equal(t, http.StatusNotFound, w.Code)

		var errResp models.ErrorResponse
		testutils.DecodeBody(t, w, &errResp)
		assert.Equal(t, "BOOK_NOT_FOUND", errResp.Code)
	})
}

func TestReviews(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	auth := testutils.AuthHeaders(testCtx.TestUserJWT)
	book := testCtx.CreateTestBook(t, "Emma", "3.00")

	path := fmt.Sprintf("/api/books/%s/reviews", book.ID)

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, path,
		models.ReviewRequest{Review: "A delight"}, auth)
	assert.Equal(t, http.StatusCreated, w.Code)

	// Reviewing twice is allowed
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, path,
		models.ReviewRequest{Review: "Still a delight"}, auth)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, path,
		models.ReviewRequest{Review: "   "}, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, path, nil, auth)
	assert.Equal(t, http.StatusOK, w.Code)

	var reviews []models.Review
	testutils.DecodeBody(t, w, &reviews)
	assert.Len(t, reviews, 2)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/books/missing/reviews",
		models.ReviewRequest{Review: "Where is it?"}, auth)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
