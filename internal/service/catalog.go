package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rongwang/library-rental/internal/ledger"
	"github.com/rongwang/library-rental/internal/models"
	"github.com/rongwang/library-rental/internal/repository"
	"github.com/shopspring/decimal"
)

// maxBookPrice matches the NUMERIC(8, 2) column of books.borrowing_price
var maxBookPrice = decimal.RequireFromString("999999.99")

func (s *DefaultService) CreateCategory(ctx context.Context, req models.CreateCategoryRequest) (*models.Category, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 100 {
		return nil, newValidationError("name", "must be between 1 and 100 characters")
	}

	category := &models.Category{Name: name}
	if err := s.repo.CreateCategory(ctx, category); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrCategoryExists
		}
		return nil, fmt.Errorf("error creating category: %w", err)
	}

	return category, nil
}

func (s *DefaultService) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing categories: %w", err)
	}

	return categories, nil
}

func (s *DefaultService) CreateBook(ctx context.Context, req models.CreateBookRequest) (*models.Book, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" || len(title) > 100 {
		return nil, newValidationError("title", "must be between 1 and 100 characters")
	}

	price := req.BorrowingPrice
	if err := validatePrice(price); err != nil {
		return nil, err
	}

	for _, id := range req.CategoryIDs {
		category, err := s.repo.GetCategory(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("error getting category: %w", err)
		}
		if category == nil {
			return nil, fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
		}
	}

	book := &models.Book{
		Title:          title,
		Description:    strings.TrimSpace(req.Description),
		Image:          strings.TrimSpace(req.Image),
		BorrowingPrice: price,
	}

	if err := s.repo.CreateBook(ctx, book, req.CategoryIDs); err != nil {
		return nil, fmt.Errorf("error creating book: %w", err)
	}

	return s.getBook(ctx, book.ID)
}

// ListBooks returns the catalog, restricted to one category when categoryID is not empty
func (s *DefaultService) ListBooks(ctx context.Context, categoryID string) ([]models.Book, error) {
	books, err := s.repo.ListBooks(ctx, strings.TrimSpace(categoryID))
	if err != nil {
		return nil, fmt.Errorf("error listing books: %w", err)
	}

	return books, nil
}

// GetBook returns a book with its reviews and whether userID currently has it borrowed
func (s *DefaultService) GetBook(ctx context.Context, userID, bookID string) (*models.BookDetail, error) {
	book, err := s.getBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	reviews, err := s.repo.ListReviews(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("error listing reviews: %w", err)
	}

	hasBorrowed, err := s.repo.HasBorrowed(ctx, userID, bookID)
	if err != nil {
		return nil, fmt.Errorf("error checking borrowed books: %w", err)
	}

	return &models.BookDetail{
		Book:        *book,
		Reviews:     reviews,
		HasBorrowed: hasBorrowed,
	}, nil
}

// GetPrice returns the current borrowing price of a book
func (s *DefaultService) GetPrice(ctx context.Context, bookID string) (decimal.Decimal, error) {
	book, err := s.getBook(ctx, bookID)
	if err != nil {
		return decimal.Zero, err
	}

	return book.BorrowingPrice, nil
}

// UpdateBookPrice changes the price charged to future borrows. Open loans keep
// the amount they were charged.
func (s *DefaultService) UpdateBookPrice(ctx context.Context, bookID string, price decimal.Decimal) (*models.Book, error) {
	if err := validatePrice(price); err != nil {
		return nil, err
	}

	found, err := s.repo.UpdateBookPrice(ctx, bookID, price)
	if err != nil {
		return nil, fmt.Errorf("error updating book price: %w", err)
	}
	if !found {
		return nil, ErrBookNotFound
	}

	return s.getBook(ctx, bookID)
}

func validatePrice(price decimal.Decimal) error {
	switch {
	case !ledger.SaneExponent(price):
		return newValidationError("borrowingPrice", "is out of range")
	case price.IsNegative():
		return newValidationError("borrowingPrice", "must not be negative")
	case !price.Equal(price.Round(2)):
		return newValidationError("borrowingPrice", "must have at most 2 decimal places")
	case price.GreaterThan(maxBookPrice):
		return newValidationError("borrowingPrice", "must not exceed %s", maxBookPrice.StringFixed(2))
	}
	return nil
}

func (s *DefaultService) CategoriesOf(ctx context.Context, bookID string) ([]models.Category, error) {
	book, err := s.getBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	return book.Categories, nil
}

func (s *DefaultService) getBook(ctx context.Context, bookID string) (*models.Book, error) {
	book, err := s.repo.GetBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("error getting book: %w", err)
	}

	if book == nil {
		return nil, ErrBookNotFound
	}

	return book, nil
}
