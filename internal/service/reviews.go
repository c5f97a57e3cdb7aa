package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rongwang/library-rental/internal/models"
)

const maxReviewLength = 2000

// AddReview stores a review of bookID by userID. A user may review a book any
// number of times, whether or not they borrowed it.
func (s *DefaultService) AddReview(ctx context.Context, userID, bookID, text string) (*models.Review, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, newValidationError("review", "must not be empty")
	}
	if len(text) > maxReviewLength {
		return nil, newValidationError("review", "must be at most %d characters", maxReviewLength)
	}

	if _, err := s.getBook(ctx, bookID); err != nil {
		return nil, err
	}

	review := &models.Review{
		BookID:    bookID,
		UserID:    userID,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateReview(ctx, review); err != nil {
		return nil, fmt.Errorf("error creating review: %w", err)
	}

	return review, nil
}

func (s *DefaultService) ListReviews(ctx context.Context, bookID string) ([]models.Review, error) {
	if _, err := s.getBook(ctx, bookID); err != nil {
		return nil, err
	}

	reviews, err := s.repo.ListReviews(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("error listing reviews: %w", err)
	}

	return reviews, nil
}
