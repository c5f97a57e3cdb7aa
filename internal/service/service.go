package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rongwang/library-rental/internal/ledger"
	"github.com/rongwang/library-rental/internal/metrics"
	"github.com/rongwang/library-rental/internal/models"
	"github.com/rongwang/library-rental/internal/notify"
	"github.com/rongwang/library-rental/internal/repository"
	"github.com/rongwang/library-rental/internal/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// Service defines all the business logic operations.
// The acting user is always passed explicitly.
type Service interface {
	// Identity
	SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetAccount(ctx context.Context, userID string) (*models.Account, error)

	// Catalog
	CreateCategory(ctx context.Context, req models.CreateCategoryRequest) (*models.Category, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateBook(ctx context.Context, req models.CreateBookRequest) (*models.Book, error)
	ListBooks(ctx context.Context, categoryID string) ([]models.Book, error)
	GetBook(ctx context.Context, userID, bookID string) (*models.BookDetail, error)
	GetPrice(ctx context.Context, bookID string) (decimal.Decimal, error)
	UpdateBookPrice(ctx context.Context, bookID string, price decimal.Decimal) (*models.Book, error)
	CategoriesOf(ctx context.Context, bookID string) ([]models.Category, error)

	// Borrowing workflow
	Borrow(ctx context.Context, userID, bookID string) (*models.Transaction, error)
	Return(ctx context.Context, userID, transactionID string) (*models.Transaction, error)
	Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*models.Deposit, error)
	GetTransaction(ctx context.Context, userID, transactionID string) (*models.Transaction, error)
	ListUserTransactions(ctx context.Context, userID string) ([]models.Transaction, error)
	BorrowHistory(ctx context.Context, userID string) ([]models.HistoryEntry, error)
	ListDeposits(ctx context.Context, userID string) ([]models.Deposit, error)

	// Reviews
	AddReview(ctx context.Context, userID, bookID, text string) (*models.Review, error)
	ListReviews(ctx context.Context, bookID string) ([]models.Review, error)
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo          repository.Repository
	ledger        *ledger.Ledger
	publisher     notify.Publisher
	metrics       *metrics.Metrics
	logger        *utils.Logger
	jwtSecret     []byte
	tokenDuration time.Duration
	now           func() time.Time
}

// Option customizes a DefaultService
type Option func(*DefaultService)

// WithPublisher sets where confirmation messages go after a committed operation
func WithPublisher(p notify.Publisher) Option {
	return func(s *DefaultService) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *DefaultService) { s.metrics = m }
}

func WithLogger(l *utils.Logger) Option {
	return func(s *DefaultService) { s.logger = l }
}

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(s *DefaultService) { s.now = now }
}

func WithTokenDuration(d time.Duration) Option {
	return func(s *DefaultService) { s.tokenDuration = d }
}

type discardPublisher struct{}

func (discardPublisher) Publish(notify.Message) bool { return false }

// NewDefaultService creates a new DefaultService
func NewDefaultService(repo repository.Repository, jwtSecret string, opts ...Option) Service {
	s := &DefaultService{
		repo:          repo,
		publisher:     discardPublisher{},
		logger:        utils.Discard(),
		jwtSecret:     []byte(jwtSecret),
		tokenDuration: 24 * time.Hour, // 24 hours token validity
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}
	s.ledger = ledger.New(s.now)

	return s
}

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_.@+-]+$`)

// Authentication methods
func (s *DefaultService) SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)

	switch {
	case username == "" || utf8.RuneCountInString(username) > 150:
		return nil, newValidationError("username", "must be between 1 and 150 characters")
	case !usernamePattern.MatchString(username):
		return nil, newValidationError("username", "may contain only letters, digits and @/./+/-/_")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, newValidationError("email", "is not a valid address")
	}
	if len(req.Password1) < 8 {
		return nil, newValidationError("password1", "must be at least 8 characters")
	}
	if req.Password1 != req.Password2 {
		return nil, newValidationError("password2", "passwords don't match")
	}

	// Check if user already exists
	existingUser, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("error checking user existence: %w", err)
	}
	if existingUser == nil {
		existingUser, err = s.repo.GetUserByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("error checking user existence: %w", err)
		}
	}

	if existingUser != nil {
		return nil, ErrUserExists
	}

	// Hash the password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password1), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user := &models.User{
		ID:       uuid.New().String(),
		Username: username,
		Email:    email,
		Password: string(hashedPassword),
	}

	// The repository opens the account with a zero balance
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	return &models.AuthResponse{
		Status:   "success",
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	}, nil
}

// Authenticate returns the user for valid credentials and nil otherwise
func (s *DefaultService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}

	if user == nil {
		return nil, nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, nil
	}

	return user, nil
}

func (s *DefaultService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	user, err := s.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	if user == nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.generateJWT(user)
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}

	return &models.AuthResponse{
		Status:    "success",
		UserID:    user.ID,
		Username:  user.Username,
		Token:     token,
		ExpiresIn: int(s.tokenDuration.Seconds()),
	}, nil
}

func (s *DefaultService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}

	if user == nil {
		return nil, ErrUserNotFound
	}

	return user, nil
}

func (s *DefaultService) GetAccount(ctx context.Context, userID string) (*models.Account, error) {
	account, err := s.repo.GetAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting account: %w", err)
	}

	if account == nil {
		return nil, ErrUserNotFound
	}

	return account, nil
}

// Helper methods
func (s *DefaultService) generateJWT(user *models.User) (string, error) {
	now := s.now()

	claims := jwt.MapClaims{
		"sub":      user.ID, // subject
		"username": user.Username,
		"exp":      now.Add(s.tokenDuration).Unix(),
		"iat":      now.Unix(), // issued at
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
