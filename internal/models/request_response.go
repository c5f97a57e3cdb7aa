package models

import "github.com/shopspring/decimal"

// Request models
type SignUpRequest struct {
	Username  string `json:"username" binding:"required,max=150"`
	Email     string `json:"email" binding:"required,email"`
	Password1 string `json:"password1" binding:"required,min=8"`
	Password2 string `json:"password2" binding:"required"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type CreateCategoryRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

type CreateBookRequest struct {
	Title          string          `json:"title" binding:"required,max=100"`
	Description    string          `json:"description"`
	Image          string          `json:"image"`
	BorrowingPrice decimal.Decimal `json:"borrowingPrice"`
	CategoryIDs    []string        `json:"categoryIds"`
}

type UpdatePriceRequest struct {
	BorrowingPrice decimal.Decimal `json:"borrowingPrice"`
}

type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type ReviewRequest struct {
	Review string `json:"review" binding:"required"`
}

// Response models
type AuthResponse struct {
	Status    string `json:"status"`
	UserID    string `json:"userId,omitempty"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	Token     string `json:"token,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
}

type AccountResponse struct {
	Status        string          `json:"status"`
	UserID        string          `json:"userId"`
	Balance       decimal.Decimal `json:"balance"`
	BorrowedBooks []string        `json:"borrowedBooks"`
}

type BorrowResponse struct {
	Status      string       `json:"status"`
	Message     string       `json:"message"`
	Transaction *Transaction `json:"transaction"`
}

type ReturnResponse struct {
	Status      string       `json:"status"`
	Message     string       `json:"message"`
	Transaction *Transaction `json:"transaction"`
}

type DepositResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Balance decimal.Decimal `json:"balance"`
	Deposit *Deposit        `json:"deposit"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
