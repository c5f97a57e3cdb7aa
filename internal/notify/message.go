package notify

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Message kinds
const (
	KindBorrow  = "borrow"
	KindReturn  = "return"
	KindDeposit = "deposit"
)

// Message is a confirmation sent to a user after a committed operation
type Message struct {
	Kind      string    `json:"kind"`
	UserID    string    `json:"userId"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// Recipient identifies who a message goes to
type Recipient struct {
	UserID   string
	Username string
	Email    string
}

func BorrowMessage(to Recipient, title string, price decimal.Decimal, at time.Time) Message {
	return Message{
		Kind:      KindBorrow,
		UserID:    to.UserID,
		Recipient: to.Email,
		Subject:   "Book Borrow Successful",
		Body: fmt.Sprintf(
			"Hello %s,\n\nYou have successfully borrowed %q for %s.\n\nThank you!",
			to.Username, title, price.StringFixed(2),
		),
		CreatedAt: at,
	}
}

func ReturnMessage(to Recipient, title string, refunded decimal.Decimal, at time.Time) Message {
	return Message{
		Kind:      KindReturn,
		UserID:    to.UserID,
		Recipient: to.Email,
		Subject:   "Book Return Successful",
		Body: fmt.Sprintf(
			"Hello %s,\n\nYou have successfully returned the book %q. %s has been credited to your account.\n\nThank you!",
			to.Username, title, refunded.StringFixed(2),
		),
		CreatedAt: at,
	}
}

func DepositMessage(to Recipient, amount, balance decimal.Decimal, at time.Time) Message {
	return Message{
		Kind:      KindDeposit,
		UserID:    to.UserID,
		Recipient: to.Email,
		Subject:   "Deposit Successful",
		Body: fmt.Sprintf(
			"Hello %s,\n\nYou have successfully deposited %s to your account. Your balance is now %s.",
			to.Username, amount.StringFixed(2), balance.StringFixed(2),
		),
		CreatedAt: at,
	}
}
