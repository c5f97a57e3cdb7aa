package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/library-rental/internal/models"
)

// Borrow charges the current price of the book to the caller
func (h *Handler) Borrow(c *gin.Context) {
	transaction, err := h.service.Borrow(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.BorrowResponse{
		Status:      "success",
		Message:     "Book borrowed successfully",
		Transaction: transaction,
	})
}

// Return refunds the loan identified by the transaction id in the path
func (h *Handler) Return(c *gin.Context) {
	transaction, err := h.service.Return(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ReturnResponse{
		Status:      "success",
		Message:     "Book returned successfully",
		Transaction: transaction,
	})
}

func (h *Handler) Deposit(c *gin.Context) {
	var req models.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	deposit, err := h.service.Deposit(c.Request.Context(), currentUser(c), req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.DepositResponse{
		Status:  "success",
		Message: "Deposit successful",
		Balance: deposit.BalanceAfter,
		Deposit: deposit,
	})
}

func (h *Handler) ListDeposits(c *gin.Context) {
	deposits, err := h.service.ListDeposits(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	if deposits == nil {
		deposits = []models.Deposit{}
	}
	c.JSON(http.StatusOK, deposits)
}

func (h *Handler) ListTransactions(c *gin.Context) {
	transactions, err := h.service.ListUserTransactions(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	if transactions == nil {
		transactions = []models.Transaction{}
	}
	c.JSON(http.StatusOK, transactions)
}

func (h *Handler) GetTransaction(c *gin.Context) {
	transaction, err := h.service.GetTransaction(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, transaction)
}

func (h *Handler) BorrowHistory(c *gin.Context) {
	entries, err := h.service.BorrowHistory(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	c.JSON(http.StatusOK, entries)
}
