package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/library-rental/internal/models"
)

// SignUp registers a user and opens their account
func (h *Handler) SignUp(c *gin.Context) {
	var req models.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.service.SignUp(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Login exchanges credentials for an access token
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetAccount(c *gin.Context) {
	userID := currentUser(c)

	account, err := h.service.GetAccount(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	borrowed := account.BorrowedBooks
	if borrowed == nil {
		borrowed = []string{}
	}

	c.JSON(http.StatusOK, models.AccountResponse{
		Status:        "success",
		UserID:        account.UserID,
		Balance:       account.Balance,
		BorrowedBooks: borrowed,
	})
}
