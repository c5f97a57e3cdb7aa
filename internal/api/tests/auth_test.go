package api_test

import (
	"net/http"
	"testing"

	"github.com/rongwang/library-rental/internal/api/testutils"
	"github.com/rongwang/library-rental/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestSignup(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)

	// Test case 1: Successful signup
	signupReq := models.SignUpRequest{
		Username:  "newuser",
		Email:     "newuser@example.com",
		Password1: "Password123",
		Password2: "Password123",
	}

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/signup",
		signupReq,
		nil,
	)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp models.AuthResponse
	testutils.DecodeBody(t, w, &resp)
	assert.NotEmpty(t, resp.UserID)
	assert.Equal(t, "newuser", resp.Username)

	// The account starts empty
	assert.True(t, testCtx.Balance(t, resp.UserID).IsZero())

	// Test case 2: Duplicate username
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/signup",
		signupReq,
		nil,
	)

	assert.Equal(t, http.StatusConflict, w.Code)

	// Test case 3: Invalid request (missing required fields)
	invalidReq := models.SignUpRequest{
		Username: "invalid",
	}

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/signup",
		invalidReq,
		nil,
	)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Test case 4: Passwords don't match
	mismatchReq := models.SignUpRequest{
		Username:  "mismatch",
		Email:     "mismatch@example.com",
		Password1: "Password123",
		Password2: "Password124",
	}

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/signup",
		mismatchReq,
		nil,
	)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var errResp models.ErrorResponse
	testutils.DecodeBody(t, w, &errResp)
	assert.Equal(t, "VALIDATION_ERROR", errResp.Code)
}

func TestLogin(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)

	// Test case 1: Successful login
	loginReq := models.LoginRequest{
		Username: "testuser",
		Password: testutils.TestPassword,
	}

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/login",
		loginReq,
		nil,
	)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.AuthResponse
	testutils.DecodeBody(t, w, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, testCtx.TestUserID, resp.UserID)

	// The token opens protected routes
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/api/account",
		nil,
		testutils.AuthHeaders(resp.Token),
	)
	assert.Equal(t, http.StatusOK, w.Code)

	// Test case 2: Invalid credentials
	invalidLoginReq := models.LoginRequest{
		Username: "testuser",
		Password: "wrongpassword",
	}

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/login",
		invalidLoginReq,
		nil,
	)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Test case 3: User not found
	nonExistentUserReq := models.LoginRequest{
		Username: "nonexistent",
		Password: testutils.TestPassword,
	}

	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/auth/login",
		nonExistentUserReq,
		nil,
	)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)

	tests := []struct {
		name    string
		headers map[string]string
	}{
		{"missing header", nil},
		{"wrong scheme", map[string]string{"Authorization": "Token " + testCtx.TestUserJWT}},
		{"garbage token", testutils.AuthHeaders("not-a-jwt")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/account", nil, tt.headers)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}
