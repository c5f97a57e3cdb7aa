package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rongwang/library-rental/internal/api"
	"github.com/rongwang/library-rental/internal/metrics"
	"github.com/rongwang/library-rental/internal/models"
	"github.com/rongwang/library-rental/internal/notify"
	"github.com/rongwang/library-rental/internal/repository"
	"github.com/rongwang/library-rental/internal/service"
	"github.com/rongwang/library-rental/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	TestJWTSecret = "test-secret-key"
	TestPassword  = "testpassword"
)

// Outbox collects published notifications
type Outbox struct {
	ch chan notify.Message
}

func (o *Outbox) Publish(msg notify.Message) bool {
	select {
	case o.ch <- msg:
		return true
	default:
		return false
	}
}

// Messages returns what has been published so far
func (o *Outbox) Messages() []notify.Message {
	var out []notify.Message
	for {
		select {
		case msg := <-o.ch:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// TestContext holds all dependencies for tests
type TestContext struct {
	Router      *gin.Engine
	Repository  *repository.MemoryRepository
	Service     service.Service
	Registry    *prometheus.Registry
	Outbox      *Outbox
	TestUserID  string
	TestUserJWT string
}

// SetupTestContext creates a router backed by an in-memory repository and
// one registered user
func SetupTestContext(t *testing.T) *TestContext {
	t.Helper()

	repo := repository.NewMemoryRepository()
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	outbox := &Outbox{ch: make(chan notify.Message, 1024)}

	svc := service.NewDefaultService(repo, TestJWTSecret,
		service.WithPublisher(outbox),
		service.WithMetrics(m),
	)

	handler := api.NewHandler(svc, utils.Discard(),
		api.WithHealthCheck(repo.Ping),
		api.WithGatherer(registry),
	)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(api.MetricsMiddleware(m), api.JWTSecret(TestJWTSecret))
	handler.SetupRoutes(router)

	testCtx := &TestContext{
		Router:     router,
		Repository: repo,
		Service:    svc,
		Registry:   registry,
		Outbox:     outbox,
	}
	testCtx.TestUserID, testCtx.TestUserJWT = testCtx.CreateTestUser(t, "testuser")

	return testCtx
}

// CreateTestUser signs up a user through the service and logs them in
func (tc *TestContext) CreateTestUser(t *testing.T, username string) (string, string) {
	t.Helper()
	ctx := context.Background()

	_, err := tc.Service.SignUp(ctx, models.SignUpRequest{
		Username:  username,
		Email:     username + "@example.com",
		Password1: TestPassword,
		Password2: TestPassword,
	})
	require.NoError(t, err, "Failed to create test user")

	resp, err := tc.Service.Login(ctx, models.LoginRequest{Username: username, Password: TestPassword})
	require.NoError(t, err, "Failed to log in test user")

	return resp.UserID, resp.Token
}

// CreateTestBook adds a book at the given price
func (tc *TestContext) CreateTestBook(t *testing.T, title, price string, categoryIDs ...string) *models.Book {
	t.Helper()

	book, err := tc.Service.CreateBook(context.Background(), models.CreateBookRequest{
		Title:          title,
		BorrowingPrice: decimal.RequireFromString(price),
		CategoryIDs:    categoryIDs,
	})
	require.NoError(t, err, "Failed to create test book")

	return book
}

// Fund deposits amount into the account of userID
func (tc *TestContext) Fund(t *testing.T, userID, amount string) {
	t.Helper()

	_, err := tc.Service.Deposit(context.Background(), userID, decimal.RequireFromString(amount))
	require.NoError(t, err, "Failed to fund account")
}

// Balance returns the current balance of userID
func (tc *TestContext) Balance(t *testing.T, userID string) decimal.Decimal {
	t.Helper()

	account, err := tc.Service.GetAccount(context.Background(), userID)
	require.NoError(t, err)

	return account.Balance
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// AuthHeaders returns headers with Authorization token
func AuthHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", token),
	}
}

// DecodeBody unmarshals the recorded response into v
func DecodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), "body: %s", w.Body.String())
}
