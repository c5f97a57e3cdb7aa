package notify_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rongwang/library-rental/internal/metrics"
	"github.com/rongwang/library-rental/internal/notify"
	"github.com/rongwang/library-rental/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage(userID string) notify.Message {
	return notify.DepositMessage(
		notify.Recipient{UserID: userID, Username: userID, Email: userID + "@example.com"},
		decimal.RequireFromString("25"),
		decimal.RequireFromString("35"),
		time.Now(),
	)
}

func TestDispatcherDeliversAll(t *testing.T) {
	var (
		mu        sync.Mutex
		delivered []string
	)
	notifier := notify.NotifierFunc(func(ctx context.Context, msg notify.Message) error {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, msg.UserID)
		return nil
	})

	m := metrics.New(prometheus.NewRegistry())
	d := notify.NewDispatcher(notifier, notify.DispatcherOptions{QueueSize: 10, Workers: 3}, utils.Discard(), m)

	for _, id := range []string{"a", "b", "c", "d"} {
		assert.True(t, d.Publish(testMessage(id)))
	}

	require.NoError(t, d.Close(context.Background()))

	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, delivered)
	assert.Equal(t, 4.0, metrics.CounterValue(m.Notifications, metrics.ResultOK))
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	notifier := notify.NotifierFunc(func(ctx context.Context, msg notify.Message) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})

	m := metrics.New(prometheus.NewRegistry())
	d := notify.NewDispatcher(notifier, notify.DispatcherOptions{QueueSize: 1, Workers: 1, Timeout: time.Minute}, utils.Discard(), m)

	// The worker holds the first message, the queue holds the second
	require.True(t, d.Publish(testMessage("first")))
	<-started
	require.True(t, d.Publish(testMessage("second")))

	done := make(chan bool)
	go func() { done <- d.Publish(testMessage("third")) }()

	select {
	case accepted := <-done:
		assert.False(t, accepted, "Publish must drop when the queue is full")
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}

	close(release)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 1.0, metrics.CounterValue(m.Notifications, metrics.ResultDropped))
}

func TestDispatcherSurvivesFailures(t *testing.T) {
	var calls atomic.Int32
	notifier := notify.NotifierFunc(func(ctx context.Context, msg notify.Message) error {
		switch calls.Add(1) {
		case 1:
			return errors.New("smtp down")
		case 2:
			panic("mailer bug")
		}
		return nil
	})

	m := metrics.New(prometheus.NewRegistry())
	d := notify.NewDispatcher(notifier, notify.DispatcherOptions{Workers: 1}, utils.Discard(), m)

	for i := 0; i < 3; i++ {
		require.True(t, d.Publish(testMessage("user")))
	}
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 2.0, metrics.CounterValue(m.Notifications, metrics.ResultError))
	assert.Equal(t, 1.0, metrics.CounterValue(m.Notifications, metrics.ResultOK))
}

func TestDispatcherTimeout(t *testing.T) {
	notifier := notify.NotifierFunc(func(ctx context.Context, msg notify.Message) error {
		<-ctx.Done()
		return ctx.Err()
	})

	m := metrics.New(prometheus.NewRegistry())
	d := notify.NewDispatcher(notifier, notify.DispatcherOptions{Timeout: 10 * time.Millisecond}, utils.Discard(), m)

	require.True(t, d.Publish(testMessage("slow")))
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, 1.0, metrics.CounterValue(m.Notifications, metrics.ResultError))
}

func TestPublishAfterClose(t *testing.T) {
	d := notify.NewDispatcher(notify.NewLogNotifier(utils.Discard()), notify.DispatcherOptions{}, utils.Discard(), nil)
	require.NoError(t, d.Close(context.Background()))

	assert.False(t, d.Publish(testMessage("late")))
	// Closing twice is harmless
	assert.NoError(t, d.Close(context.Background()))
}

func TestMessages(t *testing.T) {
	to := notify.Recipient{UserID: "u1", Username: "alice", Email: "alice@example.com"}
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	borrow := notify.BorrowMessage(to, "Dune", decimal.RequireFromString("20"), at)
	assert.Equal(t, notify.KindBorrow, borrow.Kind)
	assert.Equal(t, "Book Borrow Successful", borrow.Subject)
	assert.Equal(t, "alice@example.com", borrow.Recipient)
	assert.Contains(t, borrow.Body, "20.00")
	assert.Contains(t, borrow.Body, `"Dune"`)

	ret := notify.ReturnMessage(to, "Dune", decimal.RequireFromString("20"), at)
	assert.Equal(t, "Book Return Successful", ret.Subject)
	assert.Contains(t, ret.Body, "20.00 has been credited")

	dep := notify.DepositMessage(to, decimal.RequireFromString("25"), decimal.RequireFromString("35"), at)
	assert.Equal(t, "Deposit Successful", dep.Subject)
	assert.Contains(t, dep.Body, "Your balance is now 35.00")
}
