package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rongwang/library-rental/internal/metrics"
	"github.com/rongwang/library-rental/internal/utils"
)

// Publisher accepts messages for asynchronous delivery
type Publisher interface {
	Publish(msg Message) bool
}

// DispatcherOptions configures a Dispatcher
type DispatcherOptions struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

// Dispatcher delivers messages on background workers. Publish never blocks:
// when the queue is full the message is dropped. Delivery errors are logged
// and counted, nothing is reported back to the publisher.
type Dispatcher struct {
	notifier Notifier
	logger   *utils.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Message
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher and starts its workers
func NewDispatcher(notifier Notifier, opts DispatcherOptions, logger *utils.Logger, m *metrics.Metrics) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	d := &Dispatcher{
		notifier: notifier,
		logger:   logger,
		metrics:  m,
		timeout:  opts.Timeout,
		queue:    make(chan Message, opts.QueueSize),
	}

	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}

	return d
}

// Publish queues msg and reports whether it was accepted
func (d *Dispatcher) Publish(msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.record(metrics.ResultDropped)
		d.logger.Warn("notification dropped, dispatcher closed", "kind", msg.Kind, "user_id", msg.UserID)
		return false
	}

	select {
	case d.queue <- msg:
		return true
	default:
		d.record(metrics.ResultDropped)
		d.logger.Warn("notification dropped, queue full", "kind", msg.Kind, "user_id", msg.UserID)
		return false
	}
}

// Close stops accepting messages and waits until the queued ones are
// delivered or ctx is done
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()

	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("notifier panic: %v", r)
			}
		}()
		return d.notifier.Notify(ctx, msg)
	}()

	if err != nil {
		d.record(metrics.ResultError)
		d.logger.Error("notification failed",
			"kind", msg.Kind,
			"user_id", msg.UserID,
			"recipient", msg.Recipient,
			"error", err,
		)
		return
	}

	d.record(metrics.ResultOK)
}

func (d *Dispatcher) record(result string) {
	if d.metrics != nil {
		d.metrics.Notifications.WithLabelValues(result).Inc()
	}
}
