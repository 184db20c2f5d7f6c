package mailer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

const sendTimeout = 15 * time.Second

// Sender delivers a message synchronously.
type Sender interface {
	SendNow(ctx context.Context, to, subject, html string) error
}

type task struct {
	ctx     context.Context
	to      string
	subject string
	html    string
}

// Dispatcher queues outbound mail onto a fixed worker pool. Send never blocks;
// a full queue drops the message with an error log.
type Dispatcher struct {
	sender Sender
	logg   *logger.Logger
	queue  chan task

	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	stopOnce sync.Once
}

func NewDispatcher(sender Sender, workers, queueSize int, logg *logger.Logger) (*Dispatcher, error) {
	if sender == nil {
		return nil, errors.New("mail sender is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	d := &Dispatcher{
		sender: sender,
		logg:   logg,
		queue:  make(chan task, queueSize),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d, nil
}

// Send enqueues a message. Failures are logged and never returned.
func (d *Dispatcher) Send(ctx context.Context, to, subject, html string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logg.Warn(ctx, "mail dispatcher closed, message dropped")
		return
	}
	t := task{ctx: context.WithoutCancel(ctx), to: to, subject: subject, html: html}
	select {
	case d.queue <- t:
	default:
		d.logg.Error(d.logg.WithField(ctx, "subject", subject), "mail queue full, message dropped", errors.New("queue full"))
	}
}

// Close stops accepting mail and waits for queued messages to be sent.
func (d *Dispatcher) Close() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for t := range d.queue {
		ctx, cancel := context.WithTimeout(t.ctx, sendTimeout)
		if err := d.sender.SendNow(ctx, t.to, t.subject, t.html); err != nil {
			d.logg.Error(d.logg.WithField(ctx, "subject", t.subject), "mail delivery failed", err)
		}
		cancel()
	}
}

// LogSender stands in for SendGrid when no API key is configured.
type LogSender struct {
	logg *logger.Logger
}

func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

func (s *LogSender) SendNow(ctx context.Context, to, subject, _ string) error {
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"to": to, "subject": subject}), "mail delivery disabled, message logged")
	return nil
}
