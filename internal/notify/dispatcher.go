package notify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"enlist/internal/platform/metrics"
	"enlist/internal/submission/models"
)

const (
	defaultTimeout     = 5 * time.Second
	defaultMaxInFlight = 16
)

// Dispatcher runs relay sends in the background so a submission response is
// never held up by a slow or failing sink. Every sink has its own breaker, so
// one sink failing never holds back delivery to the others.
type Dispatcher struct {
	sinks   []*sink
	names   string
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type sink struct {
	relay   Relay
	breaker *CircuitBreaker
}

type dispatcherConfig struct {
	timeout          time.Duration
	maxInFlight      int
	breakerThreshold int
	breakerCooldown  time.Duration
	logger           *slog.Logger
	metrics          *metrics.Metrics
}

// Option configures a Dispatcher.
type Option func(*dispatcherConfig)

// WithTimeout bounds each send attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *dispatcherConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxInFlight caps concurrent records; records beyond the cap are dropped.
func WithMaxInFlight(n int) Option {
	return func(c *dispatcherConfig) {
		if n > 0 {
			c.maxInFlight = n
		}
	}
}

// WithBreakerPolicy sets the failure threshold and open period used for
// each sink's breaker.
func WithBreakerPolicy(threshold int, cooldown time.Duration) Option {
	return func(c *dispatcherConfig) {
		c.breakerThreshold = threshold
		c.breakerCooldown = cooldown
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *dispatcherConfig) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *dispatcherConfig) {
		c.metrics = m
	}
}

// NewDispatcher delivers every record to each of relays.
func NewDispatcher(relays []Relay, opts ...Option) *Dispatcher {
	cfg := dispatcherConfig{
		timeout:     defaultTimeout,
		maxInFlight: defaultMaxInFlight,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	sinks := make([]*sink, len(relays))
	names := make([]string, len(relays))
	for i, r := range relays {
		sinks[i] = &sink{relay: r, breaker: NewCircuitBreaker(cfg.breakerThreshold, cfg.breakerCooldown)}
		names[i] = r.Name()
	}
	return &Dispatcher{
		sinks:   sinks,
		names:   strings.Join(names, ","),
		sem:     semaphore.NewWeighted(int64(cfg.maxInFlight)),
		timeout: cfg.timeout,
		logger:  cfg.logger,
		metrics: cfg.metrics,
	}
}

// Dispatch starts one delivery attempt for record and returns immediately.
// The attempt outlives ctx's cancellation but keeps its values.
func (d *Dispatcher) Dispatch(ctx context.Context, record *models.ActionRecord) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(ctx, record, "shutting_down")
		return
	}
	if !d.sem.TryAcquire(1) {
		d.drop(ctx, record, "saturated")
		return
	}

	d.wg.Add(1)
	d.metrics.AddNotifyInFlight(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		defer d.metrics.AddNotifyInFlight(-1)

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		d.deliver(sendCtx, record)
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, record *models.ActionRecord) {
	if len(d.sinks) == 1 {
		d.send(ctx, d.sinks[0], record)
		return
	}
	var g errgroup.Group
	for _, sk := range d.sinks {
		g.Go(func() error {
			d.send(ctx, sk, record)
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) send(ctx context.Context, sk *sink, record *models.ActionRecord) {
	name := sk.relay.Name()
	if !sk.breaker.Allow() {
		d.metrics.IncrementNotification(name, "circuit_open")
		d.logger.WarnContext(ctx, "notification_skipped",
			"sink", name,
			"record_id", record.ID.String(),
			"reason", "circuit_open",
		)
		return
	}

	start := time.Now()
	err := sk.relay.Send(ctx, record)
	if err != nil {
		sk.breaker.RecordFailure()
		d.metrics.IncrementNotification(name, "failed")
		d.logger.ErrorContext(ctx, "notification_failed",
			"log_type", "audit",
			"sink", name,
			"record_id", record.ID.String(),
			"identity_id", record.Applicant.ID.String(),
			"duration", time.Since(start),
			"error", err,
		)
		return
	}
	sk.breaker.RecordSuccess()
	d.metrics.IncrementNotification(name, "delivered")
	d.logger.DebugContext(ctx, "notification_delivered",
		"sink", name,
		"record_id", record.ID.String(),
		"duration", time.Since(start),
	)
}

func (d *Dispatcher) drop(ctx context.Context, record *models.ActionRecord, reason string) {
	d.metrics.IncrementNotifyDropped()
	d.logger.WarnContext(ctx, "notification_dropped",
		"log_type", "audit",
		"sinks", d.names,
		"record_id", record.ID.String(),
		"identity_id", record.Applicant.ID.String(),
		"reason", reason,
	)
}

// Shutdown stops accepting records and waits for in-flight sends or ctx.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
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
