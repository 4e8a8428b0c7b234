package core

import (
	"errors"
	"log"
	"sync"
	"time"

	"gbs/src/types"

	"gorm.io/gorm"
)

const (
	defaultSettlementWorkers = 8
	defaultProviderTimeout   = 30 * time.Second
	defaultMaxRetries        = 3
	defaultRetryBackoff      = 50 * time.Millisecond
)

// Engine owns all drop mutations. Every write to a drop's status, discount or
// value goes through the engine so that per-drop serialization holds: one
// mutex per drop id, taken for the whole of any mutating operation, plus a
// version guard on the UPDATE itself for cross-process safety.
type Engine struct {
	db           *gorm.DB
	provider     PaymentProvider
	audit        AuditSink
	notifier     Notifier
	retryPublish func(dropID uint, outcome types.SettlementOutcome)

	locks sync.Map

	settlementWorkers int
	providerTimeout   time.Duration
	maxRetries        int
	retryBackoff      time.Duration
}

type Option func(*Engine)

func WithAuditSink(s AuditSink) Option {
	return func(e *Engine) { e.audit = s }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithRetryPublisher installs the hook invoked after a settlement pass that
// left failed bookings behind, so a retry message reaches the broker.
func WithRetryPublisher(fn func(dropID uint, outcome types.SettlementOutcome)) Option {
	return func(e *Engine) { e.retryPublish = fn }
}

func WithSettlementWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.settlementWorkers = n
		}
	}
}

func WithProviderTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.providerTimeout = d
		}
	}
}

func NewEngine(db *gorm.DB, provider PaymentProvider, opts ...Option) *Engine {
	e := &Engine{
		db:                db,
		provider:          provider,
		audit:             &nopAuditSink{},
		notifier:          &nopNotifier{},
		settlementWorkers: defaultSettlementWorkers,
		providerTimeout:   defaultProviderTimeout,
		maxRetries:        defaultMaxRetries,
		retryBackoff:      defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// lock returns the mutex serializing mutations for one drop. Iterating
// different drops never contend with each other.
func (e *Engine) lock(dropID uint) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(dropID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// withRetry re-runs fn on version-guard misses with a short backoff. Anything
// other than a concurrency conflict is surfaced immediately.
func (e *Engine) withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(e.retryBackoff * time.Duration(attempt))
		}
		err = fn()
		if err == nil || !isConflict(err) {
			return err
		}
		log.Printf("Retrying after version conflict: attempt=%d\n", attempt+1)
	}
	return err
}

func isConflict(err error) bool {
	return errors.Is(err, types.ErrConcurrencyConflict)
}
