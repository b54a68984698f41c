package entitlement

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/orris-inc/entitlementsync/internal/domain/entitlement"
	"github.com/orris-inc/entitlementsync/internal/shared/goroutine"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
)

// TransactionSource provides the billing authority's live update stream.
type TransactionSource interface {
	TransactionUpdates(ctx context.Context) (<-chan domain.VerificationResult, error)
}

// TransactionHandler processes one update from the stream.
type TransactionHandler interface {
	Execute(ctx context.Context, result domain.VerificationResult) error
}

// TransactionListener consumes the live transaction stream on a single
// worker goroutine and hands every update to the reconciliation pipeline.
type TransactionListener struct {
	source  TransactionSource
	handler TransactionHandler
	logger  logger.Interface

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTransactionListener creates a new TransactionListener
func NewTransactionListener(source TransactionSource, handler TransactionHandler, log logger.Interface) *TransactionListener {
	return &TransactionListener{
		source:  source,
		handler: handler,
		logger:  log,
	}
}

// Start subscribes to the update stream. Calling Start on a running
// listener is a no-op.
func (l *TransactionListener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	updates, err := l.source.TransactionUpdates(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to transaction updates: %w", err)
	}

	done := make(chan struct{})
	l.cancel = cancel
	l.done = done

	goroutine.SafeGo(l.logger, "transaction-listener", func() {
		defer close(done)
		l.run(runCtx, updates)
	})

	l.logger.Infow("transaction listener started")
	return nil
}

func (l *TransactionListener) run(ctx context.Context, updates <-chan domain.VerificationResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-updates:
			if !ok {
				l.logger.Warnw("transaction update stream closed")
				return
			}
			if err := l.handler.Execute(ctx, result); err != nil {
				l.logger.Warnw("transaction update not reconciled",
					"product_id", result.Transaction.ProductID,
					"transaction_id", result.Transaction.ID,
					"error", err,
				)
			}
		}
	}
}

// Stop unsubscribes and waits for the worker to exit. Safe to call more
// than once.
func (l *TransactionListener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
	l.logger.Infow("transaction listener stopped")
}
