package db

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Transactor runs fn as one unit of work. Nested calls join the outer unit.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

// GormTransactor keeps the open *gorm.DB transaction in the context
type GormTransactor struct {
	db *gorm.DB
}

// NewGormTransactor creates a transactor over db
func NewGormTransactor(db *gorm.DB) *GormTransactor {
	return &GormTransactor{db: db}
}

// WithinTransaction commits when fn returns nil and rolls back otherwise
func (t *GormTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}

	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn returns the transaction bound to ctx, or base when there is none
func Conn(ctx context.Context, base *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return base.WithContext(ctx)
}

type undoKey struct{}

type undoJournal struct {
	mu    sync.Mutex
	steps []func()
}

// MemoryTransactor gives in-memory repositories all-or-nothing semantics
// by replaying recorded undo steps in reverse when fn fails.
type MemoryTransactor struct{}

// NewMemoryTransactor creates a memory transactor
func NewMemoryTransactor() *MemoryTransactor {
	return &MemoryTransactor{}
}

// WithinTransaction runs fn and undoes its recorded writes on error
func (MemoryTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(undoKey{}).(*undoJournal); ok {
		return fn(ctx)
	}

	journal := &undoJournal{}
	err := fn(context.WithValue(ctx, undoKey{}, journal))
	if err != nil {
		journal.mu.Lock()
		for i := len(journal.steps) - 1; i >= 0; i-- {
			journal.steps[i]()
		}
		journal.mu.Unlock()
	}
	return err
}

// RecordUndo registers a compensating step for the current memory transaction.
// Outside a transaction the write is final and the step is dropped.
func RecordUndo(ctx context.Context, undo func()) {
	journal, ok := ctx.Value(undoKey{}).(*undoJournal)
	if !ok {
		return
	}
	journal.mu.Lock()
	journal.steps = append(journal.steps, undo)
	journal.mu.Unlock()
}
