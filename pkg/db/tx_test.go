package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTransactor_RollsBackInReverse(t *testing.T) {
	// Arrange
	tx := NewMemoryTransactor()
	var log []string
	failure := errors.New("boom")

	// Act
	err := tx.WithinTransaction(context.Background(), func(ctx context.Context) error {
		log = append(log, "write a")
		RecordUndo(ctx, func() { log = append(log, "undo a") })
		log = append(log, "write b")
		RecordUndo(ctx, func() { log = append(log, "undo b") })
		return failure
	})

	// Assert
	require.ErrorIs(t, err, failure)
	assert.Equal(t, []string{"write a", "write b", "undo b", "undo a"}, log)
}

func TestMemoryTransactor_CommitKeepsWrites(t *testing.T) {
	tx := NewMemoryTransactor()
	undone := false

	err := tx.WithinTransaction(context.Background(), func(ctx context.Context) error {
		RecordUndo(ctx, func() { undone = true })
		return nil
	})

	require.NoError(t, err)
	assert.False(t, undone)
}

func TestMemoryTransactor_NestedJoinsOuter(t *testing.T) {
	tx := NewMemoryTransactor()
	undone := 0

	err := tx.WithinTransaction(context.Background(), func(ctx context.Context) error {
		RecordUndo(ctx, func() { undone++ })
		inner := tx.WithinTransaction(ctx, func(ctx context.Context) error {
			RecordUndo(ctx, func() { undone++ })
			return nil
		})
		require.NoError(t, inner)
		return errors.New("outer fails")
	})

	require.Error(t, err)
	assert.Equal(t, 2, undone)
}

func TestRecordUndo_OutsideTransactionIsDropped(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordUndo(context.Background(), func() {})
	})
}
