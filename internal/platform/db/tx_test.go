package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	serialization := &pgconn.PgError{Code: "40001"}
	deadlock := &pgconn.PgError{Code: "40P01"}
	unique := &pgconn.PgError{Code: "23505"}

	require.True(t, IsRetryable(serialization))
	require.True(t, IsRetryable(fmt.Errorf("ledger: stamp: %w", deadlock)))
	require.False(t, IsRetryable(unique))
	require.False(t, IsRetryable(errors.New("boom")))
	require.False(t, IsRetryable(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, IsUniqueViolation(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "23505"})))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "40001"}))
}

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

type fakeBeginner struct {
	opts []pgx.TxOptions
	txs  []*fakeTx
}

func (b *fakeBeginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = append(b.opts, opts)
	tx := &fakeTx{}
	b.txs = append(b.txs, tx)
	return tx, nil
}

func TestWithTxOptionsReplaysSerializationFailure(t *testing.T) {
	pool := &fakeBeginner{}
	opts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

	calls := 0
	err := WithTxOptions(context.Background(), pool, opts, func(pgx.Tx) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("stamp: %w", &pgconn.PgError{Code: "40001"})
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, []pgx.TxOptions{opts, opts}, pool.opts)
	require.False(t, pool.txs[0].committed)
	require.True(t, pool.txs[1].committed)
}

func TestWithTxDefaultsToRepeatableRead(t *testing.T) {
	pool := &fakeBeginner{}
	boom := errors.New("boom")

	err := WithTx(context.Background(), pool, func(pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Len(t, pool.opts, 1)
	require.Equal(t, pgx.RepeatableRead, pool.opts[0].IsoLevel)
	require.True(t, pool.txs[0].rolledBack)
}
