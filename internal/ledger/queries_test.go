package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/produce-ledger/internal/inventory"
	"github.com/odyssey-erp/produce-ledger/internal/ledger"
	"github.com/odyssey-erp/produce-ledger/internal/ledger/memory"
)

// gatedRepo holds the first read open until released and, like a database
// driver, fails it when its context is already done.
type gatedRepo struct {
	*memory.Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedRepo) ReadTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	if err := ctx.Err(); err != nil {
		return err
	}
	return g.Store.ReadTx(ctx, fn)
}

func TestAvailableStockSharedReadSurvivesCancelledCaller(t *testing.T) {
	f := newFixture(t)
	f.procure(t, day(10), "alphonso", "12", "10")

	repo := &gatedRepo{Store: f.store, entered: make(chan struct{}), release: make(chan struct{})}
	svc := ledger.NewService(repo, ledger.ServiceConfig{
		Clock: func() time.Time { return time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC) },
	})

	type outcome struct {
		rows []inventory.Availability
		err  error
	}
	first, cancel := context.WithCancel(context.Background())
	firstDone := make(chan outcome, 1)
	go func() {
		rows, err := svc.AvailableStock(first, f.item, day(10))
		firstDone <- outcome{rows, err}
	}()
	<-repo.entered

	secondDone := make(chan outcome, 1)
	go func() {
		rows, err := svc.AvailableStock(context.Background(), f.item, day(10))
		secondDone <- outcome{rows, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	got := <-firstDone
	require.ErrorIs(t, got.err, context.Canceled)

	close(repo.release)
	got = <-secondDone
	require.NoError(t, got.err)
	require.Len(t, got.rows, 1)
	requireDecimal(t, "12", got.rows[0].Stock)

	got.rows[0].Variety = "changed"
	again, err := svc.AvailableStock(context.Background(), f.item, day(10))
	require.NoError(t, err)
	require.Equal(t, "alphonso", again[0].Variety)
}
