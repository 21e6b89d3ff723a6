// Package memory is an in-process ledger store. It backs the memory store
// driver and the service tests; transactions are serialised by one mutex and
// roll back by discarding a copy of the state.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/odyssey-erp/produce-ledger/internal/balances"
	"github.com/odyssey-erp/produce-ledger/internal/inventory"
	"github.com/odyssey-erp/produce-ledger/internal/ledger"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

type pairKey struct {
	role   shared.Role
	party  int64
	itemID int64
}

type stockKey struct {
	itemID  int64
	variety string
}

type dailyKey struct {
	day     string
	itemID  int64
	variety string
}

type state struct {
	nextID int64

	items   map[int64]ledger.Item
	parties map[pairKey]ledger.Party

	procurementSessions map[int64]ledger.ProcurementSession
	procurementEntries  map[int64]ledger.ProcurementEntry
	salesSessions       map[int64]ledger.SalesSession
	salesEntries        map[int64]ledger.SalesEntry
	supplierPayments    map[int64]ledger.SupplierPayment
	sellerPayments      map[int64]ledger.SellerPayment
	damages             map[int64]ledger.DamageEntry

	openings    map[pairKey]balances.OpeningBalance
	outstanding map[pairKey]balances.Outstanding

	current map[stockKey]inventory.CurrentStock
	daily   map[dailyKey]inventory.DailyRow
	types   map[stockKey]inventory.ItemType
}

func newState() *state {
	return &state{
		items:               make(map[int64]ledger.Item),
		parties:             make(map[pairKey]ledger.Party),
		procurementSessions: make(map[int64]ledger.ProcurementSession),
		procurementEntries:  make(map[int64]ledger.ProcurementEntry),
		salesSessions:       make(map[int64]ledger.SalesSession),
		salesEntries:        make(map[int64]ledger.SalesEntry),
		supplierPayments:    make(map[int64]ledger.SupplierPayment),
		sellerPayments:      make(map[int64]ledger.SellerPayment),
		damages:             make(map[int64]ledger.DamageEntry),
		openings:            make(map[pairKey]balances.OpeningBalance),
		outstanding:         make(map[pairKey]balances.Outstanding),
		current:             make(map[stockKey]inventory.CurrentStock),
		daily:               make(map[dailyKey]inventory.DailyRow),
		types:               make(map[stockKey]inventory.ItemType),
	}
}

// clone copies every table. Sales entries never have their line slices
// mutated in place, so a shallow copy of each map is enough.
func (s *state) clone() *state {
	return &state{
		nextID:              s.nextID,
		items:               maps.Clone(s.items),
		parties:             maps.Clone(s.parties),
		procurementSessions: maps.Clone(s.procurementSessions),
		procurementEntries:  maps.Clone(s.procurementEntries),
		salesSessions:       maps.Clone(s.salesSessions),
		salesEntries:        maps.Clone(s.salesEntries),
		supplierPayments:    maps.Clone(s.supplierPayments),
		sellerPayments:      maps.Clone(s.sellerPayments),
		damages:             maps.Clone(s.damages),
		openings:            maps.Clone(s.openings),
		outstanding:         maps.Clone(s.outstanding),
		current:             maps.Clone(s.current),
		daily:               maps.Clone(s.daily),
		types:               maps.Clone(s.types),
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// Store implements ledger.RepositoryPort in memory.
type Store struct {
	mu    sync.Mutex
	state *state
}

var _ ledger.RepositoryPort = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{state: newState()}
}

// WithTx runs fn against a private copy of the state and publishes the copy
// only when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(ctx, &tx{state: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

// ReadTx runs fn against a private copy of the state and discards it.
func (s *Store) ReadTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, &tx{state: s.state.clone()})
}

// AddItem registers an item and returns its id.
func (s *Store) AddItem(item ledger.Item) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		item.ID = s.state.id()
	}
	s.state.items[item.ID] = item
	return item.ID
}

// AddParty registers a supplier or seller and returns its id.
func (s *Store) AddParty(party ledger.Party) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if party.ID == 0 {
		party.ID = s.state.id()
	}
	s.state.parties[pairKey{role: party.Role, party: party.ID}] = party
	return party.ID
}

func dayKey(date time.Time) string {
	return shared.FormatDate(shared.DateOf(date))
}
