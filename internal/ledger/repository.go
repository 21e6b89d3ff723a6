package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/produce-ledger/internal/balances"
	"github.com/odyssey-erp/produce-ledger/internal/platform/db"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

type txRepo struct {
	tx pgx.Tx
}

var _ TxRepository = (*txRepo)(nil)

// WithTx wraps callback in a read-committed transaction. A repeatable-read
// snapshot would be taken by the first statement, before advisory lock waits
// end, and miss the rows the previous holder committed.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// ReadTx wraps callback in a read-only repeatable-read transaction.
func (r *Repository) ReadTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	return db.WithTxOptions(ctx, r.pool, opts, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Lock takes transaction-scoped advisory locks in sorted order so that two
// cascades touching overlapping keys cannot deadlock.
func (t *txRepo) Lock(ctx context.Context, keys ...string) error {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	for _, key := range sorted {
		if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("advisory lock %q: %w", key, err)
		}
	}
	return nil
}

func partyTable(role shared.Role) (string, error) {
	switch role {
	case shared.RoleSupplier:
		return "suppliers", nil
	case shared.RoleSeller:
		return "sellers", nil
	default:
		return "", shared.Invalid("role", "unknown role %q", role)
	}
}

func (t *txRepo) ItemExists(ctx context.Context, itemID int64) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, itemID).Scan(&ok)
	return ok, err
}

func (t *txRepo) PartyExists(ctx context.Context, role shared.Role, partyID int64) (bool, error) {
	table, err := partyTable(role)
	if err != nil {
		return false, err
	}
	var ok bool
	err = t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, partyID).Scan(&ok)
	return ok, err
}

func (t *txRepo) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO items (name, quantity_kind, unit_name, active) VALUES ($1, $2, $3, $4) RETURNING id`,
		item.Name, string(item.QuantityKind), item.UnitName, item.Active).Scan(&id)
	return id, err
}

func (t *txRepo) InsertParty(ctx context.Context, party Party) (int64, error) {
	table, err := partyTable(party.Role)
	if err != nil {
		return 0, err
	}
	var id int64
	err = t.tx.QueryRow(ctx, `INSERT INTO `+table+` (name, contact, active) VALUES ($1, $2, $3) RETURNING id`,
		party.Name, party.Contact, party.Active).Scan(&id)
	return id, err
}

const activeSupplierPairs = `
SELECT supplier_id, item_id FROM procurement_entries
UNION SELECT supplier_id, item_id FROM supplier_payments
UNION SELECT supplier_id, item_id FROM damage_entries
UNION SELECT party_id, item_id FROM opening_balances WHERE party_role = 'supplier'
UNION SELECT party_id, item_id FROM outstanding_balances WHERE party_role = 'supplier'
ORDER BY 1, 2`

const activeSellerPairs = `
SELECT seller_id, item_id FROM sales_entries
UNION SELECT seller_id, item_id FROM seller_payments
UNION SELECT party_id, item_id FROM opening_balances WHERE party_role = 'seller'
UNION SELECT party_id, item_id FROM outstanding_balances WHERE party_role = 'seller'
ORDER BY 1, 2`

func (t *txRepo) ActivePairs(ctx context.Context, role shared.Role) ([]balances.Pair, error) {
	query := activeSupplierPairs
	if role == shared.RoleSeller {
		query = activeSellerPairs
	}
	rows, err := t.tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pairs []balances.Pair
	for rows.Next() {
		p := balances.Pair{Role: role}
		if err := rows.Scan(&p.PartyID, &p.ItemID); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// notFound translates pgx.ErrNoRows into the shared not-found error.
func notFound(err error, entity string, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NotFound(entity, id)
	}
	return err
}

// sinceDate returns nil for a zero time so that optional date filters can be
// written as ($n::date IS NULL OR col >= $n).
func sinceDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return shared.DateOf(t)
}

func requireAffected(tag pgconn.CommandTag, entity string, id int64) error {
	if tag.RowsAffected() == 0 {
		return shared.NotFound(entity, id)
	}
	return nil
}
