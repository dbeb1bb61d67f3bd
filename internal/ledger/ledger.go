// Package ledger implements the transactional running-balance pattern:
// every balance-affecting write pairs an append-only entry insert with the
// owner's cached balance update in a single database transaction.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aurum-saas/aurum-server/internal/models"
)

// ErrOwnerNotFound is returned when the balance owner does not exist in the
// tenant's schema. No transaction is started in that case.
var ErrOwnerNotFound = errors.New("balance owner not found")

// ErrUnknownEntryType is returned for an entry kind outside the closed set.
var ErrUnknownEntryType = errors.New("unknown ledger entry type")

// ConnectionSource supplies schema-bound tenant connections. Satisfied by
// *tenant.Registry.
type ConnectionSource interface {
	WithConnection(ctx context.Context, tenantID uuid.UUID, fn func(db *sql.DB) error) error
}

// Book applies ledger entries for one owner table with a running balance.
// Table and column names are fixed at construction, so the same pattern
// serves any owner entity (customers today, suppliers tomorrow).
type Book struct {
	conns ConnectionSource

	ownerTable    string
	balanceColumn string
	entryTable    string
}

// NewBook creates a ledger book for an owner table
func NewBook(conns ConnectionSource, ownerTable, balanceColumn, entryTable string) *Book {
	return &Book{
		conns:         conns,
		ownerTable:    ownerTable,
		balanceColumn: balanceColumn,
		entryTable:    entryTable,
	}
}

// NewCustomerBook creates the book over the per-tenant customers table
func NewCustomerBook(conns ConnectionSource) *Book {
	return NewBook(conns, "customers", "current_balance", "ledger_entries")
}

// ComputeBalance applies one entry to a running balance. Debits add, credits
// subtract, an opening balance replaces, an adjustment adds its signed amount.
func ComputeBalance(current int64, kind models.EntryType, amount int64) (int64, error) {
	switch kind {
	case models.EntryDebit:
		return current + amount, nil
	case models.EntryCredit:
		return current - amount, nil
	case models.EntryOpeningBalance:
		return amount, nil
	case models.EntryAdjustment:
		return current + amount, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownEntryType, kind)
	}
}

// ApplyEntry records a ledger entry for an owner and moves the cached
// balance, atomically. Readers never observe the entry without the updated
// balance or vice versa.
func (b *Book) ApplyEntry(ctx context.Context, tenantID, ownerID uuid.UUID, kind models.EntryType, amount int64, description string) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry

	err := b.conns.WithConnection(ctx, tenantID, func(db *sql.DB) error {
		// Owner lookup happens before any transaction so a missing owner
		// costs nothing but a read.
		var current int64
		query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", b.balanceColumn, b.ownerTable)
		if err := db.QueryRowContext(ctx, query, ownerID).Scan(&current); err != nil {
			if err == sql.ErrNoRows {
				return ErrOwnerNotFound
			}
			return fmt.Errorf("load owner: %w", err)
		}

		// Unknown entry kinds are rejected before a transaction is opened.
		if _, err := ComputeBalance(current, kind, amount); err != nil {
			return err
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		// Re-read under a row lock; the pre-transaction read only established
		// existence. Concurrent entries for the same owner serialize here,
		// so neither computes its balance from a stale value.
		if err := tx.QueryRowContext(ctx, query+" FOR UPDATE", ownerID).Scan(&current); err != nil {
			if err == sql.ErrNoRows {
				return ErrOwnerNotFound
			}
			return fmt.Errorf("lock owner: %w", err)
		}

		newBalance, err := ComputeBalance(current, kind, amount)
		if err != nil {
			return err
		}

		now := time.Now()
		entry = &models.LedgerEntry{
			ID:           uuid.New(),
			CreatedAt:    now,
			OwnerID:      ownerID,
			EntryType:    kind,
			Amount:       amount,
			Description:  description,
			BalanceAfter: newBalance,
		}

		insert := fmt.Sprintf(`
			INSERT INTO %s (id, created_at, owner_id, entry_type, amount, description, balance_after)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`, b.entryTable)
		if _, err := tx.ExecContext(ctx, insert,
			entry.ID, entry.CreatedAt, entry.OwnerID, entry.EntryType,
			entry.Amount, entry.Description, entry.BalanceAfter,
		); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}

		update := fmt.Sprintf("UPDATE %s SET %s = $1, updated_at = $2 WHERE id = $3",
			b.ownerTable, b.balanceColumn)
		if _, err := tx.ExecContext(ctx, update, newBalance, now, ownerID); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		return tx.Commit()
	})

	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("tenant_id", tenantID.String()).
		Str("owner_id", ownerID.String()).
		Str("entry_type", string(kind)).
		Int64("balance_after", entry.BalanceAfter).
		Msg("Ledger entry applied")

	return entry, nil
}

// ListEntries returns the most recent entries for an owner, newest first.
func (b *Book) ListEntries(ctx context.Context, tenantID, ownerID uuid.UUID, limit, offset int) ([]*models.LedgerEntry, error) {
	var entries []*models.LedgerEntry

	err := b.conns.WithConnection(ctx, tenantID, func(db *sql.DB) error {
		query := fmt.Sprintf(`
			SELECT id, created_at, owner_id, entry_type, amount, description, balance_after
			FROM %s
			WHERE owner_id = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`, b.entryTable)

		rows, err := db.QueryContext(ctx, query, ownerID, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			entry := &models.LedgerEntry{}
			if err := rows.Scan(
				&entry.ID, &entry.CreatedAt, &entry.OwnerID, &entry.EntryType,
				&entry.Amount, &entry.Description, &entry.BalanceAfter,
			); err != nil {
				return err
			}
			entries = append(entries, entry)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, err
	}
	return entries, nil
}
