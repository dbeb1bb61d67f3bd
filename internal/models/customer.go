package models

import (
	"time"

	"github.com/google/uuid"
)

// Customer represents a customer row inside a tenant schema.
//
// Monetary amounts are stored in minor currency units (paise).
type Customer struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	Name    string `json:"name" db:"name"`
	Phone   string `json:"phone,omitempty" db:"phone"`
	Email   string `json:"email,omitempty" db:"email"`
	Address string `json:"address,omitempty" db:"address"`

	// CurrentBalance caches the running ledger balance; it is only ever
	// mutated together with a ledger entry insert, in one transaction.
	CurrentBalance int64 `json:"currentBalance" db:"current_balance"`
}

// EntryType is the kind of a ledger entry, which decides how it moves
// the owner's running balance.
type EntryType string

const (
	EntryDebit          EntryType = "DEBIT"
	EntryCredit         EntryType = "CREDIT"
	EntryOpeningBalance EntryType = "OPENING_BALANCE"
	EntryAdjustment     EntryType = "ADJUSTMENT"
)

// LedgerEntry is one append-only ledger row inside a tenant schema.
type LedgerEntry struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	OwnerID     uuid.UUID `json:"ownerId" db:"owner_id"`
	EntryType   EntryType `json:"entryType" db:"entry_type"`
	Amount      int64     `json:"amount" db:"amount"`
	Description string    `json:"description,omitempty" db:"description"`

	// BalanceAfter is the owner's running balance after this entry applied.
	BalanceAfter int64 `json:"balanceAfter" db:"balance_after"`
}
