package ledger

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ledgerDB scripts the per-tenant schema behind database/sql: a customers
// table keyed by id with a current_balance column, plus canned ledger rows.
type ledgerDB struct {
	mu sync.Mutex

	balances   map[string]int64
	entryRows  [][]driver.Value
	failExecOn string

	// lockedBalances, when set for an owner, is what the FOR UPDATE re-read
	// returns, standing in for a concurrent writer committing between the
	// two reads.
	lockedBalances map[string]int64

	queries    []string
	execs      []string
	execArgs   [][]driver.Value
	begun      int
	committed  int
	rolledBack int
}

func newLedgerDB() *ledgerDB {
	return &ledgerDB{
		balances:       make(map[string]int64),
		lockedBalances: make(map[string]int64),
	}
}

func (l *ledgerDB) setBalance(id uuid.UUID, balance int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[id.String()] = balance
}

func (l *ledgerDB) open() *sql.DB { return sql.OpenDB(&ledgerConnector{db: l}) }

// conns adapts ledgerDB to the ConnectionSource interface; the tenant id is
// irrelevant here because the fake already is the tenant's schema.
type conns struct{ db *sql.DB }

func (c conns) WithConnection(ctx context.Context, _ uuid.UUID, fn func(db *sql.DB) error) error {
	return fn(c.db)
}

type ledgerConnector struct{ db *ledgerDB }

func (c *ledgerConnector) Connect(context.Context) (driver.Conn, error) {
	return &ledgerConn{db: c.db}, nil
}

func (c *ledgerConnector) Driver() driver.Driver { return ledgerDriver{} }

type ledgerDriver struct{}

func (ledgerDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("open via connector")
}

type ledgerConn struct{ db *ledgerDB }

func (c *ledgerConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *ledgerConn) Close() error { return nil }

func (c *ledgerConn) Begin() (driver.Tx, error) { return c.beginTx() }

func (c *ledgerConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return c.beginTx()
}

func (c *ledgerConn) beginTx() (driver.Tx, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.begun++
	return ledgerTx{db: c.db}, nil
}

func (c *ledgerConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.queries = append(c.db.queries, query)

	switch {
	case strings.Contains(query, "current_balance") && strings.Contains(query, "FROM customers"):
		id, _ := args[0].Value.(string)
		balance, ok := c.db.balances[id]
		if !ok {
			return &ledgerRows{columns: []string{"current_balance"}}, nil
		}
		if strings.Contains(query, "FOR UPDATE") {
			if locked, ok := c.db.lockedBalances[id]; ok {
				balance = locked
			}
		}
		return &ledgerRows{
			columns: []string{"current_balance"},
			data:    [][]driver.Value{{balance}},
		}, nil

	case strings.Contains(query, "FROM ledger_entries"):
		return &ledgerRows{
			columns: []string{"id", "created_at", "owner_id", "entry_type", "amount", "description", "balance_after"},
			data:    c.db.entryRows,
		}, nil
	}

	return &ledgerRows{}, nil
}

func (c *ledgerConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	if c.db.failExecOn != "" && strings.Contains(query, c.db.failExecOn) {
		return nil, errors.New("exec refused")
	}

	values := make([]driver.Value, len(args))
	for i, a := range args {
		values[i] = a.Value
	}
	c.db.execs = append(c.db.execs, query)
	c.db.execArgs = append(c.db.execArgs, values)
	return driver.RowsAffected(1), nil
}

type ledgerTx struct{ db *ledgerDB }

func (t ledgerTx) Commit() error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.committed++
	return nil
}

func (t ledgerTx) Rollback() error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.rolledBack++
	return nil
}

type ledgerRows struct {
	columns []string
	data    [][]driver.Value
	idx     int
}

func (r *ledgerRows) Columns() []string { return r.columns }
func (r *ledgerRows) Close() error      { return nil }

func (r *ledgerRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.idx])
	r.idx++
	return nil
}
