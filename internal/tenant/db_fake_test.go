package tenant

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
)

// fakeDB scripts a tenant database behind database/sql, so registry behavior
// can be exercised without a Postgres server.
type fakeDB struct {
	mu sync.Mutex

	pingErr error
	queries []string
	execs   []string

	// queryFn overrides the default row scripting when set.
	queryFn func(query string) ([]string, [][]driver.Value, error)

	connsClosed int
}

func (f *fakeDB) open() *sql.DB { return sql.OpenDB(&fakeConnector{db: f}) }

func (f *fakeDB) setPingErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
}

func (f *fakeDB) getPingErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeDB) executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.execs...)
}

func (f *fakeDB) closedConns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connsClosed
}

func (f *fakeDB) query(q string) ([]string, [][]driver.Value, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	fn := f.queryFn
	f.mu.Unlock()

	if fn != nil {
		return fn(q)
	}
	if strings.Contains(q, "SELECT 1") {
		return []string{"?column?"}, [][]driver.Value{{int64(1)}}, nil
	}
	return nil, nil, nil
}

func (f *fakeDB) exec(q string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, q)
	return nil
}

type fakeConnector struct{ db *fakeDB }

func (c *fakeConnector) Connect(context.Context) (driver.Conn, error) {
	return &fakeConn{db: c.db}, nil
}

func (c *fakeConnector) Driver() driver.Driver { return fakeDriver{} }

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("open via connector")
}

type fakeConn struct{ db *fakeDB }

func (c *fakeConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *fakeConn) Close() error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.connsClosed++
	return nil
}

func (c *fakeConn) Begin() (driver.Tx, error) { return fakeTx{}, nil }

func (c *fakeConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return fakeTx{}, nil
}

func (c *fakeConn) Ping(context.Context) error { return c.db.getPingErr() }

func (c *fakeConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	columns, data, err := c.db.query(query)
	if err != nil {
		return nil, err
	}
	return &fakeRows{columns: columns, data: data}, nil
}

func (c *fakeConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	if err := c.db.exec(query); err != nil {
		return nil, err
	}
	return driver.RowsAffected(1), nil
}

type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

type fakeRows struct {
	columns []string
	data    [][]driver.Value
	idx     int
}

func (r *fakeRows) Columns() []string { return r.columns }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.idx])
	r.idx++
	return nil
}
