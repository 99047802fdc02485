// Package testutil provides an in-memory database/sql driver stub so the
// remote client can be exercised without a running PostgreSQL server.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	insertRe = regexp.MustCompile(`(?is)^\s*INSERT\s+INTO\s+(\w+)\s*\(([^)]*)\)\s*VALUES\s*\(([^)]*)\)(?:\s+ON\s+CONFLICT\s*\((\w+)\)\s+DO\s+UPDATE\b.*)?\s*$`)
	selectRe = regexp.MustCompile(`(?is)^\s*SELECT\s+(.+?)\s+FROM\s+(\w+)(?:\s+ORDER\s+BY\s+(\w+)\s+(ASC|DESC))?\s*$`)
	createRe = regexp.MustCompile(`(?is)^\s*CREATE\s+TABLE\b`)
)

// StubDB is the shared state behind a stubbed connection. Tables maps table
// name to inserted rows, each row a column-to-value map.
type StubDB struct {
	mu     sync.Mutex
	Tables map[string][]map[string]driver.Value

	FailPing  bool
	FailExec  bool
	FailQuery bool
}

// Open returns a *sql.DB backed by the stub.
func Open() (*sql.DB, *StubDB) {
	stub := &StubDB{Tables: map[string][]map[string]driver.Value{}}
	return sql.OpenDB(stubConnector{stub: stub}), stub
}

// Rows returns a copy of the rows currently stored for table.
func (s *StubDB) Rows(table string) []map[string]driver.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]driver.Value, len(s.Tables[table]))
	for i, row := range s.Tables[table] {
		clone := make(map[string]driver.Value, len(row))
		for k, v := range row {
			clone[k] = v
		}
		out[i] = clone
	}
	return out
}

type stubConnector struct {
	stub *StubDB
}

func (c stubConnector) Connect(context.Context) (driver.Conn, error) {
	return &stubConn{stub: c.stub}, nil
}

func (c stubConnector) Driver() driver.Driver { return stubDriver{stub: c.stub} }

type stubDriver struct {
	stub *StubDB
}

func (d stubDriver) Open(string) (driver.Conn, error) {
	return &stubConn{stub: d.stub}, nil
}

type stubConn struct {
	stub *StubDB
}

func (c *stubConn) Prepare(string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported by stub")
}

func (c *stubConn) Close() error { return nil }

func (c *stubConn) Begin() (driver.Tx, error) {
	return nil, fmt.Errorf("transactions not supported by stub")
}

func (c *stubConn) Ping(context.Context) error {
	if c.stub.FailPing {
		return fmt.Errorf("stub ping failure")
	}
	return nil
}

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if c.stub.FailExec {
		return nil, fmt.Errorf("stub exec failure")
	}
	if createRe.MatchString(query) {
		return driver.RowsAffected(0), nil
	}
	m := insertRe.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("stub cannot exec: %s", query)
	}
	table := strings.ToLower(m[1])
	cols := splitIdentifiers(m[2])
	if len(cols) != len(args) {
		return nil, fmt.Errorf("stub: %d columns but %d args", len(cols), len(args))
	}
	row := make(map[string]driver.Value, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	conflictCol := strings.ToLower(m[4])

	c.stub.mu.Lock()
	defer c.stub.mu.Unlock()
	if conflictCol != "" {
		for i, existing := range c.stub.Tables[table] {
			if existing[conflictCol] == row[conflictCol] {
				c.stub.Tables[table][i] = row
				return driver.RowsAffected(1), nil
			}
		}
	}
	c.stub.Tables[table] = append(c.stub.Tables[table], row)
	return driver.RowsAffected(1), nil
}

func (c *stubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if c.stub.FailQuery {
		return nil, fmt.Errorf("stub query failure")
	}
	if len(args) != 0 {
		return nil, fmt.Errorf("stub queries take no args: %s", query)
	}
	m := selectRe.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("stub cannot query: %s", query)
	}
	cols := splitIdentifiers(m[1])
	table := strings.ToLower(m[2])
	orderCol := strings.ToLower(m[3])
	descending := strings.EqualFold(m[4], "DESC")

	c.stub.mu.Lock()
	stored := make([]map[string]driver.Value, len(c.stub.Tables[table]))
	copy(stored, c.stub.Tables[table])
	c.stub.mu.Unlock()

	if orderCol != "" {
		sort.SliceStable(stored, func(i, j int) bool {
			less := lessValue(stored[i][orderCol], stored[j][orderCol])
			if descending {
				return !less && !equalValue(stored[i][orderCol], stored[j][orderCol])
			}
			return less
		})
	}

	values := make([][]driver.Value, len(stored))
	for i, row := range stored {
		out := make([]driver.Value, len(cols))
		for j, col := range cols {
			out[j] = row[col]
		}
		values[i] = out
	}
	return &stubRows{columns: cols, values: values}, nil
}

type stubRows struct {
	columns []string
	values  [][]driver.Value
	pos     int
}

func (r *stubRows) Columns() []string { return r.columns }

func (r *stubRows) Close() error { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.pos])
	r.pos++
	return nil
}

func splitIdentifiers(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(p)))
	}
	return out
}

func lessValue(a, b driver.Value) bool {
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if aok && bok {
		return at.Before(bt)
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func equalValue(a, b driver.Value) bool {
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if aok && bok {
		return at.Equal(bt)
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
