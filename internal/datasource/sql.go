package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Registered database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// sqliteDefaults are appended to sqlite DSNs that do not set them.
// BEGIN IMMEDIATE plus a busy timeout makes racing claimers queue on the
// write lock instead of failing with SQLITE_BUSY.
var sqliteDefaults = []string{"_busy_timeout=5000", "_txlock=immediate"}

// SQLConnector acquires handles from database/sql pools, one pool per
// connection reference. Safe for concurrent use.
type SQLConnector struct {
	resolver Resolver
	logger   *slog.Logger

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// SQLOption configures an SQLConnector.
type SQLOption func(*SQLConnector)

// WithLogger sets the logger used for pool lifecycle messages.
func WithLogger(l *slog.Logger) SQLOption {
	return func(c *SQLConnector) {
		c.logger = l
	}
}

// NewSQLConnector creates a connector resolving references through r.
func NewSQLConnector(r Resolver, opts ...SQLOption) *SQLConnector {
	c := &SQLConnector{
		resolver: r,
		logger:   slog.Default(),
		dbs:      make(map[string]*sql.DB),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Acquire resolves ref, takes a dedicated connection from its pool and pings it.
func (c *SQLConnector) Acquire(ctx context.Context, ref string) (Handle, error) {
	db, err := c.pool(ref)
	if err != nil {
		return nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect %q: %w", ref, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %q: %w", ref, err)
	}
	return &sqlHandle{conn: conn}, nil
}

// Close closes every pool opened by the connector.
func (c *SQLConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for ref, db := range c.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", ref, err))
		}
		delete(c.dbs, ref)
	}
	return errors.Join(errs...)
}

func (c *SQLConnector) pool(ref string) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if db, ok := c.dbs[ref]; ok {
		return db, nil
	}
	if c.resolver == nil {
		return nil, fmt.Errorf("%w: %q (no resolver configured)", ErrUnknownConnection, ref)
	}
	conn, err := c.resolver.Resolve(ref)
	if err != nil {
		return nil, err
	}
	driver, dsn, err := normalize(conn)
	if err != nil {
		return nil, fmt.Errorf("connection %q: %w", ref, err)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", ref, err)
	}
	c.dbs[ref] = db
	c.logger.Debug("connection pool opened", "ref", ref, "driver", driver)
	return db, nil
}

// normalize maps driver aliases to registered names and applies sqlite defaults.
func normalize(conn Connection) (string, string, error) {
	dsn := strings.TrimSpace(conn.DSN)
	if dsn == "" {
		return "", "", fmt.Errorf("dsn required")
	}
	switch strings.ToLower(strings.TrimSpace(conn.Driver)) {
	case "sqlite", "sqlite3":
		return DriverSQLite, withSQLiteDefaults(dsn), nil
	case "pgx", "postgres", "postgresql":
		return DriverPostgres, dsn, nil
	case "":
		return "", "", fmt.Errorf("driver required")
	default:
		return "", "", fmt.Errorf("unsupported driver %q", conn.Driver)
	}
}

func withSQLiteDefaults(dsn string) string {
	for _, kv := range sqliteDefaults {
		key := kv[:strings.IndexByte(kv, '=')+1]
		if strings.Contains(dsn, key) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + kv
		} else {
			dsn += "?" + kv
		}
	}
	return dsn
}

type sqlHandle struct {
	conn *sql.Conn
	tx   *sql.Tx
}

func (h *sqlHandle) Query(ctx context.Context, query string, args ...any) (Cursor, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if h.tx != nil {
		rows, err = h.tx.QueryContext(ctx, query, args...)
	} else {
		rows, err = h.conn.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, err
	}
	return &sqlCursor{rows: rows}, nil
}

func (h *sqlHandle) Exec(ctx context.Context, stmt string, args ...any) (Result, error) {
	if h.tx == nil {
		// database/sql rolls a transaction back when its context is cancelled;
		// the commit/rollback decision belongs to the caller, not to ctx.
		tx, err := h.conn.BeginTx(context.WithoutCancel(ctx), nil)
		if err != nil {
			return nil, fmt.Errorf("begin: %w", err)
		}
		h.tx = tx
	}
	return h.tx.ExecContext(ctx, stmt, args...)
}

func (h *sqlHandle) Commit() error {
	if h.tx == nil {
		return nil
	}
	tx := h.tx
	h.tx = nil
	return tx.Commit()
}

func (h *sqlHandle) Rollback() error {
	if h.tx == nil {
		return nil
	}
	tx := h.tx
	h.tx = nil
	return tx.Rollback()
}

func (h *sqlHandle) Close() error {
	rbErr := h.Rollback()
	if errors.Is(rbErr, sql.ErrTxDone) {
		rbErr = nil
	}
	return errors.Join(rbErr, h.conn.Close())
}

type sqlCursor struct {
	rows *sql.Rows
}

func (c *sqlCursor) Columns() ([]string, error) {
	return c.rows.Columns()
}

func (c *sqlCursor) FetchAll() ([][]any, error) {
	cols, err := c.rows.Columns()
	if err != nil {
		return nil, err
	}
	var out [][]any
	for c.rows.Next() {
		row := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := c.rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, c.rows.Err()
}

func (c *sqlCursor) Close() error {
	return c.rows.Close()
}
