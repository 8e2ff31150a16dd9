package datasource

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Connection is a resolved connection reference.
type Connection struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

// ErrUnknownConnection is returned when no resolver knows a reference.
var ErrUnknownConnection = errors.New("unknown connection reference")

// Resolver maps connection references to driver settings.
type Resolver interface {
	Resolve(ref string) (Connection, error)
}

// StaticResolver resolves from a fixed map, typically loaded from config.
type StaticResolver map[string]Connection

// Resolve implements Resolver.
func (r StaticResolver) Resolve(ref string) (Connection, error) {
	conn, ok := r[ref]
	if !ok {
		return Connection{}, fmt.Errorf("%w: %q", ErrUnknownConnection, ref)
	}
	return conn, nil
}

// EnvPrefix prefixes environment variables read by EnvResolver.
const EnvPrefix = "ROWCLAIM_CONN_"

// EnvResolver resolves a reference from ROWCLAIM_CONN_<REF> holding a URL.
// The reference is upper-cased and non-alphanumerics become underscores.
//
//	ROWCLAIM_CONN_ORDERS_DB=sqlite3:///var/lib/orders.db
//	ROWCLAIM_CONN_LEDGER=postgres://app@db:5432/ledger?sslmode=disable
type EnvResolver struct {
	// Lookup defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

// Resolve implements Resolver.
func (r EnvResolver) Resolve(ref string) (Connection, error) {
	lookup := r.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	key := EnvPrefix + envName(ref)
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return Connection{}, fmt.Errorf("%w: %q (%s not set)", ErrUnknownConnection, ref, key)
	}
	conn, err := ParseURL(raw)
	if err != nil {
		return Connection{}, fmt.Errorf("%s: %w", key, err)
	}
	return conn, nil
}

// ChainResolver tries each resolver in order and returns the first match.
type ChainResolver []Resolver

// Resolve implements Resolver.
func (c ChainResolver) Resolve(ref string) (Connection, error) {
	for _, r := range c {
		conn, err := r.Resolve(ref)
		if err == nil {
			return conn, nil
		}
		if !errors.Is(err, ErrUnknownConnection) {
			return Connection{}, err
		}
	}
	return Connection{}, fmt.Errorf("%w: %q", ErrUnknownConnection, ref)
}

// ParseURL converts a connection URL into driver settings.
// sqlite3:///abs/path and sqlite3:relative/path map to the sqlite3 driver;
// postgres:// and postgresql:// URLs are passed to pgx unchanged.
func ParseURL(raw string) (Connection, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Connection{}, fmt.Errorf("invalid connection url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "sqlite3", "sqlite":
		path := u.Opaque
		if path == "" {
			path = u.Path
		}
		if path == "" {
			return Connection{}, fmt.Errorf("invalid connection url: sqlite path required")
		}
		dsn := path
		if u.RawQuery != "" {
			dsn += "?" + u.RawQuery
		}
		return Connection{Driver: DriverSQLite, DSN: dsn}, nil
	case "postgres", "postgresql":
		return Connection{Driver: DriverPostgres, DSN: raw}, nil
	case "":
		return Connection{}, fmt.Errorf("invalid connection url: scheme required")
	default:
		return Connection{}, fmt.Errorf("invalid connection url: unsupported scheme %q", u.Scheme)
	}
}

func envName(ref string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(ref) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
