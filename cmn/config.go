// Package cmn provides common low-level types and utilities shared across
// the blob metadata store.
package cmn

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Dialect names the backing relational engine, selected via
// AZURITE_DB_DIALECT. It is engine-agnostic by design (spec §6): the store
// itself never special-cases a dialect outside of connection setup and
// unique-violation detection.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectMariaDB  Dialect = "mariadb"
	DialectPostgres Dialect = "postgres"
	DialectPostgres2 Dialect = "postgresql"
	DialectSQLite   Dialect = "sqlite"
)

const (
	envUsername = "AZURITE_DB_USERNAME"
	envPassword = "AZURITE_DB_PASSWORD"
	envName     = "AZURITE_DB_NAME"
	envHostname = "AZURITE_DB_HOSTNAME"
	envDialect  = "AZURITE_DB_DIALECT"

	DefaultExtentPageSize = 2000
	DefaultMaxOpenConns   = 16
	DefaultMaxIdleConns   = 4
	DefaultConnMaxLife    = 30 * time.Minute
)

// DBConfig holds the connection parameters for the backing relational
// store. Naming convention for fields mirrors the env vars they're read
// from, joined without the AZURITE_DB_ prefix.
type DBConfig struct {
	Username string
	Password string
	Name     string
	Hostname string
	Dialect  Dialect

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// ExtentPageSize is a page size for the referenced-extent iterator
	// (spec §4.6). store.NewExtentIterator does not read it: it takes the
	// page size as an argument and falls back to 2000 when that is <= 0.
	ExtentPageSize int
}

// DBConfigFromEnv reads the five AZURITE_DB_* connection variables named in
// spec §6, plus the optional AZURITE_DB_MAX_OPEN_CONNS pool-size override.
// Missing AZURITE_DB_DIALECT defaults to sqlite, which is also the only
// dialect this repository's own test suite exercises.
func DBConfigFromEnv() *DBConfig {
	c := &DBConfig{
		Username:        os.Getenv(envUsername),
		Password:        os.Getenv(envPassword),
		Name:            os.Getenv(envName),
		Hostname:        os.Getenv(envHostname),
		Dialect:         Dialect(os.Getenv(envDialect)),
		MaxOpenConns:    DefaultMaxOpenConns,
		MaxIdleConns:    DefaultMaxIdleConns,
		ConnMaxLifetime: DefaultConnMaxLife,
		ExtentPageSize:  DefaultExtentPageSize,
	}
	if c.Dialect == "" {
		c.Dialect = DialectSQLite
	}
	if v := os.Getenv("AZURITE_DB_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxOpenConns = n
		}
	}
	return c
}

// Validate reports whether the dialect is one this store knows how to
// open a driver for.
func (c *DBConfig) Validate() error {
	switch c.Dialect {
	case DialectMySQL, DialectMariaDB, DialectPostgres, DialectPostgres2, DialectSQLite:
		return nil
	default:
		return fmt.Errorf("unknown AZURITE_DB_DIALECT %q", c.Dialect)
	}
}

// clone returns a shallow copy, used by BeginUpdate/CommitUpdate so that
// callers never mutate the config a concurrent reader is holding.
func (c *DBConfig) clone() *DBConfig {
	cp := *c
	return &cp
}

// globalConfigOwner guards the single process-wide DBConfig behind an
// atomically-swapped pointer, mirroring aistore's cmn.GCO singleton: reads
// never block on the update mutex, and updates are copy-on-write.
type globalConfigOwner struct {
	mtx sync.Mutex
	ptr atomic.Pointer[DBConfig]
}

// GCO is the process-wide config owner. store.New does not read it: every
// caller passes a *DBConfig explicitly (GCO.Get() for the environment-driven
// config, a hand-built one in tests to force sqlite).
var GCO = &globalConfigOwner{}

func (o *globalConfigOwner) Get() *DBConfig {
	c := o.ptr.Load()
	if c == nil {
		c = DBConfigFromEnv()
		o.ptr.Store(c)
	}
	return c
}

// BeginUpdate locks out other writers and returns a mutable clone of the
// current config for the caller to edit in place.
func (o *globalConfigOwner) BeginUpdate() *DBConfig {
	o.mtx.Lock()
	return o.Get().clone()
}

// CommitUpdate publishes the edited clone and releases the update lock.
func (o *globalConfigOwner) CommitUpdate(c *DBConfig) {
	o.ptr.Store(c)
	o.mtx.Unlock()
}
