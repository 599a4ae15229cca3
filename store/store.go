package store

import (
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/NVIDIA/aistore-blobmeta/cmn"
)

// Store is the top-level handle onto the backing relational store. Every
// exported operation in container.go/blob.go/block.go is a method on
// *Store, each opening its own transaction per the "transactional
// operation template" in spec §4.1.
type Store struct {
	db      *gorm.DB
	dialect cmn.Dialect
	metrics *Metrics
}

// New opens the dialect-appropriate driver named by cfg.Dialect, runs the
// schema auto-migration, and returns a ready Store. Configuration comes only
// from cfg (cmn.GCO is not consulted), which lets tests force sqlite.
// Metrics are registered against reg; pass nil to skip instrumentation
// entirely (tests do this to avoid duplicate-registration panics).
func New(cfg *cmn.DBConfig, reg prometheus.Registerer) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialector, err := openDialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", cfg.Dialect, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(&Service{}, &Container{}, &Blob{}, &Block{}); err != nil {
		return nil, fmt.Errorf("store: auto-migrate: %w", err)
	}

	var metrics *Metrics
	if reg != nil {
		metrics = NewMetrics(reg)
	}

	glog.Infof("store: opened %s backing store", cfg.Dialect)
	return &Store{db: db, dialect: cfg.Dialect, metrics: metrics}, nil
}

func openDialector(cfg *cmn.DBConfig) (gorm.Dialector, error) {
	switch cfg.Dialect {
	case cmn.DialectMySQL, cmn.DialectMariaDB:
		dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&charset=utf8mb4",
			cfg.Username, cfg.Password, cfg.Hostname, cfg.Name)
		return mysql.Open(dsn), nil
	case cmn.DialectPostgres, cmn.DialectPostgres2:
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.Hostname, cfg.Username, cfg.Password, cfg.Name)
		return postgres.Open(dsn), nil
	case cmn.DialectSQLite:
		name := cfg.Name
		if name == "" {
			name = "file::memory:?cache=shared"
		}
		return sqlite.Open(name), nil
	default:
		return nil, fmt.Errorf("store: unsupported dialect %q", cfg.Dialect)
	}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	defer glog.Flush()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// txn is the per-call context threaded through every operation: a request
// id for error correlation/logging (grounded on ais/transaction.go's
// uuid-keyed bookkeeping, simplified here to a single in-process call
// rather than a distributed two-phase commit) and the *gorm.DB transaction
// handle operations run their reads/writes against.
type txn struct {
	requestID string
	tx         *gorm.DB
	dialect    cmn.Dialect
}

// withTx implements the "transactional operation template" of spec §4.1:
// open a transaction, run fn, commit on success or roll back and
// translate the error via wrapBackingStoreErr on failure.
func (s *Store) withTx(requestID string, fn func(t *txn) error) error {
	start := time.Now()
	op := callerOp(2)

	if requestID == "" {
		requestID = cmn.GenRequestID()
	}
	glog.V(2).Infof("store: %s request=%s", op, requestID)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		t := &txn{requestID: requestID, tx: tx, dialect: s.dialect}
		return fn(t)
	})
	if err != nil {
		err = wrapBackingStoreErr(requestID, s.dialect, err)
		glog.Errorf("store: %s request=%s failed: %v", op, requestID, err)
	}
	s.metrics.record(op, start, err)
	return err
}

// checkContainerExist implements the "check container existence first"
// step common to every container-scoped operation template in spec §4.1.
func (t *txn) checkContainerExist(accountName, containerName string) (*Container, error) {
	var c Container
	err := t.tx.Where("account_name = ? AND container_name = ?", accountName, containerName).
		Take(&c).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, newErr(t.requestID, KindContainerNotFound, "%s/%s", accountName, containerName)
		}
		return nil, err
	}
	return &c, nil
}
