package storage

import (
	"fmt"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	"github.com/pkg/errors"

	"github.com/The-Sycorax/denaro/internal/errs"
)

// Config names the connection parameters consumed from the environment:
// DENARO_DATABASE_{HOST,NAME}, POSTGRES_{USER,PASSWORD}.
type Config struct {
	Host     string
	Name     string
	User     string
	Password string
	SSLMode  string
}

func (c Config) dsn() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Name, c.User, c.Password, sslmode)
}

// Store is the durable adapter (C4). It embeds UnitOfWork so top-level
// calls run as implicit single-statement units of work, and exposes
// WithTx for the multi-statement atomic units C5/C6 need.
type Store struct {
	UnitOfWork
	db *gorm.DB
}

// Open connects to Postgres and returns a ready Store. It does not run
// migrations; call Migrate separately (mirrors daglabs-btcd's
// apiserver/main.go split between database.Connect and schema setup via
// golang-migrate).
func Open(cfg Config) (*Store, error) {
	db, err := gorm.Open("postgres", cfg.dsn())
	if err != nil {
		return nil, errs.New(errs.ErrStorageUnavailable, "connect to postgres: %s", err)
	}
	db.LogMode(false)
	return &Store{UnitOfWork: UnitOfWork{db: db}, db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a single atomic unit of work: a gorm transaction
// that commits iff fn returns nil, and rolls back in full otherwise. Used
// by apply-block, undo-block, and mempool admission, each of which needs
// its set of insert/delete operations to either fully commit or fully
// revert.
func (s *Store) WithTx(fn func(uow *UnitOfWork) error) (err error) {
	tx := s.db.Begin()
	if tx.Error != nil {
		return errs.New(errs.ErrStorageUnavailable, "begin transaction: %s", tx.Error)
	}
	uow := &UnitOfWork{db: tx}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()
	if err = fn(uow); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			return errors.Wrapf(err, "rollback also failed: %s", rbErr)
		}
		return err
	}
	if err = tx.Commit().Error; err != nil {
		return errs.New(errs.ErrStorageUnavailable, "commit transaction: %s", err)
	}
	return nil
}
