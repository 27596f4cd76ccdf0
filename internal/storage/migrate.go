package storage

import (
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/The-Sycorax/denaro/internal/errs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate brings the schema up to the latest version using golang-migrate,
// mirroring daglabs-btcd's apiserver/main.go blank-importing a migrate
// source/driver pair, adapted from its mysql/file combination to the
// postgres/iofs combination this schema is defined for.
func (s *Store) Migrate() error {
	sourceDriver, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return errs.New(errs.ErrStorageUnavailable, "load embedded migrations: %s", err)
	}
	dbDriver, err := postgres.WithInstance(s.db.DB(), &postgres.Config{})
	if err != nil {
		return errs.New(errs.ErrStorageUnavailable, "create postgres migration driver: %s", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return errs.New(errs.ErrStorageUnavailable, "build migrator: %s", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errs.New(errs.ErrStorageUnavailable, "run migrations: %s", err)
	}
	return nil
}
