// Package store persists the maker registry, activity feed and swap history
// in sqlite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open opens sqlite with sensible defaults.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)
	return db, nil
}

// RunMigrations applies the embedded up migrations to db.
func RunMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	// m.Close would also close db, so only the source is released here.
	defer src.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Store bundles the repositories over one database.
type Store struct {
	DB       *sql.DB
	Makers   *MakerRepo
	Activity *ActivityRepo
	Swaps    *SwapRepo
}

// New wires the repositories. secretKey seals maker passwords at rest; with a
// nil key they are stored as given.
func New(db *sql.DB, secretKey []byte) *Store {
	return &Store{
		DB:       db,
		Makers:   NewMakerRepo(db, secretKey),
		Activity: NewActivityRepo(db),
		Swaps:    NewSwapRepo(db),
	}
}

// OpenStore opens path, migrates it and wires the repositories.
func OpenStore(path string, secretKey []byte) (*Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	s := New(db, secretKey)
	if _, err := s.Makers.SealPlaintext(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// now returns UTC time truncated to milliseconds.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
