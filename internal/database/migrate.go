// Package database はPostgreSQL接続とスキーママイグレーションを提供する。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// マイグレーションSQLはバイナリに埋め込み、distrolessイメージ単体で適用できるようにする。
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewMigrator は埋め込みSQLを読むmigrateインスタンスを生成する。呼び出し側でCloseすること。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

func withMigrator(databaseURL string, fn func(*migrate.Migrate) error) error {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

// RunMigrations は未適用のマイグレーションをすべて適用する。最新なら何もしない。
func RunMigrations(databaseURL string) error {
	return withMigrator(databaseURL, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		return nil
	})
}

// RollbackMigration は直近のマイグレーションを1つ巻き戻す。未適用なら何もしない。
func RollbackMigration(databaseURL string) error {
	return withMigrator(databaseURL, func(m *migrate.Migrate) error {
		if _, _, err := m.Version(); errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		err := m.Steps(-1)
		var short migrate.ErrShortLimit
		switch {
		case err == nil, errors.Is(err, migrate.ErrNoChange), errors.As(err, &short):
			return nil
		default:
			return fmt.Errorf("failed to rollback migration: %w", err)
		}
	})
}

// MigrationVersion は適用済みバージョンとdirtyフラグを返す。未適用なら0。
func MigrationVersion(databaseURL string) (version uint, dirty bool, err error) {
	err = withMigrator(databaseURL, func(m *migrate.Migrate) error {
		var verr error
		version, dirty, verr = m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			version, dirty = 0, false
			return nil
		}
		if verr != nil {
			return fmt.Errorf("failed to read migration version: %w", verr)
		}
		return nil
	})
	return version, dirty, err
}
