package storage

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrate applies every pending migration found in dir. A schema that is
// already current is not an error.
func Migrate(dsn, dir string) (applied bool, err error) {
	m, err := migrate.New("file://"+dir, dsn)
	if err != nil {
		return false, fmt.Errorf("migration init: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return false, nil
		}
		return false, fmt.Errorf("migration up: %w", err)
	}
	return true, nil
}
