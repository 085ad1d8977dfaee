package pg

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrate struct {
	upErr, downErr error
}

func (f *fakeMigrate) Up() error             { return f.upErr }
func (f *fakeMigrate) Down() error           { return f.downErr }
func (f *fakeMigrate) Close() (error, error) { return nil, nil }

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/db":   "pgx5://u:p@localhost:5432/db",
		"postgresql://u:p@localhost:5432/db": "pgx5://u:p@localhost:5432/db",
		"pgx5://u:p@localhost:5432/db":       "pgx5://u:p@localhost:5432/db",
	}
	for in, want := range tests {
		assert.Equal(t, want, migrateURL(in), in)
	}
}

func TestMigrator_NoChangeIsNotAnError(t *testing.T) {
	m := &Migrator{m: &fakeMigrate{upErr: migrate.ErrNoChange, downErr: migrate.ErrNoChange}}
	assert.NoError(t, m.Up())
	assert.NoError(t, m.Down())
	assert.NoError(t, m.Close())
}

func TestMigrator_Failure(t *testing.T) {
	m := &Migrator{m: &fakeMigrate{upErr: errors.New("syntax error")}}
	err := m.Up()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error")
}

func TestEmbeddedMigrations(t *testing.T) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"migrations/000001_identity.up.sql",
		"migrations/000001_identity.down.sql",
	}, names)

	up, err := fs.ReadFile(migrationsFS, "migrations/000001_identity.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), constraintUserName)
	assert.Contains(t, string(up), constraintEmail)
}
