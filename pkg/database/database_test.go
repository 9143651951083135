package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autodocgen/boarddocs/pkg/config"
	"github.com/autodocgen/boarddocs/pkg/ha"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "boarddocs.db")
	db, err := Open(config.DatabaseConfig{Type: "sqlite", DSN: dsn})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, Ping(ctx, db))
	require.NoError(t, Migrate(ctx, db, ha.NewMigrationLocker(db, ha.MigrationLockName)))

	for _, table := range []string{"board_mappings", "credentials", "generation_jobs", "generated_artifacts", "notifications"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}

	// Re-running is a no-op.
	require.NoError(t, Migrate(ctx, db, nil))
}

func TestOpenRejectsBadConfig(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Type: "oracle", DSN: "x"})
	assert.ErrorContains(t, err, "unsupported database type")

	_, err = Open(config.DatabaseConfig{Type: "sqlite"})
	assert.ErrorContains(t, err, "DSN is required")

	_, err = Open(config.DatabaseConfig{Type: "mysql", DSN: "not a dsn"})
	assert.Error(t, err)
}

func TestNormalizeMySQLDSN(t *testing.T) {
	out, err := NormalizeMySQLDSN("docs:secret@tcp(db:3306)/boarddocs")
	require.NoError(t, err)
	assert.Contains(t, out, "parseTime=true")
	assert.Contains(t, out, "tcp(db:3306)/boarddocs")

	out, err = NormalizeMySQLDSN("docs:secret@tcp(db:3306)/boarddocs?parseTime=false")
	require.NoError(t, err)
	assert.Contains(t, out, "parseTime=true")
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"file:boarddocs.db", "file:boarddocs.db?_pragma=busy_timeout(5000)"},
		{"file:boarddocs.db?cache=shared", "file:boarddocs.db?cache=shared&_pragma=busy_timeout(5000)"},
		{":memory:", ":memory:"},
		{"file:x?mode=memory&cache=shared", "file:x?mode=memory&cache=shared"},
		{"file:b.db?_pragma=busy_timeout(100)", "file:b.db?_pragma=busy_timeout(100)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SQLiteDSN(tt.in), tt.in)
	}
}
