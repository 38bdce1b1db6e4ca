package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := `SELECT id FROM reminders WHERE owner_id=? AND (due_date > ? OR (due_date = ? AND id > ?))`
	assert.Equal(t, q, Rebind(DriverSQLite, q))
	assert.Equal(t,
		`SELECT id FROM reminders WHERE owner_id=$1 AND (due_date > $2 OR (due_date = $3 AND id > $4))`,
		Rebind(DriverPostgres, q))
	assert.Equal(t, "SELECT 1", Rebind(DriverPostgres, "SELECT 1"))
}

func TestOpenSQLiteCreatesWorkspace(t *testing.T) {
	dir := t.TempDir()
	conn, err := Open(Config{Workspace: dir})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Ping())
	assert.FileExists(t, filepath.Join(dir, ".compliancekit", defaultDBName))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)

	_, err = Open(Config{Driver: DriverPostgres})
	require.Error(t, err)
}
