package infra

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgx5URL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/susu?sslmode=disable", pgx5URL("postgres://u:p@db:5432/susu?sslmode=disable"))
	assert.Equal(t, "pgx5://u:p@db/susu", pgx5URL("postgresql://u:p@db/susu"))
	assert.Equal(t, "pgx5://already", pgx5URL("pgx5://already"))
}

func TestMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrationFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationFS, "migrations/*.down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}
