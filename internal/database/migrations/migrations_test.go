package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-seating/internal/logger"
)

func TestInitializeRequiresMigrationsDir(t *testing.T) {
	r := NewRunner(bun.NewDB(&sql.DB{}, pgdialect.New()), MigrateOptions{MigrationsDir: t.TempDir() + "/missing"}, logger.Discard())
	assert.Error(t, r.Initialize())
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, "./migrations", opts.MigrationsDir)
	assert.True(t, opts.AutoMigrate)
	assert.False(t, opts.SeedData)
}

// TestMigrationsAgainstPostgres runs the real migration files in a container
func TestMigrationsAgainstPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}

	ctx := context.Background()
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "seating",
				"POSTGRES_PASSWORD": "seating",
				"POSTGRES_DB":       "seating",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}
	defer pg.Terminate(ctx)

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432")
	require.NoError(t, err)

	sqldb, err := sql.Open("postgres", fmt.Sprintf("postgres://seating:seating@%s:%s/seating?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	runner := NewRunner(bunDB, MigrateOptions{MigrationsDir: "../../../migrations"}, logger.Discard())
	defer runner.Close()

	require.NoError(t, runner.RunMigrations())
	version, dirty, err := runner.Version()
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
	assert.False(t, dirty)

	var seats int
	require.NoError(t, bunDB.NewSelect().Table("seats").ColumnExpr("count(*)").Scan(ctx, &seats))
	assert.Zero(t, seats, "schema-only run seeds nothing")

	seeding := NewRunner(bunDB, MigrateOptions{MigrationsDir: "../../../migrations", SeedData: true}, logger.Discard())
	defer seeding.Close()
	require.NoError(t, seeding.RunMigrations())
	require.NoError(t, bunDB.NewSelect().Table("seats").ColumnExpr("count(*)").Scan(ctx, &seats))
	assert.Equal(t, 48, seats)

	require.NoError(t, seeding.MigrateDown())
}
