package containers

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const database = "relquery"

// TestContainers holds the database containers and their connection details
type TestContainers struct {
	MySQLContainer    testcontainers.Container
	PostgresContainer testcontainers.Container

	MySQLDSN    string
	PostgresDSN string
}

// bindPort publishes a container port on a fixed, non-standard host port.
func bindPort(port, hostPort string) testcontainers.CustomizeRequestOption {
	return testcontainers.WithHostConfigModifier(func(hostConfig *container.HostConfig) {
		hostConfig.PortBindings = nat.PortMap{
			nat.Port(port): []nat.PortBinding{
				{
					HostIP:   "0.0.0.0",
					HostPort: hostPort,
				},
			},
		}
	})
}

// SetupMySQL creates and starts a MySQL container with the test database
func SetupMySQL(ctx context.Context) (testcontainers.Container, string, error) {
	migrationPath, err := filepath.Abs("migrations/my/relquery_mysql.sql")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get migration file path: %w", err)
	}

	container, err := mysql.Run(ctx, "mysql:8.4",
		mysql.WithDatabase(database),
		mysql.WithUsername("testuser"),
		mysql.WithPassword("testpass"),
		mysql.WithScripts(migrationPath),
		testcontainers.WithWaitStrategy(
			wait.ForLog("ready for connections").
				WithOccurrence(1).
				WithStartupTimeout(60*time.Second),
		),
		bindPort("3306/tcp", "13306"),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start MySQL container: %w", err)
	}

	mappedPort, err := container.MappedPort(ctx, "3306")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get MySQL mapped port: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get MySQL host: %w", err)
	}

	dsn := fmt.Sprintf("testuser:testpass@tcp(%s:%s)/%s?parseTime=true&loc=Local", host, mappedPort.Port(), database)

	return container, dsn, nil
}

// SetupPostgres creates and starts a PostgreSQL container with the test database
func SetupPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	migrationPath, err := filepath.Abs("migrations/pg/relquery_postgres.sql")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get migration file path: %w", err)
	}

	container, err := postgres.Run(ctx, "postgres:17.5",
		postgres.WithDatabase(database),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.WithInitScripts(migrationPath),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
		bindPort("5432/tcp", "15432"),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}

	mappedPort, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get PostgreSQL mapped port: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get PostgreSQL host: %w", err)
	}

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/%s?sslmode=disable", host, mappedPort.Port(), database)

	return container, dsn, nil
}

// SetupAllContainers creates and starts all required containers for testing
func SetupAllContainers(ctx context.Context) (*TestContainers, error) {
	tc := &TestContainers{}

	mysqlContainer, mysqlDSN, err := SetupMySQL(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to setup MySQL: %w", err)
	}
	tc.MySQLContainer = mysqlContainer
	tc.MySQLDSN = mysqlDSN

	postgresContainer, postgresDSN, err := SetupPostgres(ctx)
	if err != nil {
		tc.Cleanup(ctx)
		return nil, fmt.Errorf("failed to setup PostgreSQL: %w", err)
	}
	tc.PostgresContainer = postgresContainer
	tc.PostgresDSN = postgresDSN

	return tc, nil
}

// Cleanup terminates all containers
func (tc *TestContainers) Cleanup(ctx context.Context) error {
	var lastErr error

	if tc.PostgresContainer != nil {
		if err := tc.PostgresContainer.Terminate(ctx); err != nil {
			lastErr = fmt.Errorf("failed to terminate PostgreSQL container: %w", err)
		}
	}

	if tc.MySQLContainer != nil {
		if err := tc.MySQLContainer.Terminate(ctx); err != nil {
			lastErr = fmt.Errorf("failed to terminate MySQL container: %w", err)
		}
	}

	return lastErr
}
