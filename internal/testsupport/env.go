package testsupport

import (
	"fmt"
	"os"
	"testing"

	"pairwatch/internal/adapters/config"
)

// LoadPostgresConfigFromEnv reads Postgres configuration for integration
// tests. Tests are skipped when the required environment is missing.
func LoadPostgresConfigFromEnv(t *testing.T) config.PostgresConfig {
	t.Helper()
	requireEnv(t, "POSTGRES_HOST", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB")

	return config.PostgresConfig{
		Host:     os.Getenv("POSTGRES_HOST"),
		Port:     intValue("POSTGRES_PORT", 5432),
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Database: os.Getenv("POSTGRES_DB"),
		SSLMode:  valueWithDefault("POSTGRES_SSL_MODE", "disable"),
		MaxConns: 10,
	}
}

// LoadClickHouseConfigFromEnv reads ClickHouse configuration for integration
// tests. Tests are skipped when the required environment is missing.
func LoadClickHouseConfigFromEnv(t *testing.T) config.ClickHouseConfig {
	t.Helper()
	requireEnv(t, "CLICKHOUSE_HOST", "CLICKHOUSE_DB")

	return config.ClickHouseConfig{
		Host:     os.Getenv("CLICKHOUSE_HOST"),
		Port:     intValue("CLICKHOUSE_PORT", 9000),
		User:     valueWithDefault("CLICKHOUSE_USER", "default"),
		Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		Database: os.Getenv("CLICKHOUSE_DB"),
	}
}

func requireEnv(t *testing.T, keys ...string) {
	t.Helper()

	missing := make([]string, 0)
	for _, key := range keys {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		t.Skipf("integration environment missing, set %v to run", missing)
	}
}

func valueWithDefault(key string, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func intValue(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		_, err := fmt.Sscanf(val, "%d", &parsed)
		if err == nil {
			return parsed
		}
	}

	return fallback
}
