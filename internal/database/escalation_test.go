package database

import (
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"discord-automod/internal/engine/escalation/markertest"

	"github.com/stretchr/testify/require"
)

// testDatabase connects to the postgres named by AUTOMOD_TEST_POSTGRES_HOST
func testDatabase(t *testing.T) *Database {
	t.Helper()
	host := os.Getenv("AUTOMOD_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("live test, set AUTOMOD_TEST_POSTGRES_HOST")
	}
	port, _ := strconv.Atoi(os.Getenv("AUTOMOD_TEST_POSTGRES_PORT"))
	if port == 0 {
		port = 5432
	}
	env := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	d, err := NewDatabase(PostgresConfig{
		Host:     host,
		Port:     port,
		User:     env("AUTOMOD_TEST_POSTGRES_USER", "postgres"),
		Password: env("AUTOMOD_TEST_POSTGRES_PASSWORD", "postgres"),
		Database: env("AUTOMOD_TEST_POSTGRES_DB", "automod_test"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestMarkerStoreContract(t *testing.T) {
	d := testDatabase(t)
	// fresh guild so earlier runs leave nothing behind for this one
	markertest.Run(t, d.Markers(), fmt.Sprintf("test-%d", time.Now().UnixNano()))
}
