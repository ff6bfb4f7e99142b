package database

import (
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDSN(t *testing.T) {
	cfg := &Config{Host: "db", User: "app", Password: "secret", DBName: "jobs", MaxConns: 4}

	assert.Equal(t, "host=db port=5432 user=app password=secret dbname=jobs sslmode=disable", cfg.DSN())

	parsed, err := pgxpool.ParseConfig(cfg.DSN())
	require.NoError(t, err)
	assert.Equal(t, "db", parsed.ConnConfig.Host)
	assert.Equal(t, uint16(5432), parsed.ConnConfig.Port)
	assert.Equal(t, "jobs", parsed.ConnConfig.Database)
}
