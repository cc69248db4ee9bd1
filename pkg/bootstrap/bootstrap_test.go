package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hush/internal/config"
	"hush/internal/logger"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.PostgresConfig{
		Host: "db", Port: 5432, User: "hush", Password: "secret", DBName: "rules",
	})
	assert.Equal(t, "postgres://hush:secret@db:5432/rules?sslmode=disable", dsn)

	dsn = PostgresDSN(config.PostgresConfig{
		Host: "db", Port: 5432, User: "hush", Password: "secret", DBName: "rules", SSLMode: "require",
	})
	assert.Contains(t, dsn, "sslmode=require")
}

func TestBase_BrokerDisabled(t *testing.T) {
	cfg := &config.Config{Broker: config.BrokerConfig{Type: "none"}}
	b := NewBase(cfg, logger.NopLogger())

	require.NoError(t, b.InitBroker("decision-service"))
	assert.Nil(t, b.Producer)
	assert.Nil(t, b.Consumer)
	assert.Empty(t, b.ShutdownBroker())
	assert.NoError(t, b.Shutdown(context.Background(), nil))
}

func TestBase_UnknownBroker(t *testing.T) {
	cfg := &config.Config{Broker: config.BrokerConfig{Type: "carrier-pigeon"}}
	b := NewBase(cfg, logger.NopLogger())

	assert.Error(t, b.InitBroker("decision-service"))
}

func TestDatabaseConnector_OptionalStores(t *testing.T) {
	dc := NewDatabaseConnector(&config.Config{}, logger.NopLogger())

	db, err := dc.InitPostgreSQL(context.Background())
	require.NoError(t, err)
	assert.Nil(t, db)

	client, err := dc.InitMongoDB(context.Background())
	require.NoError(t, err)
	assert.Nil(t, client)

	assert.Empty(t, dc.ShutdownDatabases(context.Background(), nil, nil, nil))
}

func TestBase_ShutdownRunsAdditional(t *testing.T) {
	b := NewBase(&config.Config{}, logger.NopLogger())

	called := false
	err := b.Shutdown(context.Background(), func(context.Context) []error {
		called = true
		return []error{assert.AnError}
	})
	assert.True(t, called)
	assert.ErrorIs(t, err, assert.AnError)
}
