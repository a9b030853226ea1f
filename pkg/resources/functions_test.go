package resources

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closer struct {
	closed atomic.Bool
	block  chan struct{}
}

func (c *closer) Close() {
	if c.block != nil {
		<-c.block
	}

	c.closed.Store(true)
}

func TestClosableStop(t *testing.T) {
	t.Parallel()

	t.Run("closes", func(t *testing.T) {
		t.Parallel()

		c := &closer{}
		ClosableStop("pool", c)(context.Background(), time.Second)

		assert.True(t, c.closed.Load())
	})

	t.Run("gives up after timeout", func(t *testing.T) {
		t.Parallel()

		c := &closer{block: make(chan struct{})}
		defer close(c.block)

		start := time.Now()
		ClosableStop("pool", c)(context.Background(), 20*time.Millisecond)

		assert.False(t, c.closed.Load())
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestDatabaseURL(t *testing.T) {
	t.Setenv("DB_USER", "plancake")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("DB_NAME", "events")

	Default(context.Background(), "plancake", "test", "test")

	assert.Equal(t, "postgres://plancake:secret@db:5433/events", DatabaseURL())
}

func TestLoadSettings(t *testing.T) {
	t.Setenv("STORAGE", "MEMORY")
	t.Setenv("CODE_RETENTION", "48h")
	t.Setenv("MAX_EVENT_DAYS", "7")
	t.Setenv("DB_CONNECT_ATTEMPTS", "3")

	Default(context.Background(), "plancake", "test", "test")
	settings := LoadSettings()

	assert.Equal(t, StorageMemory, settings.Storage)
	assert.Equal(t, 48*time.Hour, settings.CodeRetention)
	assert.Equal(t, 7, settings.MaxEventDays)
	assert.Equal(t, "X-Identity", settings.IdentityHeader)
	assert.Equal(t, "@daily", settings.MaintenanceCron)
	assert.Equal(t, uint(3), settings.DBConnectAttempts)
}

func TestCreateDatabaseConnectionPool_Attempts(t *testing.T) {
	t.Setenv("DB_USER", "plancake")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", "1")
	t.Setenv("DB_NAME", "events")

	ctx := Default(context.Background(), "plancake", "test", "test")

	pool, _, err := CreateDatabaseConnectionPool(ctx, 2)
	require.Error(t, err)
	assert.Nil(t, pool)
	assert.Contains(t, err.Error(), "failed to ping database")
	assert.Contains(t, err.Error(), "#2:")
	assert.NotContains(t, err.Error(), "#3:")
}
