package database

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolhub-backend/migrations"
)

func TestPendingOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"010_late.sql":   {Data: []byte("SELECT 1")},
		"002_second.sql": {Data: []byte("SELECT 1")},
		"001_first.sql":  {Data: []byte("SELECT 1")},
		"README.md":      {Data: []byte("notes")},
		"draft.sql":      {Data: []byte("SELECT 1")},
	}

	got, err := pendingOrder(fsys)
	require.NoError(t, err)

	var names []string
	for _, m := range got {
		names = append(names, m.name)
	}
	assert.Equal(t, []string{"001_first.sql", "002_second.sql", "010_late.sql"}, names)
}

func TestPendingOrder_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"003_a.sql": {Data: []byte("SELECT 1")},
		"003_b.sql": {Data: []byte("SELECT 1")},
	}
	_, err := pendingOrder(fsys)
	assert.ErrorContains(t, err, "share version 3")
}

func TestEmbeddedMigrations(t *testing.T) {
	got, err := pendingOrder(migrations.Files)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].version)
	assert.Equal(t, 2, got[1].version)
}

func TestNewRedisClients(t *testing.T) {
	mr := miniredis.RunT(t)

	clients, err := NewRedisClients(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer clients.Close()

	ctx := context.Background()
	sub := clients.Subscribe.Subscribe(ctx, "user_updates:test")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, clients.Publish.Publish(ctx, "user_updates:test", "hello").Err())
	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Payload)
}

func TestNewRedis_BadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestOpenSQLite(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}
