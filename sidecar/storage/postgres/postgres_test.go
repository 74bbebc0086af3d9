package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x-research-team/dtx-sync/sidecar"
	"github.com/x-research-team/dtx-sync/sidecar/storage"
)

func TestWhereClause(t *testing.T) {
	t.Parallel()

	where, args := whereClause(storage.Filter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = whereClause(storage.Filter{
		Query:   "web",
		Filters: map[string]string{"active": "true", "collector": "filebeat"},
	})
	assert.Equal(t, " WHERE (node_name ILIKE $1 OR node_id ILIKE $1) AND active = $2 AND collectors ? $3", where)
	assert.Equal(t, []any{"%web%", true, "filebeat"}, args)
}

// Интеграционный тест выполняется только при заданной строке подключения.
func TestPostgresStorage(t *testing.T) {
	dsn := os.Getenv("SIDECAR_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SIDECAR_TEST_DATABASE_URL не задан")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	_, _ = pool.Exec(ctx, "DROP TABLE IF EXISTS sidecars, sidecar_actions")
	s, err := NewPostgresStorage(ctx, pool)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.SaveSidecar(ctx, sidecar.Sidecar{NodeID: "id-1", NodeName: "web-01", Active: true, LastSeen: now, Collectors: []string{"filebeat"}}))
	require.NoError(t, s.SaveSidecar(ctx, sidecar.Sidecar{NodeID: "id-2", NodeName: "db-01", LastSeen: now}))

	list, total, err := s.ListSidecars(ctx, storage.Filter{Filters: map[string]string{"collector": "filebeat"}})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "web-01", list[0].NodeName)

	list, total, err = s.ListSidecars(ctx, storage.Filter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "db-01", list[0].NodeName)

	require.NoError(t, s.SaveActions(ctx,
		storage.NewActions("id-1", []storage.CollectorAction{{CollectorID: "c1", Properties: map[string]any{"restart": true}}}),
		storage.NewActions("id-2", []storage.CollectorAction{{CollectorID: "c2", Properties: map[string]any{"stop": true}}}),
	))

	got, err := s.FindActions(ctx, "id-1", true)
	require.NoError(t, err)
	assert.Equal(t, "c1", got.Actions[0].CollectorID)

	_, err = s.FindActions(ctx, "id-1", false)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
