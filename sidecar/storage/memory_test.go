package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x-research-team/dtx-sync/sidecar"
)

func seed(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()
	for _, sc := range []sidecar.Sidecar{
		{NodeID: "id-3", NodeName: "web-02", Active: true, OperatingSystem: "Linux", Collectors: []string{"filebeat"}},
		{NodeID: "id-1", NodeName: "db-01", Active: false, OperatingSystem: "Linux", Collectors: []string{"filebeat", "nxlog"}},
		{NodeID: "id-2", NodeName: "web-01", Active: true, OperatingSystem: "Windows", Collectors: []string{"winlogbeat"}},
	} {
		require.NoError(t, s.SaveSidecar(ctx, sc))
	}
}

func names(list []sidecar.Sidecar) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.NodeName)
	}
	return out
}

func TestMemoryStorage_ListSidecars(t *testing.T) {
	t.Parallel()

	s := NewMemoryStorage()
	seed(t, s)

	list, total, err := s.ListSidecars(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"db-01", "web-01", "web-02"}, names(list))

	list, total, err = s.ListSidecars(context.Background(), Filter{Query: "WEB", Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"web-02"}, names(list))

	list, _, err = s.ListSidecars(context.Background(), Filter{Filters: map[string]string{"active": "true", "os": "linux"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"web-02"}, names(list))

	list, _, err = s.ListSidecars(context.Background(), Filter{Filters: map[string]string{"collector": "nxlog"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"db-01"}, names(list))

	list, total, err = s.ListSidecars(context.Background(), Filter{Offset: 10, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, list)
}

func TestMemoryStorage_Actions(t *testing.T) {
	t.Parallel()

	s := NewMemoryStorage()
	ctx := context.Background()

	_, err := s.FindActions(ctx, "id-1", false)
	assert.ErrorIs(t, err, ErrNotFound)

	first := NewActions("id-1", []CollectorAction{{CollectorID: "c1", Properties: map[string]any{"restart": true}}})
	require.NoError(t, s.SaveActions(ctx, first))
	second := NewActions("id-1", []CollectorAction{{CollectorID: "c2", Properties: map[string]any{"stop": true}}})
	require.NoError(t, s.SaveActions(ctx, second))

	got, err := s.FindActions(ctx, "id-1", false)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID, "новая очередь заменяет прежнюю")
	assert.Equal(t, "c2", got.Actions[0].CollectorID)

	_, err = s.FindActions(ctx, "id-1", true)
	require.NoError(t, err)
	_, err = s.FindActions(ctx, "id-1", false)
	assert.ErrorIs(t, err, ErrNotFound, "очередь удаляется после чтения с remove")
}
