package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteSaveAndLoadRelays(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRelay(ctx, Relay{ID: "r1", URL: "wss://a", Active: true}))
	require.NoError(t, s.SaveRelay(ctx, Relay{ID: "r2", URL: "wss://b", Active: false}))

	relays, err := s.LoadRelays(ctx)
	require.NoError(t, err)
	require.Len(t, relays, 2)
}

func TestSQLiteSaveRelayUpsert(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRelay(ctx, Relay{ID: "r1", URL: "wss://a", Active: true}))
	require.NoError(t, s.SaveRelay(ctx, Relay{ID: "r1", URL: "wss://a", Active: false}))

	relays, err := s.LoadRelays(ctx)
	require.NoError(t, err)
	require.Len(t, relays, 1)
	require.False(t, relays[0].Active)
}

func TestSQLiteDeleteRelay(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRelay(ctx, Relay{ID: "r1", URL: "wss://a", Active: true}))
	require.NoError(t, s.DeleteRelay(ctx, "wss://a"))

	relays, err := s.LoadRelays(ctx)
	require.NoError(t, err)
	require.Empty(t, relays)
}

func TestSQLiteLoadConfigCreatesDefault(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	cfg, err := s.LoadConfig(ctx, DefaultOwnerID)
	require.NoError(t, err)
	require.Equal(t, DefaultOwnerID, cfg.OwnerID)
	require.False(t, cfg.PrivateWS)
	require.False(t, cfg.PublicWS)
}

func TestSQLiteSaveConfigRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	cfg := Config{OwnerID: DefaultOwnerID, PrivateWS: true, PublicWS: false}
	require.NoError(t, s.SaveConfig(ctx, cfg))

	got, err := s.LoadConfig(ctx, DefaultOwnerID)
	require.NoError(t, err)
	require.Equal(t, cfg, got)
}
