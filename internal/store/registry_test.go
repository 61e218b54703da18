package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryGetActiveFailsFastBeforeSetActive(t *testing.T) {
	r := NewRegistry()
	_, err := r.GetActive()
	require.ErrorIs(t, err, ErrUnknownSource)
}

func TestRegistrySetActiveRejectsUnknownName(t *testing.T) {
	r := NewRegistry()
	err := r.SetActive("nope")
	require.ErrorIs(t, err, ErrUnknownSource)
}

func TestRegistrySwitchesActiveBackend(t *testing.T) {
	r := NewRegistry()
	fileStore := NewSQLite(filepath.Join(t.TempDir(), "file.db"))
	serverStore := NewSQLite(filepath.Join(t.TempDir(), "server.db"))
	r.Register("file", fileStore)
	r.Register("server", serverStore)

	require.NoError(t, r.SetActive("file"))
	got, err := r.GetActive()
	require.NoError(t, err)
	require.Same(t, Store(fileStore), got)

	require.NoError(t, r.SetActive("server"))
	got, err = r.GetActive()
	require.NoError(t, err)
	require.Same(t, Store(serverStore), got)

	require.ElementsMatch(t, []string{"file", "server"}, r.AvailableSources())
}

func TestRegistryConnectAllAndDisconnectAll(t *testing.T) {
	r := NewRegistry()
	r.Register("file", NewSQLite(filepath.Join(t.TempDir(), "file.db")))
	ctx := context.Background()
	require.NoError(t, r.ConnectAll(ctx))
	require.NoError(t, r.DisconnectAll(ctx))
}
