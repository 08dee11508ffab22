package filesystem

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/renewkit/acme"
)

func TestStore_SaveFindDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "certs"))
	require.NoError(t, err)

	ctx := context.Background()
	cert := &acme.CertRecord{Thumbprint: "abc123", CertificateChain: []byte("chain"), PrivateKey: []byte("key")}

	require.NoError(t, store.Save(ctx, cert))
	require.Equal(t, Name, cert.StoreName)

	found, err := store.FindByThumbprint(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, []byte("chain"), found.CertificateChain)
	require.Equal(t, []byte("key"), found.PrivateKey)

	require.NoError(t, store.Delete(ctx, cert))
	gone, err := store.FindByThumbprint(ctx, "abc123")
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestStore_FindByThumbprint_Missing(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	found, err := store.FindByThumbprint(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestStore_Delete_ToleratesMissingFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	err = store.Delete(context.Background(), &acme.CertRecord{Thumbprint: "never-saved"})
	require.NoError(t, err)
}
