package store_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthvault/internal/domain"
	"healthvault/internal/store"
)

func testIdentity() domain.Identity {
	return domain.Identity{
		Address:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
		PrivateKey: []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}
}

func TestIdentity_SaveLoad_OK(t *testing.T) {
	var ids domain.IdentityStore = store.NewFastIdentityFileStore(t.TempDir())

	ok, err := ids.HasIdentity()
	require.NoError(t, err)
	assert.False(t, ok)

	id := testIdentity()
	require.NoError(t, ids.SaveIdentity("pass", id))

	got, err := ids.LoadIdentity("pass")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	ok, err = ids.HasIdentity()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIdentity_WrongPassphrase_Fails(t *testing.T) {
	ids := store.NewFastIdentityFileStore(t.TempDir())
	require.NoError(t, ids.SaveIdentity("correct", testIdentity()))

	_, err := ids.LoadIdentity("wrong")
	require.ErrorIs(t, err, store.ErrWrongPassphrase)
}

func TestIdentity_AddressWithoutPassphrase(t *testing.T) {
	ids := store.NewFastIdentityFileStore(t.TempDir())
	_, err := ids.StoredAddress()
	require.ErrorIs(t, err, store.ErrNoIdentity)

	id := testIdentity()
	require.NoError(t, ids.SaveIdentity("pass", id))

	addr, err := ids.StoredAddress()
	require.NoError(t, err)
	assert.Equal(t, id.Address, addr)
}

func TestIdentity_TamperedAddressRejected(t *testing.T) {
	dir := t.TempDir()
	ids := store.NewFastIdentityFileStore(dir)
	require.NoError(t, ids.SaveIdentity("pass", testIdentity()))

	path := filepath.Join(dir, "owner.key.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := []byte(strings.Replace(string(data), "0x1111111111111111111111111111111111111111",
		"0x2222222222222222222222222222222222222222", 1))
	require.NoError(t, os.WriteFile(path, tampered, 0o600))

	_, err = ids.LoadIdentity("pass")
	require.ErrorIs(t, err, store.ErrWrongPassphrase)
}

func TestIdentity_FileMode(t *testing.T) {
	dir := t.TempDir()
	ids := store.NewFastIdentityFileStore(dir)
	require.NoError(t, ids.SaveIdentity("pass", testIdentity()))

	info, err := os.Stat(filepath.Join(dir, "owner.key.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
