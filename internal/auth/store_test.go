package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegraphhq/codegraph/internal/errors"
)

func newTestStore(t *testing.T) *TokenStore {
	t.Helper()
	store, err := NewTokenStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func storedFixture(hash, name string, createdAt time.Time) *StoredToken {
	return &StoredToken{
		TokenHash: hash,
		Metadata: TokenMetadata{
			Name:           name,
			CreatedAt:      createdAt,
			Scopes:         []Scope{ScopeRead},
			InstanceAccess: []InstanceAccess{AccessPrivate},
		},
	}
}

func fixtureHash(seed string) string {
	return HashToken(TokenPrefix + seed)
}

func TestNewTokenStoreCreatesEmptyFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTokenStore(dir)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "tokens.json"))
	require.NoError(t, err, "missing token file must be created on first open")

	var file TokenStoreFile
	require.NoError(t, json.Unmarshal(data, &file))
	assert.Equal(t, StoreVersion, file.Version)
	assert.Empty(t, file.Tokens)
	assert.Equal(t, 0, store.Count())
}

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTokenStore(dir)
	require.NoError(t, err)

	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	expires := created.Add(24 * time.Hour)
	used := created.Add(time.Hour)
	tok := &StoredToken{
		TokenHash: fixtureHash("roundtrip"),
		Metadata: TokenMetadata{
			Name:           "ci bot",
			CreatedAt:      created,
			ExpiresAt:      &expires,
			Scopes:         []Scope{ScopeRead, ScopeWrite},
			InstanceAccess: []InstanceAccess{AccessPrivate, AccessWork},
			LastUsedAt:     &used,
			UseCount:       7,
		},
		Revoked:   true,
		RevokedAt: &used,
	}
	require.NoError(t, store.Put(tok))

	reopened, err := NewTokenStore(dir)
	require.NoError(t, err)

	got, ok := reopened.Get(tok.TokenHash)
	require.True(t, ok)
	assert.Equal(t, tok, got, "no field may be lost across persist and reload")

	_, err = os.Stat(filepath.Join(dir, "tokens.json.tmp"))
	assert.True(t, os.IsNotExist(err), "temp file must not survive a successful write")
}

func TestStoreGetReturnsCopy(t *testing.T) {
	store := newTestStore(t)
	hash := fixtureHash("copy")
	require.NoError(t, store.Put(storedFixture(hash, "original", time.Now().UTC())))

	got, ok := store.Get(hash)
	require.True(t, ok)
	got.Metadata.Name = "tampered"

	again, ok := store.Get(hash)
	require.True(t, ok)
	assert.Equal(t, "original", again.Metadata.Name)
}

func TestStorePutRejectsBadHash(t *testing.T) {
	store := newTestStore(t)

	err := store.Put(storedFixture("not-a-hash", "x", time.Now()))
	require.Error(t, err)
	assert.Equal(t, errors.KindTokenValidation, errors.KindOf(err))
}

func TestStoreMutateUnknownHash(t *testing.T) {
	store := newTestStore(t)

	ok, err := store.Mutate(fixtureHash("ghost"), func(tok *StoredToken) {
		tok.Revoked = true
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreMutatePersists(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTokenStore(dir)
	require.NoError(t, err)

	hash := fixtureHash("mutate")
	require.NoError(t, store.Put(storedFixture(hash, "worker", time.Now().UTC())))

	ok, err := store.Mutate(hash, func(tok *StoredToken) {
		tok.Metadata.UseCount = 3
	})
	require.NoError(t, err)
	require.True(t, ok)

	reopened, err := NewTokenStore(dir)
	require.NoError(t, err)
	got, ok := reopened.Get(hash)
	require.True(t, ok)
	assert.Equal(t, int64(3), got.Metadata.UseCount)
}

func TestStoreRemove(t *testing.T) {
	store := newTestStore(t)
	hash := fixtureHash("remove")
	require.NoError(t, store.Put(storedFixture(hash, "gone", time.Now().UTC())))

	ok, err := store.Remove(hash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, store.Count())

	ok, err = store.Remove(hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreAllSortedByCreation(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(storedFixture(fixtureHash("b"), "second", base.Add(time.Hour))))
	require.NoError(t, store.Put(storedFixture(fixtureHash("a"), "first", base)))
	require.NoError(t, store.Put(storedFixture(fixtureHash("c"), "third", base.Add(2*time.Hour))))

	all := store.All()
	require.Len(t, all, 3)
	assert.Equal(t, "first", all[0].Metadata.Name)
	assert.Equal(t, "second", all[1].Metadata.Name)
	assert.Equal(t, "third", all[2].Metadata.Name)
}

func TestStoreLoadBackfillsHashFromKey(t *testing.T) {
	dir := t.TempDir()
	hash := fixtureHash("legacy")
	file := TokenStoreFile{
		Version: StoreVersion,
		Tokens: map[string]*StoredToken{
			hash: {Metadata: TokenMetadata{Name: "legacy", CreatedAt: time.Now().UTC()}},
		},
	}
	data, err := json.MarshalIndent(file, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tokens.json"), data, 0o600))

	store, err := NewTokenStore(dir)
	require.NoError(t, err)

	got, ok := store.Get(hash)
	require.True(t, ok)
	assert.Equal(t, hash, got.TokenHash)
}

func TestStoreLoadRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tokens.json"), []byte("{not json"), 0o600))

	_, err := NewTokenStore(dir)
	require.Error(t, err)
	assert.Equal(t, errors.KindTokenStorage, errors.KindOf(err))
}

func TestStoreLoadRejectsUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tokens.json"), []byte(`{"version":"9.9","tokens":{}}`), 0o600))

	_, err := NewTokenStore(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "9.9")
}

func TestNewTokenStoreRequiresPath(t *testing.T) {
	_, err := NewTokenStore("")
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}
