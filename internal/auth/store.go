package auth

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/logging"
)

const tokenFileName = "tokens.json"

// TokenStore owns {DATA_PATH}/tokens.json and an in-memory mirror of it.
// Writes go to a temp file and rename over the original; the cache is only
// swapped once the rename lands, so the mirror never drifts ahead of disk.
//
// Exactly one process uses the store at a time. There is no cross-process
// locking; concurrent first-time initialisation from two processes would
// race the rename.
type TokenStore struct {
	path  string
	mu    sync.RWMutex
	cache map[string]*StoredToken
	log   *slog.Logger
}

// NewTokenStore opens (or initialises) the token file under dataPath. A
// missing file becomes an empty, valid store and is written immediately.
func NewTokenStore(dataPath string) (*TokenStore, error) {
	if dataPath == "" {
		return nil, errors.Validation("data path is required")
	}
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, errors.TokenStorage(err, "init", false)
	}

	s := &TokenStore{
		path: filepath.Join(dataPath, tokenFileName),
		log:  logging.ForComponent("auth"),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the token file location.
func (s *TokenStore) Path() string {
	return s.path
}

// Get returns a copy of the stored token for a hash.
func (s *TokenStore) Get(hash string) (*StoredToken, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.cache[hash]
	if !ok {
		return nil, false
	}
	cp := *tok
	return &cp, true
}

// All returns copies of every stored token, oldest first.
func (s *TokenStore) All() []*StoredToken {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*StoredToken, 0, len(s.cache))
	for _, tok := range s.cache {
		cp := *tok
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Metadata.CreatedAt.Equal(out[j].Metadata.CreatedAt) {
			return out[i].TokenHash < out[j].TokenHash
		}
		return out[i].Metadata.CreatedAt.Before(out[j].Metadata.CreatedAt)
	})
	return out
}

// Count returns the number of stored tokens, revoked ones included.
func (s *TokenStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// Put inserts or replaces a token keyed by its hash.
func (s *TokenStore) Put(tok *StoredToken) error {
	if tok == nil || !ValidTokenHash(tok.TokenHash) {
		return errors.TokenValidation("stored token must carry a 64-hex hash")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cloneCache()
	cp := *tok
	next[cp.TokenHash] = &cp
	if err := s.persist(next); err != nil {
		return err
	}
	s.cache = next
	return nil
}

// Mutate applies fn to a copy of the token and persists the result. It
// reports false when the hash is unknown.
func (s *TokenStore) Mutate(hash string, fn func(*StoredToken)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.cache[hash]
	if !ok {
		return false, nil
	}

	cp := *cur
	fn(&cp)
	next := s.cloneCache()
	next[hash] = &cp
	if err := s.persist(next); err != nil {
		return false, err
	}
	s.cache = next
	return true, nil
}

// Remove deletes a token entirely. It reports false when the hash is
// unknown.
func (s *TokenStore) Remove(hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache[hash]; !ok {
		return false, nil
	}

	next := s.cloneCache()
	delete(next, hash)
	if err := s.persist(next); err != nil {
		return false, err
	}
	s.cache = next
	return true, nil
}

// cloneCache copies the map; callers hold the write lock.
func (s *TokenStore) cloneCache() map[string]*StoredToken {
	next := make(map[string]*StoredToken, len(s.cache)+1)
	for k, v := range s.cache {
		next[k] = v
	}
	return next
}

func (s *TokenStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			s.cache = make(map[string]*StoredToken)
			if perr := s.persist(s.cache); perr != nil {
				return perr
			}
			s.log.Info("initialised empty token store", "path", s.path)
			return nil
		}
		return errors.TokenStorage(err, "load", true)
	}

	var file TokenStoreFile
	if err := json.Unmarshal(data, &file); err != nil {
		return errors.TokenStorage(err, "load", false)
	}
	if file.Version != StoreVersion {
		return errors.TokenStorage(fmt.Errorf("unsupported token store version %q", file.Version), "load", false)
	}
	if file.Tokens == nil {
		file.Tokens = make(map[string]*StoredToken)
	}
	for hash, tok := range file.Tokens {
		if tok.TokenHash == "" {
			tok.TokenHash = hash
		}
	}

	s.cache = file.Tokens
	return nil
}

// persist writes the map atomically; callers hold the write lock.
func (s *TokenStore) persist(tokens map[string]*StoredToken) error {
	file := TokenStoreFile{Version: StoreVersion, Tokens: tokens}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return errors.TokenStorage(err, "save", false)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.TokenStorage(err, "save", true)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return errors.TokenStorage(err, "save", true)
	}
	return nil
}
