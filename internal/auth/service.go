package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/logging"
)

// Validation outcomes. A result carries exactly one of these reasons.
const (
	ReasonInvalid  = "invalid"
	ReasonNotFound = "not_found"
	ReasonRevoked  = "revoked"
	ReasonExpired  = "expired"
	ReasonValid    = "valid"
)

const maxTokenNameLength = 100

// GenerateParams describes the token to mint. A nil ExpiresInSeconds means
// the token never expires.
type GenerateParams struct {
	Name             string
	Scopes           []Scope
	InstanceAccess   []InstanceAccess
	ExpiresInSeconds *int64
}

// GeneratedToken is the only place a raw token exists outside the caller.
type GeneratedToken struct {
	RawToken  string        `json:"raw_token"`
	TokenHash string        `json:"token_hash"`
	Metadata  TokenMetadata `json:"metadata"`
}

// ValidationResult classifies a presented raw token.
type ValidationResult struct {
	Valid    bool           `json:"valid"`
	Reason   string         `json:"reason"`
	Metadata *TokenMetadata `json:"metadata,omitempty"`
}

// TokenService mints, validates and manages bearer tokens on top of a
// TokenStore.
type TokenService struct {
	store *TokenStore
	log   *slog.Logger
	now   func() time.Time

	// recordUsage is replaced in tests so usage writes run synchronously.
	recordUsage func(hash string)
}

// NewTokenService wraps a store with the token operations.
func NewTokenService(store *TokenStore) *TokenService {
	s := &TokenService{
		store: store,
		log:   logging.ForComponent("auth"),
		now:   time.Now,
	}
	s.recordUsage = func(hash string) { go s.applyUsage(hash) }
	return s
}

// GenerateToken validates params, draws 16 random bytes and persists the
// hashed result. The raw token in the return value is never stored.
func (s *TokenService) GenerateToken(params GenerateParams) (*GeneratedToken, error) {
	meta, err := s.buildMetadata(params)
	if err != nil {
		return nil, err
	}

	raw, hash, err := mintToken()
	if err != nil {
		return nil, err
	}

	if err := s.store.Put(&StoredToken{TokenHash: hash, Metadata: *meta}); err != nil {
		return nil, err
	}

	s.log.Info("token generated", "name", meta.Name, "hash_prefix", shortHash(hash))
	return &GeneratedToken{RawToken: raw, TokenHash: hash, Metadata: *meta}, nil
}

// ValidateToken classifies a raw token against the in-memory mirror; it
// never reads disk. Usage statistics are written in the background and a
// lost increment under concurrent validations is acceptable.
func (s *TokenService) ValidateToken(raw string) ValidationResult {
	if !ValidRawToken(raw) {
		return ValidationResult{Reason: ReasonInvalid}
	}

	hash := HashToken(raw)
	tok, ok := s.store.Get(hash)
	if !ok {
		return ValidationResult{Reason: ReasonNotFound}
	}
	if tok.Revoked {
		return ValidationResult{Reason: ReasonRevoked}
	}
	if tok.Expired(s.now()) {
		return ValidationResult{Reason: ReasonExpired}
	}

	meta := tok.Metadata
	s.recordUsage(hash)
	return ValidationResult{Valid: true, Reason: ReasonValid, Metadata: &meta}
}

// RevokeToken marks a token revoked and reports whether it existed. The
// entry stays on disk until deleted.
func (s *TokenService) RevokeToken(hash string) (bool, error) {
	hash = strings.ToLower(hash)
	if !ValidTokenHash(hash) {
		return false, nil
	}

	at := s.now().UTC()
	return s.store.Mutate(hash, func(tok *StoredToken) {
		if tok.Revoked {
			return
		}
		tok.Revoked = true
		tok.RevokedAt = &at
	})
}

// DeleteToken removes the entry entirely and reports whether it existed.
func (s *TokenService) DeleteToken(hash string) (bool, error) {
	hash = strings.ToLower(hash)
	if !ValidTokenHash(hash) {
		return false, nil
	}
	return s.store.Remove(hash)
}

// RotateToken mints a replacement carrying the original's name, scopes,
// access levels and absolute expiry, then revokes the original. Usage
// counters start over. Only live tokens rotate; revoked or expired ones
// need a fresh GenerateToken.
func (s *TokenService) RotateToken(hash string) (*GeneratedToken, error) {
	hash = strings.ToLower(hash)
	old, ok := s.store.Get(hash)
	if !ok {
		return nil, errors.EntityNotFound("token", shortHash(hash))
	}
	if old.Revoked {
		return nil, errors.Validation("token is already revoked; generate a new one instead")
	}
	if old.Expired(s.now()) {
		return nil, errors.Validation("token is expired; generate a new one instead")
	}

	raw, newHash, err := mintToken()
	if err != nil {
		return nil, err
	}

	meta := TokenMetadata{
		Name:           old.Metadata.Name,
		CreatedAt:      s.now().UTC(),
		ExpiresAt:      old.Metadata.ExpiresAt,
		Scopes:         old.Metadata.Scopes,
		InstanceAccess: old.Metadata.InstanceAccess,
	}

	// The replacement is persisted before the original is revoked, so a
	// failure in between leaves two live tokens rather than none.
	if err := s.store.Put(&StoredToken{TokenHash: newHash, Metadata: meta}); err != nil {
		return nil, err
	}
	if _, err := s.RevokeToken(hash); err != nil {
		return nil, err
	}

	s.log.Info("token rotated", "name", meta.Name, "old_prefix", shortHash(hash), "new_prefix", shortHash(newHash))
	return &GeneratedToken{RawToken: raw, TokenHash: newHash, Metadata: meta}, nil
}

// FindTokenByName resolves a display name among live tokens. Matching is
// exact and case-sensitive; when several live tokens share the name the
// newest wins.
func (s *TokenService) FindTokenByName(name string) (*StoredToken, bool) {
	now := s.now()
	var match *StoredToken
	for _, tok := range s.store.All() {
		if tok.Revoked || tok.Expired(now) || tok.Metadata.Name != name {
			continue
		}
		match = tok
	}
	return match, match != nil
}

// FindTokenByHashPrefix returns every token whose hash starts with prefix,
// revoked and expired entries included. Matching ignores case; resolving
// prefix collisions is the caller's problem.
func (s *TokenService) FindTokenByHashPrefix(prefix string) []*StoredToken {
	prefix = strings.ToLower(prefix)
	if prefix == "" {
		return nil
	}

	var out []*StoredToken
	for _, tok := range s.store.All() {
		if strings.HasPrefix(tok.TokenHash, prefix) {
			out = append(out, tok)
		}
	}
	return out
}

// ListTokens returns every stored token, oldest first.
func (s *TokenService) ListTokens() []*StoredToken {
	return s.store.All()
}

func (s *TokenService) buildMetadata(params GenerateParams) (*TokenMetadata, error) {
	if params.Name == "" {
		return nil, errors.TokenValidation("token name is required")
	}
	if !tokenNamePattern.MatchString(params.Name) {
		return nil, errors.TokenValidation("token name may only use letters, digits, spaces, '-', '_' and '.'")
	}
	if utf8.RuneCountInString(params.Name) > maxTokenNameLength {
		return nil, errors.TokenValidationf("token name exceeds %d characters", maxTokenNameLength)
	}

	scopes, err := normalizeScopes(params.Scopes)
	if err != nil {
		return nil, err
	}
	access, err := normalizeAccess(params.InstanceAccess)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var expiresAt *time.Time
	if params.ExpiresInSeconds != nil {
		secs := *params.ExpiresInSeconds
		if secs <= 0 || secs > MaxExpirySeconds {
			return nil, errors.TokenValidationf("expiry must be between 1 and %d seconds", MaxExpirySeconds)
		}
		t := now.Add(time.Duration(secs) * time.Second)
		expiresAt = &t
	}

	return &TokenMetadata{
		Name:           params.Name,
		CreatedAt:      now,
		ExpiresAt:      expiresAt,
		Scopes:         scopes,
		InstanceAccess: access,
	}, nil
}

func (s *TokenService) applyUsage(hash string) {
	at := s.now().UTC()
	_, err := s.store.Mutate(hash, func(tok *StoredToken) {
		tok.Metadata.UseCount++
		tok.Metadata.LastUsedAt = &at
	})
	if err != nil {
		s.log.Warn("recording token usage failed", "hash_prefix", shortHash(hash), "error", err)
	}
}

func normalizeScopes(in []Scope) ([]Scope, error) {
	if len(in) == 0 {
		return nil, errors.TokenValidation("at least one scope is required")
	}

	seen := make(map[Scope]bool, len(in))
	out := make([]Scope, 0, len(in))
	for _, sc := range in {
		switch sc {
		case ScopeRead, ScopeWrite, ScopeAdmin:
		default:
			return nil, errors.TokenValidationf("unknown scope %q", sc)
		}
		if seen[sc] {
			continue
		}
		seen[sc] = true
		out = append(out, sc)
	}
	return out, nil
}

func normalizeAccess(in []InstanceAccess) ([]InstanceAccess, error) {
	if len(in) == 0 {
		return nil, errors.TokenValidation("at least one instance access level is required")
	}

	seen := make(map[InstanceAccess]bool, len(in))
	out := make([]InstanceAccess, 0, len(in))
	for _, ia := range in {
		switch ia {
		case AccessPrivate, AccessWork, AccessPublic:
		default:
			return nil, errors.TokenValidationf("unknown instance access %q", ia)
		}
		if seen[ia] {
			continue
		}
		seen[ia] = true
		out = append(out, ia)
	}
	return out, nil
}

func mintToken() (raw, hash string, err error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("read random bytes: %w", err)
	}
	raw = TokenPrefix + hex.EncodeToString(buf)
	return raw, HashToken(raw), nil
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
