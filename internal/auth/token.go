// Package auth issues and validates the bearer tokens that gate the tool
// server. Raw tokens exist only in the caller's hands; everything at rest
// is a SHA-256 hash.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"time"
)

// TokenPrefix starts every raw token. The remainder is 32 lowercase hex
// characters from 16 random bytes.
const TokenPrefix = "pk_mcp_"

// MaxExpirySeconds caps token lifetimes at one year.
const MaxExpirySeconds = 31_536_000

var (
	rawTokenPattern  = regexp.MustCompile(`^pk_mcp_[a-f0-9]{32}$`)
	tokenHashPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)
	tokenNamePattern = regexp.MustCompile(`^[\w\s\-.]+$`)
)

// Scope is one permission grant carried by a token.
type Scope string

const (
	ScopeRead  Scope = "read"
	ScopeWrite Scope = "write"
	ScopeAdmin Scope = "admin"
)

// InstanceAccess names a workspace class the token may reach.
type InstanceAccess string

const (
	AccessPrivate InstanceAccess = "private"
	AccessWork    InstanceAccess = "work"
	AccessPublic  InstanceAccess = "public"
)

// TokenMetadata is everything known about a token except its secret.
type TokenMetadata struct {
	Name           string           `json:"name"`
	CreatedAt      time.Time        `json:"created_at"`
	ExpiresAt      *time.Time       `json:"expires_at"`
	Scopes         []Scope          `json:"scopes"`
	InstanceAccess []InstanceAccess `json:"instance_access"`
	LastUsedAt     *time.Time       `json:"last_used_at,omitempty"`
	UseCount       int64            `json:"use_count"`
}

// StoredToken is the at-rest form: hash plus metadata, never the raw token.
type StoredToken struct {
	TokenHash string        `json:"token_hash"`
	Metadata  TokenMetadata `json:"metadata"`
	Revoked   bool          `json:"revoked"`
	RevokedAt *time.Time    `json:"revoked_at,omitempty"`
}

// Expired reports whether the token's expiry has passed as of now.
func (t *StoredToken) Expired(now time.Time) bool {
	return t.Metadata.ExpiresAt != nil && t.Metadata.ExpiresAt.Before(now)
}

// StoreVersion is the on-disk schema version of tokens.json.
const StoreVersion = "1.0"

// TokenStoreFile is the tokens.json schema.
type TokenStoreFile struct {
	Version string                  `json:"version"`
	Tokens  map[string]*StoredToken `json:"tokens"`
}

// HashToken returns the lowercase hex SHA-256 of a raw token. This is the
// only form a token takes at rest.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ValidRawToken reports whether a candidate matches the raw token format.
func ValidRawToken(raw string) bool {
	return rawTokenPattern.MatchString(raw)
}

// ValidTokenHash reports whether a string looks like a stored token hash.
func ValidTokenHash(hash string) bool {
	return tokenHashPattern.MatchString(hash)
}
