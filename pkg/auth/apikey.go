package auth

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/cuemby/meshcore/pkg/apierr"
	"github.com/cuemby/meshcore/pkg/types"
)

// AccountDirectory resolves the account owning a given API key.
type AccountDirectory interface {
	Accounts() []types.Account
}

// accountLister is the subset of *crdt.Map[types.Account] this package
// needs; avoiding a direct pkg/crdt import keeps AccountDirectory
// satisfiable by a bare slice in tests.
type accountLister interface {
	List() []types.Account
}

// AccountsFromMap adapts a *crdt.Map[types.Account] (or anything with an
// equivalent List method) into an AccountDirectory.
func AccountsFromMap(m accountLister) AccountDirectory {
	return mapAdapter{m}
}

type mapAdapter struct{ m accountLister }

func (a mapAdapter) Accounts() []types.Account { return a.m.List() }

// HashAPIKeySecret returns the hex-encoded SHA-256 digest stored alongside
// an APIKey record; the raw secret itself is never persisted.
func HashAPIKeySecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// APIKeyAuthenticator admits requests carrying X-API-Key, rate-limiting
// each key per its owning account's subscription tier.
type APIKeyAuthenticator struct {
	accounts AccountDirectory
	limiter  *RateLimiter
}

// NewAPIKeyAuthenticator constructs an APIKeyAuthenticator over accounts.
func NewAPIKeyAuthenticator(accounts AccountDirectory) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{accounts: accounts, limiter: NewRateLimiter()}
}

// Authenticate looks up secret by its SHA-256 digest, rejecting revoked
// keys and unknown keys, then applies the owning account's rate limit.
func (a *APIKeyAuthenticator) Authenticate(secret string) (Principal, *RateLimitResult, error) {
	digest := HashAPIKeySecret(secret)

	for _, acct := range a.accounts.Accounts() {
		for _, key := range acct.APIKeys {
			if key.SecretSHA != digest {
				continue
			}
			if !key.RevokedAt.IsZero() {
				return Principal{}, nil, apierr.Unauthorized("API key %s has been revoked", key.ID)
			}

			result := a.limiter.Check(key.ID, acct.Tier)
			if !result.Allowed {
				return Principal{}, result, apierr.RateLimited("rate limit exceeded for key %s", key.ID)
			}
			return Principal{Address: acct.ID, Method: MethodAPIKey}, result, nil
		}
	}
	return Principal{}, nil, apierr.Unauthorized("unknown API key")
}
