package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/meshcore/pkg/apierr"
	"github.com/cuemby/meshcore/pkg/log"
	"github.com/cuemby/meshcore/pkg/types"
	"github.com/golang-jwt/jwt/v5"
)

// DynamicClaims is the public-edge JWT payload: a standard claim set plus
// the role and optional project scoping the authorization layer checks
// against.
type DynamicClaims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
	Project string `json:"project,omitempty"`
}

// JWTConfig configures JWKS fetching and token validation, sourced from
// DYNAMIC_JWKS_URL / DYNAMIC_JWT_ISSUER / DYNAMIC_JWT_AUDIENCE.
type JWTConfig struct {
	JWKSURL string
	Issuer string
	Audience string
	Leeway time.Duration
}

type jwkKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N string `json:"n"`
	E string `json:"e"`
	Crv string `json:"crv"`
	X string `json:"x"`
	Y string `json:"y"`
}

type jwkSet struct {
	Keys []jwkKey `json:"keys"`
}

// JWKSManager fetches and caches a JSON Web Key Set, refreshing it on an
// hourly interval.
type JWKSManager struct {
	config JWTConfig
	client *http.Client
	refreshInterval time.Duration

	mu sync.RWMutex
	keysByKid map[string]any
	lastRefresh time.Time
}

// NewJWKSManager constructs a manager over config with its own 10s fetch
// timeout, independent of the caller's request context, and an hour
// refresh interval.
func NewJWKSManager(config JWTConfig) *JWKSManager {
	return &JWKSManager{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
		refreshInterval: time.Hour,
		keysByKid: make(map[string]any),
	}
}

func (m *JWKSManager) needsRefresh() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRefresh.IsZero() || time.Since(m.lastRefresh) > m.refreshInterval
}

// Refresh force-fetches and re-parses the JWKS document.
func (m *JWKSManager) Refresh() error {
	log.Logger.Debug().Str("component", "auth.jwks").Str("url", m.config.JWKSURL).Msg("refreshing JWKS")

	resp, err := m.client.Get(m.config.JWKSURL)
	if err != nil {
		return fmt.Errorf("fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS request failed with status %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("parse JWKS: %w", err)
	}

	keys := make(map[string]any, len(set.Keys))
	for _, k := range set.Keys {
		key, err := decodingKeyFromJWK(k)
		if err != nil {
			log.Logger.Warn().Str("component", "auth.jwks").Str("kid", k.Kid).Err(err).Msg("skipping unparseable JWK")
			continue
		}
		keys[k.Kid] = key
	}

	m.mu.Lock()
	m.keysByKid = keys
	m.lastRefresh = time.Now()
	m.mu.Unlock()
	return nil
}

func (m *JWKSManager) keyFor(kid string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.keysByKid[kid]
	return key, ok
}

// JWTAuthenticator validates bearer tokens against a JWKSManager, issuer,
// and audience.
type JWTAuthenticator struct {
	jwks *JWKSManager
	config JWTConfig
}

// NewJWTAuthenticator constructs a JWTAuthenticator over jwks.
func NewJWTAuthenticator(jwks *JWKSManager, config JWTConfig) *JWTAuthenticator {
	return &JWTAuthenticator{jwks: jwks, config: config}
}

// Authenticate validates token, refreshing the JWKS cache on a cache miss
// or a stale cache, and returns the resulting Principal.
func (a *JWTAuthenticator) Authenticate(token string) (Principal, error) {
	if a.jwks.needsRefresh() {
		if err := a.jwks.Refresh(); err != nil {
			return Principal{}, apierr.DependencyFailure(err, "JWKS refresh failed")
		}
	}

	claims := &DynamicClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := a.jwks.keyFor(kid)
		if !ok {
			if refreshErr := a.jwks.Refresh(); refreshErr == nil {
				key, ok = a.jwks.keyFor(kid)
			}
		}
		if !ok {
			return nil, fmt.Errorf("no JWKS key for kid %q", kid)
		}
		return key, nil
	},
		jwt.WithIssuer(a.config.Issuer),
		jwt.WithAudience(a.config.Audience),
		jwt.WithLeeway(a.config.Leeway),
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
	)
	if err != nil || !parsed.Valid {
		return Principal{}, apierr.Unauthorized("invalid JWT: %v", err)
	}

	return Principal{
		Address: types.Address(claims.Subject),
		Method: MethodJWT,
		Role: claims.Role,
		Project: claims.Project,
	}, nil
}
