package plugin

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/tcloud-dev/tcloud-mcp-platform/pkg/audit"
	"github.com/tcloud-dev/tcloud-mcp-platform/pkg/auth"
	"github.com/tcloud-dev/tcloud-mcp-platform/pkg/cache"
	redisclient "github.com/tcloud-dev/tcloud-mcp-platform/pkg/clients/redis"
	"github.com/tcloud-dev/tcloud-mcp-platform/pkg/config"
	"github.com/tcloud-dev/tcloud-mcp-platform/pkg/tcloud"
)

// testAppClientID is the app client id expected on access tokens in tests.
const testAppClientID = "test-app-client-id"

// testKid is the key id served by the test JWKS endpoint.
const testKid = "kid-1"

// signToken creates an RS256-signed JWT with the given claims and kid.
func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	tokenStr, err := token.SignedString(key)
	require.NoError(t, err, "failed to sign token")
	return tokenStr
}

// jwksServer serves a single-key JWKS document with failure injection and
// a request counter.
type jwksServer struct {
	srv      *httptest.Server
	requests atomic.Int64

	mu   sync.Mutex
	kid  string
	pub  *rsa.PublicKey
	down bool
}

func newJWKSServer(t *testing.T, kid string, pub *rsa.PublicKey) *jwksServer {
	t.Helper()
	s := &jwksServer{kid: kid, pub: pub}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *jwksServer) handle(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)

	s.mu.Lock()
	kid, pub, down := s.kid, s.pub, s.down
	s.mu.Unlock()

	if down {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (s *jwksServer) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// permissionsServer is a stub TCloud permissions API with a swappable
// response and a request counter.
type permissionsServer struct {
	srv      *httptest.Server
	requests atomic.Int64

	mu     sync.Mutex
	status int
	body   any
}

func newPermissionsServer(t *testing.T) *permissionsServer {
	t.Helper()
	s := &permissionsServer{
		status: http.StatusOK,
		body: []map[string]any{
			{"cloud_id": "cloud-001", "role": "admin"},
			{"cloud_id": "cloud-002"},
		},
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *permissionsServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/customer" {
		http.NotFound(w, r)
		return
	}
	s.requests.Add(1)

	s.mu.Lock()
	status, body := s.status, s.body
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *permissionsServer) SetResponse(status int, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status, s.body = status, body
}

// fixture wires a full plugin against stub JWKS and permissions servers
// and a miniredis-backed cache.
type fixture struct {
	plugin      *Plugin
	key         *rsa.PrivateKey
	jwks        *jwksServer
	permissions *permissionsServer
	tokens      *cache.TokenCache
	settings    *config.Settings
	mr          *miniredis.Miniredis
}

// newFixture builds an initialized plugin. Mutators run on the settings
// before components are constructed.
func newFixture(t *testing.T, mutators ...func(*config.Settings)) *fixture {
	t.Helper()
	f := newUninitializedFixture(t, nil, mutators...)
	require.NoError(t, f.plugin.Initialize(context.Background()))
	return f
}

// newUninitializedFixture builds the plugin without calling Initialize,
// so lifecycle tests can drive it themselves.
func newUninitializedFixture(t *testing.T, recorder *audit.Recorder, mutators ...func(*config.Settings)) *fixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key pair")

	jwks := newJWKSServer(t, testKid, &key.PublicKey)
	perms := newPermissionsServer(t)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	redisClient := redisclient.NewFromClient(rdb, nil)

	settings := &config.Settings{
		CognitoUserPoolID:       "us-east-2_TestPool1",
		CognitoRegion:           "us-east-2",
		CognitoAppClientID:      testAppClientID,
		TCloudAPIURL:            perms.srv.URL,
		TCloudAPIKey:            "test-api-key",
		PermissionCacheTTL:      time.Minute,
		TokenCacheTTL:           time.Minute,
		JWKSCacheTTL:            time.Hour,
		JWKSFetchTimeout:        5 * time.Second,
		TCloudAPITimeout:        5 * time.Second,
		ClockSkewTolerance:      5 * time.Minute,
		EnableHeaderPropagation: true,
		PermissionFailureMode:   config.FailOpen,
	}
	for _, mutate := range mutators {
		mutate(settings)
	}

	keys := auth.NewKeySetCache(jwks.srv.URL,
		settings.JWKSCacheTTL, settings.JWKSFetchTimeout, nil)
	validator, err := auth.NewValidator(auth.ValidatorConfig{
		Issuer:      settings.CognitoIssuer(),
		AppClientID: settings.CognitoAppClientID,
		ClockSkew:   settings.ClockSkewTolerance,
	}, keys)
	require.NoError(t, err)

	tcloudClient, err := tcloud.NewClient(tcloud.Config{
		BaseURL:                settings.TCloudAPIURL,
		APIKey:                 settings.TCloudAPIKey,
		Timeout:                settings.TCloudAPITimeout,
		DefaultReadPermissions: settings.DefaultReadPermissions,
	}, nil)
	require.NoError(t, err)

	tokens := cache.NewTokenCache(redisClient, settings.TokenCacheTTL)
	permCache := cache.NewPermissionCache(redisClient, settings.PermissionCacheTTL)

	return &fixture{
		plugin: NewFromComponents(settings, validator, keys,
			permCache, tokens, tcloudClient, recorder),
		key:         key,
		jwks:        jwks,
		permissions: perms,
		tokens:      tokens,
		settings:    settings,
		mr:          mr,
	}
}

// accessClaims returns a valid Cognito-style access token claim set,
// with overrides applied on top.
func (f *fixture) accessClaims(overrides jwt.MapClaims) jwt.MapClaims {
	claims := jwt.MapClaims{
		"iss":       f.settings.CognitoIssuer(),
		"sub":       "sub-1234",
		"token_use": "access",
		"client_id": testAppClientID,
		"username":  "AzureAD_jane@example.com",
		"iat":       time.Now().Add(-time.Minute).Unix(),
		"exp":       time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range overrides {
		claims[k] = v
	}
	return claims
}

// bearer wraps a token in bearer credentials.
func bearer(token string) Credentials {
	return Credentials{Scheme: "Bearer", Credentials: token}
}
