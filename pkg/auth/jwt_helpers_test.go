package auth

import (
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

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Test helpers shared by the key set and validator tests
// ---------------------------------------------------------------------------

// testIssuer mimics a Cognito issuer URL for a test user pool.
const testIssuer = "https://cognito-idp.us-east-2.amazonaws.com/us-east-2_TestPool1"

// testAppClientID is the app client id expected on access tokens in tests.
const testAppClientID = "test-app-client-id"

// testGenerateRSAKey generates a 2048-bit RSA key pair for signing test
// tokens. Fails the test immediately on generation failure.
func testGenerateRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key pair")
	return key
}

// testSignToken creates an RS256-signed JWT with the given claims and kid.
func testSignToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	tokenStr, err := token.SignedString(key)
	require.NoError(t, err, "failed to sign token")
	return tokenStr
}

// jwksServerMode controls how the test JWKS endpoint responds.
type jwksServerMode int

const (
	jwksModeOK jwksServerMode = iota
	jwksModeServerError
	jwksModeGarbage
)

// jwksTestServer serves a JWKS document over httptest with a swappable
// key set, failure injection, and a request counter, so tests can assert
// exactly how many fetches a scenario performs.
type jwksTestServer struct {
	srv      *httptest.Server
	requests atomic.Int64

	mu   sync.Mutex
	keys map[string]*rsa.PublicKey
	mode jwksServerMode
}

// newJWKSTestServer starts a JWKS test server with the given initial keys
// (kid -> public key). The server is closed automatically via t.Cleanup.
func newJWKSTestServer(t *testing.T, keys map[string]*rsa.PublicKey) *jwksTestServer {
	t.Helper()
	s := &jwksTestServer{keys: keys, mode: jwksModeOK}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *jwksTestServer) handle(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)

	s.mu.Lock()
	mode := s.mode
	keys := s.keys
	s.mu.Unlock()

	switch mode {
	case jwksModeServerError:
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	case jwksModeGarbage:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{not json"))
		return
	}

	type jwkEntry struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		Alg string `json:"alg"`
		Use string `json:"use"`
		N   string `json:"n"`
		E   string `json:"e"`
	}
	entries := make([]jwkEntry, 0, len(keys))
	for kid, pub := range keys {
		entries = append(entries, jwkEntry{
			Kty: "RSA",
			Kid: kid,
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"keys": entries})
}

// URL returns the JWKS endpoint URL.
func (s *jwksTestServer) URL() string { return s.srv.URL }

// Requests returns the number of fetches the server has received.
func (s *jwksTestServer) Requests() int64 { return s.requests.Load() }

// SetKeys replaces the served key set, simulating a key rotation.
func (s *jwksTestServer) SetKeys(keys map[string]*rsa.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = keys
}

// SetMode switches the server's response mode (failure injection).
func (s *jwksTestServer) SetMode(mode jwksServerMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}
