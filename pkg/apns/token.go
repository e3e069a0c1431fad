package apns

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// tokenRefreshInterval is comfortably under Apple's one-hour provider token
// expiry so a send never races a stale signer.
const tokenRefreshInterval = 50 * time.Minute

// tokenSource mints and caches the ES256 provider authentication token APNs
// requires on every HTTP/2 request's Authorization header.
type tokenSource struct {
	keyID   string
	teamID  string
	key     *ecdsa.PrivateKey
	mu      sync.Mutex
	cached  string
	issued  time.Time
}

func newTokenSource(keyID, teamID string, pemBytes []byte) (*tokenSource, error) {
	key, err := parseECPrivateKey(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing APNs private key: %w", err)
	}
	return &tokenSource{keyID: keyID, teamID: teamID, key: key}, nil
}

func parseECPrivateKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing PKCS8 key: %w", err)
	}
	ecKey, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not an EC private key")
	}
	return ecKey, nil
}

// Token returns a cached provider token, minting a fresh one if the cached
// value is older than tokenRefreshInterval.
func (ts *tokenSource) Token() (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.cached != "" && time.Since(ts.issued) < tokenRefreshInterval {
		return ts.cached, nil
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.ES256, Key: ts.key},
		(&jose.SignerOptions{ExtraHeaders: map[jose.HeaderKey]any{"kid": ts.keyID}}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("creating APNs token signer: %w", err)
	}

	now := time.Now()
	claims := jwt.Claims{
		Issuer:   ts.teamID,
		IssuedAt: jwt.NewNumericDate(now),
	}

	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing APNs token: %w", err)
	}

	ts.cached = token
	ts.issued = now
	return token, nil
}
