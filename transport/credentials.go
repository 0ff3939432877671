package transport

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialsProvider applies authentication material to outbound requests.
type CredentialsProvider interface {
	Apply(req *http.Request) error
}

// BasicCredentials applies HTTP Basic authentication.
type BasicCredentials struct {
	Username string
	Password string
}

// Apply implements CredentialsProvider.
func (c *BasicCredentials) Apply(req *http.Request) error {
	req.SetBasicAuth(c.Username, c.Password)
	return nil
}

// BearerCredentials applies a static bearer token.
type BearerCredentials struct {
	Token string
}

// Apply implements CredentialsProvider.
func (c *BearerCredentials) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+c.Token)
	return nil
}

// JWTCredentials mints short-lived HS256 service tokens and applies them as
// bearer tokens. Tokens are cached and reissued shortly before expiry.
type JWTCredentials struct {
	// Secret is the HMAC signing key.
	Secret []byte
	// Issuer is the iss claim.
	Issuer string
	// Subject is the sub claim, typically the calling service name.
	Subject string
	// Audience is the aud claim.
	Audience string
	// TTL is the token lifetime. Defaults to 5 minutes.
	TTL time.Duration
	// Leeway is how long before expiry a new token is minted. Defaults to 30s.
	Leeway time.Duration

	mu      sync.Mutex
	token   string
	expires time.Time
}

// Apply implements CredentialsProvider.
func (c *JWTCredentials) Apply(req *http.Request) error {
	token, err := c.current()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (c *JWTCredentials) current() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	leeway := c.Leeway
	if leeway <= 0 {
		leeway = 30 * time.Second
	}
	if c.token != "" && time.Now().Add(leeway).Before(c.expires) {
		return c.token, nil
	}

	ttl := c.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	now := time.Now()
	expires := now.Add(ttl)

	claims := jwt.RegisteredClaims{
		Issuer:    c.Issuer,
		Subject:   c.Subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	if c.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.Audience}
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.Secret)
	if err != nil {
		return "", fmt.Errorf("transport: sign service token: %w", err)
	}

	c.token = token
	c.expires = expires
	return token, nil
}
