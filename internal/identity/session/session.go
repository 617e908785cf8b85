// Package session signs and verifies the two browser cookies of the login
// flow: the short-lived login-state cookie held while Authenticating, and the
// session cookie carrying the authenticated identity.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"enlist/pkg/domain"
	"enlist/pkg/platform/sentinel"
)

const (
	SessionCookieName = "enlist_session"
	LoginCookieName   = "enlist_login"

	audienceSession = "session"
	audienceLogin   = "login"

	nonceBytes = 32
	keyBytes   = 32
)

type sessionClaims struct {
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
	Avatar        string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

type loginClaims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

// Codec issues and parses the signed cookies. Session and login-state tokens
// are signed with distinct keys derived from one secret, so a token of one
// kind never verifies as the other.
type Codec struct {
	sessionKey []byte
	loginKey   []byte
	issuer     string
	sessionTTL time.Duration
	loginTTL   time.Duration
}

// NewCodec derives the signing keys from secret with HKDF-SHA256.
func NewCodec(secret, issuer string, sessionTTL, loginTTL time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	if sessionTTL <= 0 || loginTTL <= 0 {
		return nil, errors.New("session and login TTLs must be positive")
	}
	sessionKey, err := deriveKey(secret, audienceSession)
	if err != nil {
		return nil, err
	}
	loginKey, err := deriveKey(secret, audienceLogin)
	if err != nil {
		return nil, err
	}
	return &Codec{
		sessionKey: sessionKey,
		loginKey:   loginKey,
		issuer:     issuer,
		sessionTTL: sessionTTL,
		loginTTL:   loginTTL,
	}, nil
}

func deriveKey(secret, purpose string) ([]byte, error) {
	key := make([]byte, keyBytes)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("enlist/"+purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", purpose, err)
	}
	return key, nil
}

func (c *Codec) registered(audience string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
}

func (c *Codec) parser(audience string, now time.Time) *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
}

// IssueSession signs a session token for a complete identity.
func (c *Codec) IssueSession(ident *domain.Identity, now time.Time) (string, time.Time, error) {
	if !ident.Complete() {
		return "", time.Time{}, fmt.Errorf("issue session: %w", sentinel.ErrInvalidState)
	}
	claims := sessionClaims{
		Username:         ident.Username,
		Discriminator:    ident.Discriminator,
		Avatar:           ident.Avatar,
		RegisteredClaims: c.registered(audienceSession, now, c.sessionTTL),
	}
	claims.Subject = ident.ID.String()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.sessionKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// ParseSession verifies a session token and returns its identity. Expired
// tokens yield sentinel.ErrExpired; anything else invalid yields
// sentinel.ErrInvalidState.
func (c *Codec) ParseSession(token string, now time.Time) (*domain.Identity, error) {
	var claims sessionClaims
	if err := c.parse(token, &claims, c.sessionKey, audienceSession, now); err != nil {
		return nil, err
	}
	id, err := domain.ParseIdentityID(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("session subject: %w", sentinel.ErrInvalidState)
	}
	ident := &domain.Identity{
		ID:            id,
		Username:      claims.Username,
		Discriminator: claims.Discriminator,
		Avatar:        claims.Avatar,
	}
	if !ident.Complete() {
		return nil, fmt.Errorf("session identity incomplete: %w", sentinel.ErrInvalidState)
	}
	return ident, nil
}

// IssueLoginState signs the nonce sent to the provider as OAuth state.
func (c *Codec) IssueLoginState(nonce string, now time.Time) (string, time.Time, error) {
	if nonce == "" {
		return "", time.Time{}, fmt.Errorf("issue login state: %w", sentinel.ErrInvalidState)
	}
	claims := loginClaims{Nonce: nonce, RegisteredClaims: c.registered(audienceLogin, now, c.loginTTL)}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.loginKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign login state: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// ParseLoginState returns the nonce of a valid, unexpired login-state token.
func (c *Codec) ParseLoginState(token string, now time.Time) (string, error) {
	var claims loginClaims
	if err := c.parse(token, &claims, c.loginKey, audienceLogin, now); err != nil {
		return "", err
	}
	if claims.Nonce == "" {
		return "", fmt.Errorf("login state without nonce: %w", sentinel.ErrInvalidState)
	}
	return claims.Nonce, nil
}

func (c *Codec) parse(token string, claims jwt.Claims, key []byte, audience string, now time.Time) error {
	if token == "" {
		return fmt.Errorf("empty %s token: %w", audience, sentinel.ErrNotFound)
	}
	_, err := c.parser(audience, now).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return fmt.Errorf("%s token: %w", audience, sentinel.ErrExpired)
	}
	return fmt.Errorf("%s token: %w: %v", audience, sentinel.ErrInvalidState, err)
}

// NewNonce returns 32 random bytes, base64url encoded.
func NewNonce() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewCookie builds an HttpOnly, SameSite=Lax cookie scoped to the whole site.
func NewCookie(name, value string, expires time.Time, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie builds a cookie that deletes name in the browser.
func ClearCookie(name string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// TokenFromRequest returns the named cookie's value, or "".
func TokenFromRequest(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
