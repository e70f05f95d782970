// Package auth issues and verifies the bearer tokens protecting the API.
// A single configured credential is supported; the password is compared
// against a bcrypt hash, never stored in clear.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/gfranzoni/accountledger/internal/clock"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

type contextKey string

const callerContextKey contextKey = "caller"

// Authenticator validates the configured credential and mints HS256 tokens.
type Authenticator struct {
	secret       []byte
	username     string
	passwordHash []byte
	tokenTTL     time.Duration
	clock        clock.Clock
}

func New(secret, username, passwordHash string, tokenTTL time.Duration, clk clock.Clock) *Authenticator {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Authenticator{
		secret:       []byte(secret),
		username:     username,
		passwordHash: []byte(passwordHash),
		tokenTTL:     tokenTTL,
		clock:        clk,
	}
}

// HashPassword produces the bcrypt hash stored in configuration.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Login checks the credential and returns a signed token plus its lifetime.
func (a *Authenticator) Login(username, password string) (string, time.Duration, error) {
	if username != a.username {
		return "", 0, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", 0, ErrInvalidCredentials
	}

	now := a.clock.Now()
	claims := jwt.MapClaims{
		"sub": username,
		"iat": now.Unix(),
		"exp": now.Add(a.tokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", 0, err
	}
	return token, a.tokenTTL, nil
}

// Verify parses the token and returns the caller identity from its subject.
func (a *Authenticator) Verify(tokenString string) (string, error) {
	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(5*time.Second))
	if err != nil || !tok.Valid {
		return "", ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

// WithCaller stores the verified caller identity on the context.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

// CallerFromContext returns the identity placed by the auth middleware.
func CallerFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(callerContextKey).(string)
	return v, ok
}
