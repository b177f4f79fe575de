package jwtinfra

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/trialsignup/signup/internal/config"
)

// HandoffClaims is the payload of the token appended to the onboarding redirect.
type HandoffClaims struct {
	CustomerID     string `json:"customer_id"`
	SubscriptionID string `json:"subscription_id"`
	Email          string `json:"email"`
	jwt.RegisteredClaims
}

// Provider signs and verifies RS256 handoff tokens.
type Provider struct {
	privateKey *rsa.PrivateKey
	expiry     time.Duration
	now        func() time.Time
}

// NewProvider loads the signing key from cfg.JWTPrivateKeyPath.
func NewProvider(cfg *config.Config) (*Provider, error) {
	privBytes, err := os.ReadFile(cfg.JWTPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	privKey, err := jwt.ParseRSAPrivateKeyFromPEM(privBytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return NewProviderFromKey(privKey, cfg.JWTExpiry), nil
}

// NewProviderFromKey builds a provider around an already parsed key.
func NewProviderFromKey(key *rsa.PrivateKey, expiry time.Duration) *Provider {
	return &Provider{privateKey: key, expiry: expiry, now: time.Now}
}

// Sign issues a handoff token for a completed signup.
func (p *Provider) Sign(customerID, subscriptionID, email string) (string, error) {
	now := p.now()
	claims := HandoffClaims{
		CustomerID:     customerID,
		SubscriptionID: subscriptionID,
		Email:          email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   customerID,
			Audience:  jwt.ClaimStrings{"onboarding"},
			ExpiresAt: jwt.NewNumericDate(now.Add(p.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(p.privateKey)
}

// Verify parses a handoff token signed by this provider.
func (p *Provider) Verify(tokenStr string) (*HandoffClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &HandoffClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return &p.privateKey.PublicKey, nil
	}, jwt.WithAudience("onboarding"), jwt.WithTimeFunc(p.now))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*HandoffClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
