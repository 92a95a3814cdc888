// Package signer mints and checks the signed validation URLs embedded in the
// QR code of each membership card.
package signer

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dstarsfitness/dstars-backend/pkg/config"
)

var signingMethod = jwt.SigningMethodHS256

type validationClaims struct {
	MembershipID string `json:"membership_id"`
	jwt.RegisteredClaims
}

// Signer builds card validation URLs signed with the card secret.
type Signer struct {
	secret    []byte
	ttl       time.Duration
	publicURL string
}

// New constructs a Signer from the card configuration.
func New(cfg config.CardConfig, publicURL string) (*Signer, error) {
	if strings.TrimSpace(cfg.SigningSecret) == "" {
		return nil, fmt.Errorf("card signing secret is required")
	}
	if cfg.SignedURLTTL <= 0 {
		return nil, fmt.Errorf("signed url ttl must be positive")
	}
	return &Signer{
		secret:    []byte(cfg.SigningSecret),
		ttl:       cfg.SignedURLTTL,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// ValidationURL returns the absolute URL a scanner hits to validate a card.
func (s *Signer) ValidationURL(membershipID string, now time.Time) (string, error) {
	token, err := s.Sign(membershipID, now)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/api/v1/members/validate?token=%s", s.publicURL, url.QueryEscape(token)), nil
}

// Sign mints the validation token for a membership reference.
func (s *Signer) Sign(membershipID string, now time.Time) (string, error) {
	if strings.TrimSpace(membershipID) == "" {
		return "", fmt.Errorf("membership id is required")
	}

	claims := validationClaims{
		MembershipID: membershipID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing validation token: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature and expiry and returns the membership reference.
func (s *Signer) Verify(token string) (string, error) {
	claims := &validationClaims{}
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != signingMethod {
				return nil, fmt.Errorf("unexpected signing method %s", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
	)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.MembershipID) == "" {
		return "", fmt.Errorf("missing membership id claim")
	}
	return claims.MembershipID, nil
}
